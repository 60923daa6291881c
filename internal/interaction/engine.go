// Package interaction detects dangerous medication combinations before a
// prescription is saved.
//
// Matching is a pure function over two flat tables: drug groups (name
// fragments per pharmacological class) and unordered group-pair rules.
package interaction

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for display; unknown values rank lowest
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Group is a pharmacological class and the name fragments that identify it
type Group struct {
	Name    string
	Members []string
}

// Rule is a conflict between two groups. The pair is unordered.
type Rule struct {
	GroupA    string
	GroupB    string
	Severity  Severity
	Rationale string
}

// Medication is an already-active medication of the patient
type Medication struct {
	Name           string `json:"name"`
	PrescriptionID string `json:"prescription_id,omitempty"`
}

// Finding is a triggered rule tagged with the active medication that triggered it
type Finding struct {
	Severity       Severity `json:"severity"`
	Rationale      string   `json:"rationale"`
	CandidateGroup string   `json:"candidate_group"`
	ConflictGroup  string   `json:"conflict_group"`
	Medication     string   `json:"medication"`
	PrescriptionID string   `json:"prescription_id,omitempty"`
}

// Matcher decides whether a folded medication name matches a folded group member
type Matcher func(name, member string) bool

// SubstringMatcher matches when member occurs anywhere in name
func SubstringMatcher(name, member string) bool {
	return strings.Contains(name, member)
}

// Taxonomy holds the group and rule tables
type Taxonomy struct {
	groups []Group
	rules  map[string]Rule
	match  Matcher
}

// Option configures a Taxonomy
type Option func(*Taxonomy)

// WithMatcher replaces the default substring matcher
func WithMatcher(m Matcher) Option {
	return func(t *Taxonomy) {
		if m != nil {
			t.match = m
		}
	}
}

// New builds a taxonomy. Group members are case- and accent-folded once here.
func New(groups []Group, rules []Rule, opts ...Option) *Taxonomy {
	t := &Taxonomy{
		groups: make([]Group, 0, len(groups)),
		rules:  make(map[string]Rule, len(rules)),
		match:  SubstringMatcher,
	}
	for _, o := range opts {
		o(t)
	}

	for _, g := range groups {
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			if f := Fold(m); f != "" {
				members = append(members, f)
			}
		}
		t.groups = append(t.groups, Group{Name: g.Name, Members: members})
	}
	for _, r := range rules {
		t.rules[pairKey(r.GroupA, r.GroupB)] = r
	}
	return t
}

// Groups returns the group table in declaration order
func (t *Taxonomy) Groups() []Group {
	return t.groups
}

// GroupsOf resolves a medication name to every group it belongs to, in
// declaration order. Combination drugs resolve to several groups.
func (t *Taxonomy) GroupsOf(name string) []string {
	folded := Fold(name)
	if folded == "" {
		return nil
	}
	var out []string
	for _, g := range t.groups {
		for _, m := range g.Members {
			if t.match(folded, m) {
				out = append(out, g.Name)
				break
			}
		}
	}
	return out
}

// Rule looks up the conflict between two groups in either order
func (t *Taxonomy) Rule(a, b string) (Rule, bool) {
	r, ok := t.rules[pairKey(a, b)]
	return r, ok
}

// FindConflicts returns every rule triggered between candidate and the active
// medications, or nil when nothing matched. Unknown substances never block.
// Findings follow the order of active, then of the candidate's groups, then
// of the active medication's groups.
func (t *Taxonomy) FindConflicts(candidate string, active []Medication) []Finding {
	candidateGroups := t.GroupsOf(candidate)
	if len(candidateGroups) == 0 {
		return nil
	}

	var findings []Finding
	seen := make(map[string]struct{})
	for i, med := range active {
		medGroups := t.GroupsOf(med.Name)
		for _, cg := range candidateGroups {
			for _, mg := range medGroups {
				rule, ok := t.Rule(cg, mg)
				if !ok {
					continue
				}
				// (A,B) and (B,A) hit the same rule when both sides share groups
				key := strconv.Itoa(i) + "|" + pairKey(rule.GroupA, rule.GroupB)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				findings = append(findings, Finding{
					Severity:       rule.Severity,
					Rationale:      rule.Rationale,
					CandidateGroup: cg,
					ConflictGroup:  mg,
					Medication:     med.Name,
					PrescriptionID: med.PrescriptionID,
				})
			}
		}
	}

	if len(findings) == 0 {
		return nil
	}
	return findings
}

// Highest returns the most severe severity among findings ("" when empty)
func Highest(findings []Finding) Severity {
	var best Severity
	for _, f := range findings {
		if f.Severity.Rank() > best.Rank() {
			best = f.Severity
		}
	}
	return best
}

// Fold lower-cases s and strips diacritics so "Varfarína" matches "varfarina"
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
