// Package patient defines patients and the account shares that grant other
// caregivers access to them.
package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caretrack/doseguard/internal/schedule"
)

var (
	ErrInvalidInput = errors.New("invalid patient")
	ErrNotFound     = errors.New("patient not found")
	ErrForbidden    = errors.New("forbidden")
)

// Patient is a person under care, owned by one caregiving account
type Patient struct {
	ID        string        `json:"id"`
	AccountID string        `json:"account_id"`
	Name      string        `json:"name"`
	BirthDate schedule.Date `json:"birth_date"`
	// TimeZone is an IANA zone name; empty means the deployment default
	TimeZone  string    `json:"time_zone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location resolves p's time zone, falling back to def on empty or unknown names
func (p *Patient) Location(def *time.Location) *time.Location {
	if def == nil {
		def = time.UTC
	}
	if p == nil || p.TimeZone == "" {
		return def
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return def
	}
	return loc
}

// Validate checks required fields and the time zone name
func (p *Patient) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if p.AccountID == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	if p.TimeZone != "" {
		if _, err := time.LoadLocation(p.TimeZone); err != nil {
			return fmt.Errorf("%w: unknown time_zone %q", ErrInvalidInput, p.TimeZone)
		}
	}
	return nil
}

type Access string

const (
	AccessRead      Access = "read"
	AccessReadWrite Access = "read_write"
)

type ShareStatus string

const (
	ShareInvited  ShareStatus = "invited"
	ShareAccepted ShareStatus = "accepted"
	ShareRevoked  ShareStatus = "revoked"
)

// Share grants another account access to a patient
type Share struct {
	ID               string      `json:"id"`
	PatientID        string      `json:"patient_id"`
	GranteeAccountID string      `json:"grantee_account_id"`
	Access           Access      `json:"access"`
	Status           ShareStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Recipients returns the owner followed by every accepted grantee, without duplicates
func Recipients(p *Patient, shares []*Share) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if p != nil {
		add(p.AccountID)
	}
	for _, s := range shares {
		if s.Status == ShareAccepted {
			add(s.GranteeAccountID)
		}
	}
	return out
}

// CanAccess reports whether accountID may read (or, with write, modify) p
func CanAccess(p *Patient, shares []*Share, accountID string, write bool) bool {
	if p == nil || accountID == "" {
		return false
	}
	if p.AccountID == accountID {
		return true
	}
	for _, s := range shares {
		if s.Status != ShareAccepted || s.GranteeAccountID != accountID {
			continue
		}
		if !write || s.Access == AccessReadWrite {
			return true
		}
	}
	return false
}

// Valid reports whether a is a known access level
func (a Access) Valid() bool {
	return a == AccessRead || a == AccessReadWrite
}

// Valid reports whether s is a known share status
func (s ShareStatus) Valid() bool {
	return s == ShareInvited || s == ShareAccepted || s == ShareRevoked
}
