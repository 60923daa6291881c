package reminder

import "github.com/caretrack/doseguard/internal/schedule"

// NotifiedSet remembers which doses already produced a local notification.
// It lives only as long as its Scheduler; a restart may notify again.
// Not safe for concurrent use: only the scheduler's tick touches it.
type NotifiedSet struct {
	keys map[string]schedule.Date
}

// NewNotifiedSet returns an empty set
func NewNotifiedSet() *NotifiedSet {
	return &NotifiedSet{keys: make(map[string]schedule.Date)}
}

// Has reports whether the dose was already notified
func (s *NotifiedSet) Has(d schedule.Dose) bool {
	_, ok := s.keys[d.Key()]
	return ok
}

// Add marks the dose as notified
func (s *NotifiedSet) Add(d schedule.Dose) {
	s.keys[d.Key()] = d.Date
}

// Len returns the number of remembered doses
func (s *NotifiedSet) Len() int {
	return len(s.keys)
}

// Prune forgets doses dated before cutoff
func (s *NotifiedSet) Prune(cutoff schedule.Date) {
	for k, d := range s.keys {
		if d.Before(cutoff) {
			delete(s.keys, k)
		}
	}
}
