// Package consumption defines the dose consumption log written by caregivers.
package consumption

import (
	"context"
	"errors"
	"time"

	"github.com/caretrack/doseguard/internal/schedule"
)

var (
	ErrInvalidInput    = errors.New("invalid consumption entry")
	ErrNotFound        = errors.New("consumption entry not found")
	ErrAlreadyRecorded = errors.New("dose already recorded")
)

type Status string

const (
	StatusTaken     Status = "taken"
	StatusForgotten Status = "forgotten"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusTaken || s == StatusForgotten
}

// Entry records what happened to one logical dose.
// There is at most one entry per (prescription, date, scheduled time).
type Entry struct {
	ID             string             `json:"id"`
	PrescriptionID string             `json:"prescription_id"`
	Date           schedule.Date      `json:"date"`
	ScheduledTime  schedule.ClockTime `json:"scheduled_time"`
	Status         Status             `json:"status"`
	RecordedBy     string             `json:"recorded_by,omitempty"`
	RecordedAt     time.Time          `json:"recorded_at"`
}

// DoseKey identifies the logical dose the entry belongs to
func (e *Entry) DoseKey() string {
	return schedule.DoseKey(e.PrescriptionID, e.ScheduledTime, e.Date)
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	PrescriptionIDs []string
	From            schedule.Date
	To              schedule.Date
	Status          Status
}

// Matches applies f to e in memory
func (f Filter) Matches(e *Entry) bool {
	if len(f.PrescriptionIDs) > 0 {
		found := false
		for _, id := range f.PrescriptionIDs {
			if id == e.PrescriptionID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// Repository is the durable store for the consumption log.
// Record must fail with ErrAlreadyRecorded when the dose already has an entry.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	Update(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// Index groups entries by dose key for constant-time "already logged" checks
type Index map[string]*Entry

// NewIndex builds an Index over entries
func NewIndex(entries []*Entry) Index {
	idx := make(Index, len(entries))
	for _, e := range entries {
		idx[e.DoseKey()] = e
	}
	return idx
}

// Has reports whether any entry exists for the dose
func (idx Index) Has(d schedule.Dose) bool {
	_, ok := idx[d.Key()]
	return ok
}

// Taken reports whether the dose was recorded as taken
func (idx Index) Taken(d schedule.Dose) bool {
	e, ok := idx[d.Key()]
	return ok && e.Status == StatusTaken
}
