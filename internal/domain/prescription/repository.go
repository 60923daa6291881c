package prescription

import (
	"context"

	"github.com/caretrack/doseguard/internal/schedule"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	PatientIDs []string
	// ActiveOn keeps prescriptions that are continuous-use or whose end date is on/after it
	ActiveOn schedule.Date
}

// Matches applies f to p in memory
func (f Filter) Matches(p *Prescription) bool {
	if len(f.PatientIDs) > 0 && !contains(f.PatientIDs, p.PatientID) {
		return false
	}
	if !f.ActiveOn.IsZero() && !p.ActiveOn(f.ActiveOn) {
		return false
	}
	return true
}

// Repository is the durable store for prescriptions
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	Update(ctx context.Context, p *Prescription) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Prescription, error)
	List(ctx context.Context, f Filter) ([]*Prescription, error)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
