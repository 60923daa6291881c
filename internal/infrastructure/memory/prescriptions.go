// Package memory provides in-memory repositories for tests and the
// STORE=memory development mode. Every repository stores copies so callers
// cannot mutate stored records.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/schedule"
)

type prescriptionRepo struct {
	mu   sync.RWMutex
	byID map[string]prescription.Prescription
}

// NewPrescriptionRepo returns an empty prescription store
func NewPrescriptionRepo() prescription.Repository {
	return &prescriptionRepo{byID: make(map[string]prescription.Prescription)}
}

func clonePrescription(p *prescription.Prescription) prescription.Prescription {
	c := *p
	c.Times = append([]schedule.ClockTime(nil), p.Times...)
	return c
}

func (r *prescriptionRepo) Create(ctx context.Context, p *prescription.Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		return prescription.ErrInvalidInput
	}
	if _, exists := r.byID[p.ID]; exists {
		return prescription.ErrInvalidInput
	}
	r.byID[p.ID] = clonePrescription(p)
	return nil
}

func (r *prescriptionRepo) Update(ctx context.Context, p *prescription.Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; !exists {
		return prescription.ErrNotFound
	}
	r.byID[p.ID] = clonePrescription(p)
	return nil
}

func (r *prescriptionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return prescription.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *prescriptionRepo) Get(ctx context.Context, id string) (*prescription.Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, prescription.ErrNotFound
	}
	c := clonePrescription(&p)
	return &c, nil
}

func (r *prescriptionRepo) List(ctx context.Context, f prescription.Filter) ([]*prescription.Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*prescription.Prescription, 0)
	for _, p := range r.byID {
		p := p
		if !f.Matches(&p) {
			continue
		}
		c := clonePrescription(&p)
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
