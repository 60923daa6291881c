package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caretrack/doseguard/internal/domain/patient"
)

type patientRepo struct {
	mu     sync.RWMutex
	byID   map[string]patient.Patient
	shares map[string]patient.Share
}

// NewPatientRepo returns an empty patient and share store
func NewPatientRepo() patient.Repository {
	return &patientRepo{
		byID:   make(map[string]patient.Patient),
		shares: make(map[string]patient.Share),
	}
}

func (r *patientRepo) Create(ctx context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		return patient.ErrInvalidInput
	}
	if _, exists := r.byID[p.ID]; exists {
		return patient.ErrInvalidInput
	}
	r.byID[p.ID] = *p
	return nil
}

func (r *patientRepo) Update(ctx context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; !exists {
		return patient.ErrNotFound
	}
	r.byID[p.ID] = *p
	return nil
}

func (r *patientRepo) Get(ctx context.Context, id string) (*patient.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return &p, nil
}

func (r *patientRepo) ListByAccount(ctx context.Context, accountID string) ([]*patient.Patient, error) {
	return r.list(func(p *patient.Patient) bool { return p.AccountID == accountID }), nil
}

func (r *patientRepo) List(ctx context.Context) ([]*patient.Patient, error) {
	return r.list(func(*patient.Patient) bool { return true }), nil
}

func (r *patientRepo) list(keep func(*patient.Patient) bool) []*patient.Patient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*patient.Patient, 0)
	for _, p := range r.byID {
		p := p
		if keep(&p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *patientRepo) CreateShare(ctx context.Context, s *patient.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == "" {
		return patient.ErrInvalidInput
	}
	if _, ok := r.byID[s.PatientID]; !ok {
		return patient.ErrNotFound
	}
	for _, existing := range r.shares {
		if existing.PatientID == s.PatientID && existing.GranteeAccountID == s.GranteeAccountID {
			return patient.ErrInvalidInput
		}
	}
	r.shares[s.ID] = *s
	return nil
}

func (r *patientRepo) UpdateShare(ctx context.Context, s *patient.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.shares[s.ID]; !ok {
		return patient.ErrNotFound
	}
	r.shares[s.ID] = *s
	return nil
}

func (r *patientRepo) ListShares(ctx context.Context, patientID string) ([]*patient.Share, error) {
	return r.listShares(func(s *patient.Share) bool { return s.PatientID == patientID }), nil
}

func (r *patientRepo) ListSharesByGrantee(ctx context.Context, accountID string) ([]*patient.Share, error) {
	return r.listShares(func(s *patient.Share) bool { return s.GranteeAccountID == accountID }), nil
}

func (r *patientRepo) listShares(keep func(*patient.Share) bool) []*patient.Share {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*patient.Share, 0)
	for _, s := range r.shares {
		s := s
		if keep(&s) {
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
