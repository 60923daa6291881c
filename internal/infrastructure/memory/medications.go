package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caretrack/doseguard/internal/domain/medication"
)

type medicationRepo struct {
	mu   sync.RWMutex
	byID map[string]medication.Medication
}

// NewMedicationRepo returns an empty medication store
func NewMedicationRepo() medication.Repository {
	return &medicationRepo{byID: make(map[string]medication.Medication)}
}

func (r *medicationRepo) Create(ctx context.Context, m *medication.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		return medication.ErrInvalidInput
	}
	if _, exists := r.byID[m.ID]; exists {
		return medication.ErrInvalidInput
	}
	r.byID[m.ID] = *m
	return nil
}

func (r *medicationRepo) Update(ctx context.Context, m *medication.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[m.ID]; !exists {
		return medication.ErrNotFound
	}
	r.byID[m.ID] = *m
	return nil
}

func (r *medicationRepo) Get(ctx context.Context, id string) (*medication.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, medication.ErrNotFound
	}
	return &m, nil
}

// GetMany skips unknown IDs
func (r *medicationRepo) GetMany(ctx context.Context, ids []string) (map[string]*medication.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*medication.Medication, len(ids))
	for _, id := range ids {
		if m, ok := r.byID[id]; ok {
			m := m
			out[id] = &m
		}
	}
	return out, nil
}

func (r *medicationRepo) ListByAccount(ctx context.Context, accountID string) ([]*medication.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*medication.Medication, 0)
	for _, m := range r.byID {
		m := m
		if m.AccountID == accountID {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
