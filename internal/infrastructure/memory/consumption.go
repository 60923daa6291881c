package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caretrack/doseguard/internal/domain/consumption"
)

type consumptionRepo struct {
	mu    sync.RWMutex
	byID  map[string]consumption.Entry
	byKey map[string]string
}

// NewConsumptionRepo returns an empty consumption log
func NewConsumptionRepo() consumption.Repository {
	return &consumptionRepo{
		byID:  make(map[string]consumption.Entry),
		byKey: make(map[string]string),
	}
}

// Record enforces one entry per dose
func (r *consumptionRepo) Record(ctx context.Context, e *consumption.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		return consumption.ErrInvalidInput
	}
	key := e.DoseKey()
	if _, exists := r.byKey[key]; exists {
		return consumption.ErrAlreadyRecorded
	}
	r.byID[e.ID] = *e
	r.byKey[key] = e.ID
	return nil
}

// Update changes status or recorder; the dose an entry belongs to is fixed
func (r *consumptionRepo) Update(ctx context.Context, e *consumption.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[e.ID]
	if !ok {
		return consumption.ErrNotFound
	}
	if existing.DoseKey() != e.DoseKey() {
		return consumption.ErrInvalidInput
	}
	r.byID[e.ID] = *e
	return nil
}

func (r *consumptionRepo) Get(ctx context.Context, id string) (*consumption.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, consumption.ErrNotFound
	}
	return &e, nil
}

func (r *consumptionRepo) List(ctx context.Context, f consumption.Filter) ([]*consumption.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*consumption.Entry, 0)
	for _, e := range r.byID {
		e := e
		if f.Matches(&e) {
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		if out[i].ScheduledTime != out[j].ScheduledTime {
			return out[i].ScheduledTime < out[j].ScheduledTime
		}
		return out[i].PrescriptionID < out[j].PrescriptionID
	})
	return out, nil
}
