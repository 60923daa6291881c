package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/schedule"
)

// AlertRepo is the in-memory alert log. InsertIfAbsent is atomic under one lock.
type AlertRepo struct {
	mu    sync.RWMutex
	byKey map[string]alert.Entry
}

// NewAlertRepo returns an empty alert log
func NewAlertRepo() *AlertRepo {
	return &AlertRepo{byKey: make(map[string]alert.Entry)}
}

func (r *AlertRepo) Exists(ctx context.Context, prescriptionID string, d schedule.Date, t schedule.ClockTime) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byKey[schedule.DoseKey(prescriptionID, t, d)]
	return ok, nil
}

func (r *AlertRepo) InsertIfAbsent(ctx context.Context, e *alert.Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := e.DoseKey()
	if _, ok := r.byKey[key]; ok {
		return false, nil
	}
	c := *e
	c.Recipients = append([]string(nil), e.Recipients...)
	r.byKey[key] = c
	return true, nil
}

func (r *AlertRepo) List(ctx context.Context, f alert.Filter) ([]*alert.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*alert.Entry, 0)
	for _, e := range r.byKey {
		e := e
		if f.PatientID != "" && e.PatientID != f.PatientID {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Date.After(f.To) {
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].PrescriptionID < out[j].PrescriptionID
	})
	return out, nil
}

// Len returns the number of logged alerts
func (r *AlertRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

var _ alert.Repository = (*AlertRepo)(nil)
