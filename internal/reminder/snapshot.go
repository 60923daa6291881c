package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/schedule"
)

// Item is one prescription visible to the session with the names a reminder shows
type Item struct {
	Prescription   *prescription.Prescription
	PatientName    string
	MedicationName string
	Location       *time.Location
}

// Snapshot is the in-memory view a tick works from
type Snapshot struct {
	Items []Item
	Log   []*consumption.Entry
}

// Loader builds snapshots for one caregiving account
type Loader struct {
	Patients        patient.Repository
	Prescriptions   prescription.Repository
	Medications     medication.Repository
	Consumption     consumption.Repository
	DefaultLocation *time.Location
}

// Load collects every prescription of every patient the account owns or has
// an accepted share for, plus the log around today.
func (l *Loader) Load(ctx context.Context, accountID string, now time.Time) (*Snapshot, error) {
	patients, err := l.visiblePatients(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return &Snapshot{}, nil
	}

	ids := make([]string, 0, len(patients))
	byID := make(map[string]*patient.Patient, len(patients))
	for _, p := range patients {
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}

	utcToday := schedule.DateIn(now, time.UTC)
	prescriptions, err := l.Prescriptions.List(ctx, prescription.Filter{PatientIDs: ids, ActiveOn: utcToday.AddDays(-1)})
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}

	medIDs := make([]string, 0, len(prescriptions))
	rxIDs := make([]string, 0, len(prescriptions))
	for _, p := range prescriptions {
		medIDs = append(medIDs, p.MedicationID)
		rxIDs = append(rxIDs, p.ID)
	}
	meds, err := l.Medications.GetMany(ctx, medIDs)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}

	snap := &Snapshot{Items: make([]Item, 0, len(prescriptions))}
	for _, p := range prescriptions {
		pat := byID[p.PatientID]
		snap.Items = append(snap.Items, Item{
			Prescription:   p,
			PatientName:    pat.Name,
			MedicationName: meds[p.MedicationID].Label(),
			Location:       pat.Location(l.DefaultLocation),
		})
	}

	snap.Log, err = l.LoadLog(ctx, rxIDs, now)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// LoadLog reads the consumption log of prescriptionIDs for the days around now
func (l *Loader) LoadLog(ctx context.Context, prescriptionIDs []string, now time.Time) ([]*consumption.Entry, error) {
	if len(prescriptionIDs) == 0 {
		return nil, nil
	}
	utcToday := schedule.DateIn(now, time.UTC)
	entries, err := l.Consumption.List(ctx, consumption.Filter{
		PrescriptionIDs: prescriptionIDs,
		From:            utcToday.AddDays(-1),
		To:              utcToday.AddDays(1),
	})
	if err != nil {
		return nil, fmt.Errorf("load consumption log: %w", err)
	}
	return entries, nil
}

func (l *Loader) visiblePatients(ctx context.Context, accountID string) ([]*patient.Patient, error) {
	owned, err := l.Patients.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	shares, err := l.Patients.ListSharesByGrantee(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}

	seen := make(map[string]struct{}, len(owned))
	out := append([]*patient.Patient(nil), owned...)
	for _, p := range owned {
		seen[p.ID] = struct{}{}
	}
	for _, s := range shares {
		if s.Status != patient.ShareAccepted {
			continue
		}
		if _, ok := seen[s.PatientID]; ok {
			continue
		}
		p, err := l.Patients.Get(ctx, s.PatientID)
		if err != nil {
			return nil, fmt.Errorf("load shared patient %s: %w", s.PatientID, err)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
