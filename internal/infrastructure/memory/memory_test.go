package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/schedule"
)

var (
	may10 = schedule.NewDate(2026, 5, 10)
	at8   = schedule.MustClockTime("08:00")
)

func TestPrescriptionRepo_StoresCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewPrescriptionRepo()

	p := &prescription.Prescription{ID: "rx-1", PatientID: "p1", Times: []schedule.ClockTime{at8}, StartDate: may10, ContinuousUse: true}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	p.Times[0] = schedule.MustClockTime("09:00")

	got, err := repo.Get(ctx, "rx-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Times[0] != at8 {
		t.Errorf("stored record was mutated through the caller's slice: %v", got.Times)
	}

	if err := repo.Create(ctx, p); !errors.Is(err, prescription.ErrInvalidInput) {
		t.Errorf("expected duplicate create to fail, got %v", err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, prescription.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPrescriptionRepo_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewPrescriptionRepo()
	_ = repo.Create(ctx, &prescription.Prescription{ID: "a", PatientID: "p1", StartDate: may10, EndDate: may10})
	_ = repo.Create(ctx, &prescription.Prescription{ID: "b", PatientID: "p1", StartDate: may10, ContinuousUse: true})
	_ = repo.Create(ctx, &prescription.Prescription{ID: "c", PatientID: "p2", StartDate: may10, ContinuousUse: true})

	got, _ := repo.List(ctx, prescription.Filter{PatientIDs: []string{"p1"}, ActiveOn: may10.AddDays(1)})
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("expected only b, got %v", got)
	}

	if err := repo.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := repo.List(ctx, prescription.Filter{})
	if len(all) != 2 {
		t.Errorf("expected 2 after delete, got %d", len(all))
	}
}

func TestConsumptionRepo_OneEntryPerDose(t *testing.T) {
	ctx := context.Background()
	repo := NewConsumptionRepo()

	e := &consumption.Entry{ID: "e1", PrescriptionID: "rx-1", Date: may10, ScheduledTime: at8, Status: consumption.StatusTaken}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}
	dup := *e
	dup.ID = "e2"
	if err := repo.Record(ctx, &dup); !errors.Is(err, consumption.ErrAlreadyRecorded) {
		t.Errorf("expected ErrAlreadyRecorded, got %v", err)
	}

	e.Status = consumption.StatusForgotten
	if err := repo.Update(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}
	moved := *e
	moved.ScheduledTime = schedule.MustClockTime("20:00")
	if err := repo.Update(ctx, &moved); !errors.Is(err, consumption.ErrInvalidInput) {
		t.Errorf("expected moving an entry to another dose to fail, got %v", err)
	}

	got, _ := repo.List(ctx, consumption.Filter{PrescriptionIDs: []string{"rx-1"}, Status: consumption.StatusForgotten})
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("unexpected list result %v", got)
	}
}

func TestAlertRepo_InsertIfAbsentIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewAlertRepo()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.InsertIfAbsent(ctx, &alert.Entry{ID: "x", PrescriptionID: "rx-1", PatientID: "p1", Date: may10, Time: at8})
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 || repo.Len() != 1 {
		t.Errorf("expected exactly one insert, got %d (len %d)", inserted, repo.Len())
	}
	exists, _ := repo.Exists(ctx, "rx-1", may10, at8)
	if !exists {
		t.Error("expected alert to exist")
	}
	list, _ := repo.List(ctx, alert.Filter{PatientID: "p1", From: may10, To: may10})
	if len(list) != 1 {
		t.Errorf("expected 1 listed alert, got %d", len(list))
	}
}

func TestPatientRepo_Shares(t *testing.T) {
	ctx := context.Background()
	repo := NewPatientRepo()

	if err := repo.CreateShare(ctx, &patient.Share{ID: "s0", PatientID: "nobody"}); !errors.Is(err, patient.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown patient, got %v", err)
	}

	_ = repo.Create(ctx, &patient.Patient{ID: "p1", AccountID: "owner", Name: "Maria"})
	share := &patient.Share{ID: "s1", PatientID: "p1", GranteeAccountID: "nurse", Status: patient.ShareInvited}
	if err := repo.CreateShare(ctx, share); err != nil {
		t.Fatalf("create share: %v", err)
	}
	if err := repo.CreateShare(ctx, &patient.Share{ID: "s2", PatientID: "p1", GranteeAccountID: "nurse"}); err == nil {
		t.Error("expected second share for the same grantee to fail")
	}

	share.Status = patient.ShareAccepted
	_ = repo.UpdateShare(ctx, share)

	byGrantee, _ := repo.ListSharesByGrantee(ctx, "nurse")
	if len(byGrantee) != 1 || byGrantee[0].Status != patient.ShareAccepted {
		t.Errorf("unexpected shares %v", byGrantee)
	}
	owned, _ := repo.ListByAccount(ctx, "owner")
	if len(owned) != 1 {
		t.Errorf("expected 1 owned patient, got %d", len(owned))
	}
}
