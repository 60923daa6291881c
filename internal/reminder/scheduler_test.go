package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/infrastructure/memory"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/schedule"
	"github.com/caretrack/doseguard/pkg/clock"
)

var today = schedule.NewDate(2026, 5, 10)

type fakeNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeNotifier) tags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n.Tag)
	}
	return out
}

type fakeSpeaker struct {
	phrases []string
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.phrases = append(f.phrases, text)
	return nil
}

func at(hh, mm int) time.Time {
	return time.Date(2026, 5, 10, hh, mm, 0, 0, time.UTC)
}

func twiceDaily() *prescription.Prescription {
	return &prescription.Prescription{
		ID:            "rx-1",
		PatientID:     "p1",
		MedicationID:  "m1",
		Times:         []schedule.ClockTime{schedule.MustClockTime("08:00"), schedule.MustClockTime("20:00")},
		StartDate:     today,
		ContinuousUse: true,
	}
}

func snapshot(log ...*consumption.Entry) *Snapshot {
	return &Snapshot{
		Items: []Item{{
			Prescription:   twiceDaily(),
			PatientName:    "Maria",
			MedicationName: "Losartana 50 mg",
			Location:       time.UTC,
		}},
		Log: log,
	}
}

func newScheduler(t *testing.T, now time.Time, notifier Notifier, speaker Speaker, voice bool) (*Scheduler, *clock.ManagedClock, *metrics.Metrics) {
	t.Helper()
	clk := clock.NewManaged(now)
	m := metrics.New(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.Voice = voice
	s, err := New(cfg, notifier, speaker, clk, m, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, clk, m
}

func TestTick_TakenSlotNeverFiresAndNextSlotFiresOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	s, clk, _ := newScheduler(t, at(8, 10), notifier, nil, false)
	s.SetSnapshot(snapshot(&consumption.Entry{
		ID: "e1", PrescriptionID: "rx-1", Date: today,
		ScheduledTime: schedule.MustClockTime("08:00"), Status: consumption.StatusTaken,
	}))

	ctx := context.Background()
	if n := s.Tick(ctx); n != 0 {
		t.Fatalf("expected nothing at 08:10, got %d", n)
	}

	clk.Set(at(19, 44))
	if n := s.Tick(ctx); n != 0 {
		t.Fatalf("expected nothing 16 minutes ahead, got %d", n)
	}

	clk.Set(at(19, 45))
	if n := s.Tick(ctx); n != 1 {
		t.Fatalf("expected the 20:00 reminder at 19:45, got %d", n)
	}
	for _, ts := range []time.Time{at(19, 46), at(20, 0), at(20, 4)} {
		clk.Set(ts)
		if n := s.Tick(ctx); n != 0 {
			t.Errorf("expected no repeat at %s, got %d", ts.Format("15:04"), n)
		}
	}

	tags := notifier.tags()
	if len(tags) != 1 || tags[0] != "rx-1-20:00-2026-05-10" {
		t.Errorf("expected a single 20:00 reminder, got %v", tags)
	}
}

func TestTick_WindowBounds(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"16 minutes early", at(7, 44), 0},
		{"15 minutes early", at(7, 45), 1},
		{"due now", at(8, 0), 1},
		{"4m59s late", at(8, 4).Add(59 * time.Second), 1},
		{"5 minutes late", at(8, 5), 0},
	}
	for _, tc := range cases {
		s, _, _ := newScheduler(t, tc.now, &fakeNotifier{}, nil, false)
		s.SetSnapshot(snapshot())
		if got := s.Tick(context.Background()); got != tc.want {
			t.Errorf("%s: expected %d reminders, got %d", tc.name, tc.want, got)
		}
	}
}

func TestTick_ForgottenDoseIsNotReminded(t *testing.T) {
	s, _, _ := newScheduler(t, at(8, 0), &fakeNotifier{}, nil, false)
	s.SetSnapshot(snapshot(&consumption.Entry{
		ID: "e1", PrescriptionID: "rx-1", Date: today,
		ScheduledTime: schedule.MustClockTime("08:00"), Status: consumption.StatusForgotten,
	}))
	if n := s.Tick(context.Background()); n != 0 {
		t.Errorf("expected no reminder for a logged dose, got %d", n)
	}
}

func TestTick_FailedDeliveryRetries(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("surface unavailable")}
	s, clk, m := newScheduler(t, at(7, 50), notifier, nil, false)
	s.SetSnapshot(snapshot())

	if n := s.Tick(context.Background()); n != 0 {
		t.Fatalf("expected failed delivery, got %d", n)
	}
	notifier.mu.Lock()
	notifier.err = nil
	notifier.mu.Unlock()

	clk.WarpForward(time.Minute)
	if n := s.Tick(context.Background()); n != 1 {
		t.Errorf("expected retry on next tick, got %d", n)
	}
	if got := testutil.ToFloat64(m.RemindersFailed); got != 1 {
		t.Errorf("expected 1 failure recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.RemindersSent); got != 1 {
		t.Errorf("expected 1 reminder recorded, got %v", got)
	}
}

func TestTick_Voice(t *testing.T) {
	speaker := &fakeSpeaker{}
	s, _, _ := newScheduler(t, at(8, 0), &fakeNotifier{}, speaker, true)
	s.SetSnapshot(snapshot())
	s.Tick(context.Background())

	if len(speaker.phrases) != 1 {
		t.Fatalf("expected one spoken phrase, got %v", speaker.phrases)
	}
	if want := "Time for Maria to take Losartana 50 mg, scheduled at 08:00."; speaker.phrases[0] != want {
		t.Errorf("expected %q, got %q", want, speaker.phrases[0])
	}

	quiet := &fakeSpeaker{}
	s, _, _ = newScheduler(t, at(8, 0), &fakeNotifier{}, quiet, false)
	s.SetSnapshot(snapshot())
	s.Tick(context.Background())
	if len(quiet.phrases) != 0 {
		t.Errorf("expected silence without the voice flag, got %v", quiet.phrases)
	}
}

func TestScheduler_SeparateSessionsDoNotShareState(t *testing.T) {
	a, _, _ := newScheduler(t, at(8, 0), &fakeNotifier{}, nil, false)
	b, _, _ := newScheduler(t, at(8, 0), &fakeNotifier{}, nil, false)
	a.SetSnapshot(snapshot())
	b.SetSnapshot(snapshot())

	if a.Tick(context.Background()) != 1 || b.Tick(context.Background()) != 1 {
		t.Error("each scheduler must own its notified set")
	}
}

func TestScheduler_StartTicksImmediately(t *testing.T) {
	notifier := &fakeNotifier{}
	s, _, _ := newScheduler(t, at(8, 0), notifier, nil, false)
	s.SetSnapshot(snapshot())

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for len(notifier.tags()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop()

	if len(notifier.tags()) != 1 {
		t.Errorf("expected one reminder from the immediate tick, got %v", notifier.tags())
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s, _, _ := newScheduler(t, at(8, 0), &fakeNotifier{}, nil, false)
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a scheduler that never started")
	}
}

func TestNotifiedSet_Prune(t *testing.T) {
	set := NewNotifiedSet()
	old := schedule.Dose{PrescriptionID: "rx-1", Date: today.AddDays(-3), Time: 480}
	cur := schedule.Dose{PrescriptionID: "rx-1", Date: today, Time: 480}
	set.Add(old)
	set.Add(cur)

	set.Prune(today.AddDays(-1))
	if set.Has(old) || !set.Has(cur) || set.Len() != 1 {
		t.Errorf("expected only the current dose to remain")
	}
}

func TestLogNotifier_ReplacesByTag(t *testing.T) {
	n := NewLogNotifier(zaptest.NewLogger(t))
	note := Notification{Tag: "rx-1-08:00-2026-05-10", Title: "t", Body: "b"}
	if err := n.Notify(context.Background(), note); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(context.Background(), note); err != nil {
		t.Fatal(err)
	}
	if len(n.seen) != 1 {
		t.Errorf("expected one tag tracked, got %d", len(n.seen))
	}
}

func TestNewCommandSpeaker_Empty(t *testing.T) {
	if _, err := NewCommandSpeaker("   ", 0); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestLoader_VisiblePatients(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_ = store.Patients.Create(ctx, &patient.Patient{ID: "p1", AccountID: "owner", Name: "Maria"})
	_ = store.Patients.Create(ctx, &patient.Patient{ID: "p2", AccountID: "other", Name: "Jose"})
	_ = store.Patients.Create(ctx, &patient.Patient{ID: "p3", AccountID: "other", Name: "Ana"})
	_ = store.Patients.CreateShare(ctx, &patient.Share{ID: "s1", PatientID: "p2", GranteeAccountID: "owner", Status: patient.ShareAccepted})
	_ = store.Patients.CreateShare(ctx, &patient.Share{ID: "s2", PatientID: "p3", GranteeAccountID: "owner", Status: patient.ShareInvited})
	_ = store.Medications.Create(ctx, &medication.Medication{ID: "m1", AccountID: "owner", Name: "Losartana"})

	for _, p := range []struct{ id, patient string }{{"rx-1", "p1"}, {"rx-2", "p2"}, {"rx-3", "p3"}} {
		rx := twiceDaily()
		rx.ID, rx.PatientID = p.id, p.patient
		_ = store.Prescriptions.Create(ctx, rx)
	}
	_ = store.Consumption.Record(ctx, &consumption.Entry{
		ID: "e1", PrescriptionID: "rx-2", Date: today, ScheduledTime: schedule.MustClockTime("08:00"), Status: consumption.StatusTaken,
	})

	loader := &Loader{
		Patients:        store.Patients,
		Prescriptions:   store.Prescriptions,
		Medications:     store.Medications,
		Consumption:     store.Consumption,
		DefaultLocation: time.UTC,
	}
	snap, err := loader.Load(ctx, "owner", at(7, 0))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("expected owned and accepted-share prescriptions, got %d", len(snap.Items))
	}
	if len(snap.Log) != 1 {
		t.Errorf("expected the shared patient's log entry, got %d", len(snap.Log))
	}
	for _, item := range snap.Items {
		if item.Prescription.ID == "rx-3" {
			t.Error("invited share must not be visible")
		}
		if item.MedicationName != "Losartana" {
			t.Errorf("expected medication label, got %q", item.MedicationName)
		}
	}
}

type failingLogSource struct{}

func (failingLogSource) LoadLog(ctx context.Context, ids []string, now time.Time) ([]*consumption.Entry, error) {
	return nil, errors.New("database unavailable")
}

func TestTick_DoseLoggedAfterSnapshotIsNotReminded(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_ = store.Patients.Create(ctx, &patient.Patient{ID: "p1", AccountID: "owner", Name: "Maria"})
	_ = store.Medications.Create(ctx, &medication.Medication{ID: "m1", AccountID: "owner", Name: "Losartana"})
	_ = store.Prescriptions.Create(ctx, twiceDaily())

	loader := &Loader{
		Patients:        store.Patients,
		Prescriptions:   store.Prescriptions,
		Medications:     store.Medications,
		Consumption:     store.Consumption,
		DefaultLocation: time.UTC,
	}
	notifier := &fakeNotifier{}
	s, clk, _ := newScheduler(t, at(19, 40), notifier, nil, false)

	snap, err := loader.Load(ctx, "owner", clk.Now())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s.SetSnapshot(snap)
	s.SetLogSource(loader)

	// taken early, before the reminder window opens and before the next snapshot
	clk.WarpForward(2 * time.Minute)
	if err := store.Consumption.Record(ctx, &consumption.Entry{
		ID: "e1", PrescriptionID: "rx-1", Date: today, ScheduledTime: schedule.MustClockTime("20:00"), Status: consumption.StatusTaken,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	clk.WarpForward(3 * time.Minute)
	if sent := s.Tick(ctx); sent != 0 {
		t.Errorf("reminders fired for an already-taken dose: %d tags=%v", sent, notifier.tags())
	}
}

func TestTick_LogSourceFailureKeepsLastLog(t *testing.T) {
	taken := &consumption.Entry{
		ID: "e1", PrescriptionID: "rx-1", Date: today, ScheduledTime: schedule.MustClockTime("20:00"), Status: consumption.StatusTaken,
	}
	notifier := &fakeNotifier{}
	s, _, _ := newScheduler(t, at(19, 50), notifier, nil, false)
	s.SetSnapshot(snapshot(taken))
	s.SetLogSource(failingLogSource{})

	if sent := s.Tick(context.Background()); sent != 0 {
		t.Errorf("expected the snapshot log to still suppress the dose, got %d", sent)
	}
}
