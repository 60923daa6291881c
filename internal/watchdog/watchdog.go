// Package watchdog implements the server-side missed-dose pass: it finds doses
// that are late today and alerts the patient's caregivers once per dose.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/schedule"
	"github.com/caretrack/doseguard/pkg/clock"
	"github.com/caretrack/doseguard/pkg/workerpool"
)

// ErrLocked is returned by Run when another pass holds the run lock
var ErrLocked = errors.New("another watchdog pass is running")

// Config holds watchdog configuration
type Config struct {
	// LateAfter is how late a dose must be, exclusive, before caregivers are alerted
	LateAfter time.Duration
	// Horizon is the exclusive upper bound on lateness; older doses belong to a past day
	Horizon time.Duration
	// Workers bounds parallel alert dispatch
	Workers int
	// DefaultLocation applies to patients without a time zone
	DefaultLocation *time.Location
	// Interval is the pause between passes when running as a loop
	Interval time.Duration
}

// DefaultConfig returns the standard thresholds: alert after 30 minutes,
// never for doses 24 hours or more late.
func DefaultConfig() Config {
	return Config{
		LateAfter:       30 * time.Minute,
		Horizon:         24 * time.Hour,
		Workers:         8,
		DefaultLocation: time.UTC,
		Interval:        5 * time.Minute,
	}
}

// Locker serializes passes across replicas. A nil Locker means passes may
// overlap, which the alert log's uniqueness makes safe.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), acquired bool, err error)
}

// Deps are the stores and ports a pass reads and writes
type Deps struct {
	Prescriptions prescription.Repository
	Patients      patient.Repository
	Medications   medication.Repository
	Consumption   consumption.Repository
	Alerts        alert.Repository
	Deliverer     alert.Deliverer
	Locker        Locker
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	NewID         func() string
}

// Report summarizes one pass
type Report struct {
	Prescriptions       int `json:"prescriptions"`
	Candidates          int `json:"candidates"`
	Dispatched          int `json:"dispatched"`
	Failed              int `json:"failed"`
	SkippedTaken        int `json:"skipped_taken"`
	SkippedAlerted      int `json:"skipped_alerted"`
	SkippedNoRecipients int `json:"skipped_no_recipients"`
}

// Watchdog runs missed-dose passes
type Watchdog struct {
	config Config
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a watchdog
func New(cfg Config, deps Deps, logger *zap.Logger) (*Watchdog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Prescriptions == nil || deps.Patients == nil || deps.Medications == nil ||
		deps.Consumption == nil || deps.Alerts == nil || deps.Deliverer == nil {
		return nil, fmt.Errorf("watchdog: every repository and a deliverer are required")
	}
	def := DefaultConfig()
	if cfg.LateAfter <= 0 {
		cfg.LateAfter = def.LateAfter
	}
	if cfg.Horizon <= cfg.LateAfter {
		cfg.Horizon = def.Horizon
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = def.DefaultLocation
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return "" }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		config: cfg,
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer("watchdog"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// candidate is one late, unlogged, unalerted dose with somebody to tell
type candidate struct {
	dose       schedule.Dose
	patient    *patient.Patient
	medication string
	lateness   int
	recipients []string
}

// Run performs one complete pass. Per-candidate dispatch errors are counted in
// the report, never returned; an error means the pass could not load its data.
func (w *Watchdog) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "watchdog.run")
	defer span.End()

	var report Report

	if w.deps.Locker != nil {
		unlock, acquired, err := w.deps.Locker.TryLock(ctx)
		if err != nil {
			span.RecordError(err)
			return report, fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			return report, ErrLocked
		}
		defer unlock()
	}

	now := w.deps.Clock.Now()
	candidates, err := w.collect(ctx, now, &report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	w.dispatchAll(ctx, now, candidates, &report)

	span.SetAttributes(
		attribute.Int("prescriptions", report.Prescriptions),
		attribute.Int("candidates", report.Candidates),
		attribute.Int("dispatched", report.Dispatched),
		attribute.Int("failed", report.Failed),
	)
	if m := w.deps.Metrics; m != nil {
		m.WatchdogRuns.Inc()
		m.WatchdogRunDuration.Observe(time.Since(start).Seconds())
		m.WatchdogCandidates.Add(float64(report.Candidates))
		m.WatchdogSkipped.WithLabelValues("taken").Add(float64(report.SkippedTaken))
		m.WatchdogSkipped.WithLabelValues("alerted").Add(float64(report.SkippedAlerted))
		m.WatchdogSkipped.WithLabelValues("no_recipients").Add(float64(report.SkippedNoRecipients))
	}

	w.logger.Info("watchdog pass complete",
		zap.Int("prescriptions", report.Prescriptions),
		zap.Int("candidates", report.Candidates),
		zap.Int("dispatched", report.Dispatched),
		zap.Int("failed", report.Failed),
		zap.Int("skipped_taken", report.SkippedTaken),
		zap.Int("skipped_alerted", report.SkippedAlerted),
		zap.Int("skipped_no_recipients", report.SkippedNoRecipients),
		zap.Duration("duration", time.Since(start)))

	return report, nil
}

// Lateness returns how many whole minutes now is past the dose's due instant
func Lateness(dose schedule.Dose, now time.Time, loc *time.Location) int {
	return int(now.Sub(dose.At(loc)) / time.Minute)
}

// collect loads the store and applies every skip rule up to recipient resolution
func (w *Watchdog) collect(ctx context.Context, now time.Time, report *Report) ([]candidate, error) {
	// Every patient's "today" lies within a day of today in UTC.
	utcToday := schedule.DateIn(now, time.UTC)

	prescriptions, err := w.deps.Prescriptions.List(ctx, prescription.Filter{ActiveOn: utcToday.AddDays(-1)})
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	if len(prescriptions) == 0 {
		return nil, nil
	}

	patients, err := w.deps.Patients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	patientsByID := make(map[string]*patient.Patient, len(patients))
	for _, p := range patients {
		patientsByID[p.ID] = p
	}

	ids := make([]string, 0, len(prescriptions))
	medIDs := make([]string, 0, len(prescriptions))
	for _, p := range prescriptions {
		ids = append(ids, p.ID)
		medIDs = append(medIDs, p.MedicationID)
	}

	meds, err := w.deps.Medications.GetMany(ctx, medIDs)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}

	entries, err := w.deps.Consumption.List(ctx, consumption.Filter{
		PrescriptionIDs: ids,
		From:            utcToday.AddDays(-1),
		To:              utcToday.AddDays(1),
		Status:          consumption.StatusTaken,
	})
	if err != nil {
		return nil, fmt.Errorf("load consumption log: %w", err)
	}
	taken := consumption.NewIndex(entries)

	recipients := make(map[string][]string)
	lateAfter := int(w.config.LateAfter / time.Minute)
	horizon := int(w.config.Horizon / time.Minute)

	var out []candidate
	for _, p := range prescriptions {
		pat, ok := patientsByID[p.PatientID]
		if !ok {
			w.logger.Warn("prescription without patient",
				zap.String("prescription_id", p.ID),
				zap.String("patient_id", p.PatientID))
			continue
		}

		loc := pat.Location(w.config.DefaultLocation)
		today := schedule.DateIn(now, loc)
		if !p.ScheduledOn(today) {
			continue
		}
		report.Prescriptions++

		for _, dose := range schedule.ExpandDay(p.Regimen(), today) {
			lateness := Lateness(dose, now, loc)
			if lateness <= lateAfter || lateness >= horizon {
				continue
			}
			report.Candidates++

			if taken.Taken(dose) {
				report.SkippedTaken++
				continue
			}

			alerted, err := w.deps.Alerts.Exists(ctx, dose.PrescriptionID, dose.Date, dose.Time)
			if err != nil {
				// a duplicate alert beats a silent one
				w.logger.Warn("alert log lookup failed, dispatching anyway",
					zap.String("dose_key", dose.Key()),
					zap.Error(err))
			} else if alerted {
				report.SkippedAlerted++
				continue
			}

			rcpt, ok := recipients[pat.ID]
			if !ok {
				rcpt = w.resolveRecipients(ctx, pat)
				recipients[pat.ID] = rcpt
			}
			if len(rcpt) == 0 {
				report.SkippedNoRecipients++
				continue
			}

			out = append(out, candidate{
				dose:       dose,
				patient:    pat,
				medication: meds[p.MedicationID].Label(),
				lateness:   lateness,
				recipients: rcpt,
			})
		}
	}
	return out, nil
}

func (w *Watchdog) resolveRecipients(ctx context.Context, p *patient.Patient) []string {
	shares, err := w.deps.Patients.ListShares(ctx, p.ID)
	if err != nil {
		w.logger.Warn("could not load patient shares, alerting owner only",
			zap.String("patient_id", p.ID),
			zap.Error(err))
		shares = nil
	}
	return patient.Recipients(p, shares)
}

// dispatchAll alerts every candidate in parallel. Each candidate's log row is
// written only after its own dispatch succeeded.
func (w *Watchdog) dispatchAll(ctx context.Context, now time.Time, candidates []candidate, report *Report) {
	if len(candidates) == 0 {
		return
	}

	pool := workerpool.New(workerpool.Config{
		Workers:   w.config.Workers,
		QueueSize: len(candidates),
	}, w.logger)
	pool.Start()

	var mu sync.Mutex
	for _, c := range candidates {
		c := c
		err := pool.Go(ctx, c.dose.Key(), func(ctx context.Context) error {
			err := w.dispatch(ctx, now, c)
			mu.Lock()
			if err != nil {
				report.Failed++
			} else {
				report.Dispatched++
			}
			mu.Unlock()
			return err
		})
		if err != nil {
			mu.Lock()
			report.Failed++
			mu.Unlock()
			w.logger.Error("could not schedule alert dispatch",
				zap.String("dose_key", c.dose.Key()),
				zap.Error(err))
		}
	}
	_ = pool.Stop()
}

func (w *Watchdog) dispatch(ctx context.Context, now time.Time, c candidate) error {
	key := c.dose.Key()
	ctx, span := w.tracer.Start(ctx, "watchdog.dispatch",
		trace.WithAttributes(
			attribute.String("dose_key", key),
			attribute.String("patient_id", c.patient.ID),
			attribute.Int("lateness_minutes", c.lateness),
			attribute.Int("recipients", len(c.recipients)),
		))
	defer span.End()

	n := BuildNotification(c.dose, c.patient.ID, c.patient.Name, c.medication, c.lateness, c.recipients, now)
	if err := w.deps.Deliverer.Deliver(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		if m := w.deps.Metrics; m != nil {
			m.AlertsFailed.Inc()
		}
		w.logger.Error("caregiver alert dispatch failed",
			zap.String("dose_key", key),
			zap.String("prescription_id", c.dose.PrescriptionID),
			zap.String("patient_id", c.patient.ID),
			zap.Error(err))
		return err
	}
	if m := w.deps.Metrics; m != nil {
		m.AlertsDispatched.Inc()
	}

	entry := &alert.Entry{
		ID:             w.deps.NewID(),
		PrescriptionID: c.dose.PrescriptionID,
		PatientID:      c.patient.ID,
		Date:           c.dose.Date,
		Time:           c.dose.Time,
		Recipients:     c.recipients,
		CreatedAt:      now,
	}
	inserted, err := w.deps.Alerts.InsertIfAbsent(ctx, entry)
	if err != nil {
		// the alert went out; the next pass may send it again
		if m := w.deps.Metrics; m != nil {
			m.AlertLogWriteFailures.Inc()
		}
		w.logger.Error("alert dispatched but not logged",
			zap.String("dose_key", key),
			zap.Error(err))
		return nil
	}
	if !inserted {
		w.logger.Info("alert already logged by an overlapping pass", zap.String("dose_key", key))
	}

	w.logger.Info("caregiver alert dispatched",
		zap.String("dose_key", key),
		zap.String("prescription_id", c.dose.PrescriptionID),
		zap.String("patient_id", c.patient.ID),
		zap.Int("lateness_minutes", c.lateness),
		zap.Int("recipients", len(c.recipients)))
	return nil
}

// BuildNotification renders the caregiver alert for a late dose
func BuildNotification(dose schedule.Dose, patientID, patientName, medicationName string, lateness int, recipients []string, now time.Time) *alert.Notification {
	if medicationName == "" {
		medicationName = "a medication"
	}
	return &alert.Notification{
		Key:             dose.Key(),
		PrescriptionID:  dose.PrescriptionID,
		PatientID:       patientID,
		PatientName:     patientName,
		MedicationName:  medicationName,
		Date:            dose.Date,
		Time:            dose.Time,
		LatenessMinutes: lateness,
		Recipients:      recipients,
		Title:           fmt.Sprintf("Missed dose: %s", patientName),
		Body: fmt.Sprintf("%s has not taken %s scheduled for %s (%d minutes late).",
			patientName, medicationName, dose.Time, lateness),
		CreatedAt: now,
	}
}

// Start runs a pass immediately and then every Interval until Stop.
// Only the first call has an effect.
func (w *Watchdog) Start() {
	w.startOnce.Do(func() {
		go w.loop()
		w.logger.Info("watchdog started",
			zap.Duration("interval", w.config.Interval),
			zap.Duration("late_after", w.config.LateAfter))
	})
}

// Stop waits for the current pass to finish. It is safe without Start and
// when called more than once.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		w.startOnce.Do(func() { close(w.done) })
		<-w.done
		w.logger.Info("watchdog stopped")
	})
}

func (w *Watchdog) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		w.runLogged()
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Watchdog) runLogged() {
	// a pass always runs to completion; Stop only prevents the next one
	if _, err := w.Run(context.WithoutCancel(w.ctx)); err != nil {
		if errors.Is(err, ErrLocked) {
			w.logger.Debug("watchdog pass skipped, lock held elsewhere")
			return
		}
		w.logger.Error("watchdog pass failed", zap.Error(err))
	}
}
