// Package reminder runs the client-side dose reminder loop: every minute it
// looks at today's schedule and notifies about doses that are about to be due.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/schedule"
	"github.com/caretrack/doseguard/pkg/clock"
)

// Config holds scheduler configuration
type Config struct {
	// Interval between ticks
	Interval time.Duration
	// Lead is how far ahead of its due time a dose is announced (inclusive)
	Lead time.Duration
	// Grace is how long after its due time a dose is still announced (exclusive)
	Grace time.Duration
	// Voice also reads each reminder aloud
	Voice bool
}

// DefaultConfig returns the standard reminder window: up to 15 minutes before
// a dose and less than 5 minutes after it.
func DefaultConfig() Config {
	return Config{
		Interval: 60 * time.Second,
		Lead:     15 * time.Minute,
		Grace:    5 * time.Minute,
	}
}

// Scheduler announces upcoming doses for one session
type Scheduler struct {
	config   Config
	notifier Notifier
	speaker  Speaker
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	items  []Item
	log    consumption.Index
	source LogSource

	notified *NotifiedSet

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a scheduler. speaker and m may be nil.
func New(cfg Config, notifier Notifier, speaker Speaker, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if notifier == nil {
		return nil, fmt.Errorf("reminder: notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Lead <= 0 {
		cfg.Lead = def.Lead
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:   cfg,
		notifier: notifier,
		speaker:  speaker,
		clock:    clk,
		metrics:  m,
		logger:   logger,
		log:      consumption.Index{},
		notified: NewNotifiedSet(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// SetSnapshot replaces the prescriptions and log the next tick works from
func (s *Scheduler) SetSnapshot(snap *Snapshot) {
	if snap == nil {
		snap = &Snapshot{}
	}
	idx := consumption.NewIndex(snap.Log)

	s.mu.Lock()
	s.items = snap.Items
	s.log = idx
	s.mu.Unlock()
}

// LogSource reads the current consumption log of a set of prescriptions
type LogSource interface {
	LoadLog(ctx context.Context, prescriptionIDs []string, now time.Time) ([]*consumption.Entry, error)
}

// SetLogSource makes every tick re-read the log of the snapshot's
// prescriptions, so a dose logged between snapshots is never reminded.
func (s *Scheduler) SetLogSource(src LogSource) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

// Due reports whether a dose due at due is inside the reminder window at now
func (s *Scheduler) Due(due, now time.Time) bool {
	until := due.Sub(now)
	return until > -s.config.Grace && until <= s.config.Lead
}

// Tick checks today's doses once and returns how many reminders it delivered.
// Ticks must not run concurrently; Start guarantees that.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	items, logged, source := s.items, s.log, s.source
	s.mu.Unlock()

	now := s.clock.Now()
	if source != nil && len(items) > 0 {
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.Prescription.ID)
		}
		entries, err := source.LoadLog(ctx, ids, now)
		if err != nil {
			s.logger.Warn("could not refresh consumption log; using the last one", zap.Error(err))
		} else {
			logged = consumption.NewIndex(entries)
			s.mu.Lock()
			s.log = logged
			s.mu.Unlock()
		}
	}

	sent := 0
	for _, item := range items {
		loc := item.Location
		if loc == nil {
			loc = time.Local
		}
		today := schedule.DateIn(now, loc)

		for _, dose := range schedule.ExpandDay(item.Prescription.Regimen(), today) {
			// taken or forgotten, a logged dose needs no reminder
			if logged.Has(dose) || s.notified.Has(dose) {
				continue
			}
			if !s.Due(dose.At(loc), now) {
				continue
			}
			if s.remind(ctx, item, dose) {
				sent++
			}
		}
	}

	s.notified.Prune(schedule.DateIn(now, time.UTC).AddDays(-2))
	return sent
}

func (s *Scheduler) remind(ctx context.Context, item Item, dose schedule.Dose) bool {
	note := Notification{
		Tag:   dose.Key(),
		Title: fmt.Sprintf("Time for %s", item.MedicationName),
		Body:  fmt.Sprintf("%s: %s at %s", item.PatientName, item.MedicationName, dose.Time),
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		// not marked, so the next tick inside the window tries again
		if s.metrics != nil {
			s.metrics.RemindersFailed.Inc()
		}
		s.logger.Error("reminder delivery failed",
			zap.String("dose_key", note.Tag),
			zap.Error(err))
		return false
	}
	s.notified.Add(dose)
	if s.metrics != nil {
		s.metrics.RemindersSent.Inc()
	}

	if s.config.Voice && s.speaker != nil {
		phrase := fmt.Sprintf("Time for %s to take %s, scheduled at %s.", item.PatientName, item.MedicationName, dose.Time)
		if err := s.speaker.Speak(ctx, phrase); err != nil {
			s.logger.Warn("could not speak reminder",
				zap.String("dose_key", note.Tag),
				zap.Error(err))
		} else if s.metrics != nil {
			s.metrics.RemindersSpoken.Inc()
		}
	}
	return true
}

// Start ticks immediately and then every Interval until Stop
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		go s.loop()
		s.logger.Info("reminder scheduler started", zap.Duration("interval", s.config.Interval))
	})
}

// Stop cancels the timer and waits for an in-flight tick
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
		s.logger.Info("reminder scheduler stopped")
	})
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.Tick(s.ctx)
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
