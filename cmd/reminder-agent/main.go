// Package main provides the client-side reminder agent. One agent runs per
// caregiving session and announces each upcoming dose at most once.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/app"
	"github.com/caretrack/doseguard/internal/config"
	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/infrastructure/redpanda"
	"github.com/caretrack/doseguard/internal/reminder"
	"github.com/caretrack/doseguard/pkg/clock"
)

type options struct {
	account     string
	voice       bool
	alertFeed   bool
	metricsPort string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "reminder-agent",
		Short: "Announce upcoming doses for one caregiving account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, cmd.Flags().Changed("voice"))
		},
	}
	rootCmd.Flags().StringVar(&opts.account, "account", "", "Account whose patients are followed")
	rootCmd.Flags().BoolVar(&opts.voice, "voice", false, "Read reminders aloud (defaults to REMINDER_VOICE)")
	rootCmd.Flags().BoolVar(&opts.alertFeed, "alert-feed", false, "Also show missed-dose alerts from the alert topic")
	rootCmd.Flags().StringVar(&opts.metricsPort, "metrics-port", "", "Serve reminder metrics on this port (disabled when empty)")
	rootCmd.MarkFlagRequired("account")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options, voiceSet bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("account_id", opts.account))

	if !voiceSet {
		opts.voice = cfg.ReminderVoice
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	m, metricsSrv := app.OptionalMetrics(opts.metricsPort, logger)
	if metricsSrv != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(ctx)
		}()
	}
	clk := clock.New()
	notifier := reminder.NewLogNotifier(logger)

	var speaker reminder.Speaker
	if opts.voice {
		cs, err := reminder.NewCommandSpeaker(cfg.ReminderSpeakCommand, 0)
		if err != nil {
			logger.Warn("voice disabled", zap.Error(err))
			opts.voice = false
		} else {
			speaker = cs
		}
	}

	rcfg := reminder.DefaultConfig()
	rcfg.Interval = cfg.ReminderInterval
	rcfg.Voice = opts.voice
	sched, err := reminder.New(rcfg, notifier, speaker, clk, m, logger)
	if err != nil {
		return err
	}

	loader := &reminder.Loader{
		Patients:        stores.Patients,
		Prescriptions:   stores.Prescriptions,
		Medications:     stores.Medications,
		Consumption:     stores.Consumption,
		DefaultLocation: cfg.DefaultLocation(),
	}
	refresh := func() error {
		snap, err := loader.Load(ctx, opts.account, clk.Now())
		if err != nil {
			return err
		}
		sched.SetSnapshot(snap)
		logger.Debug("snapshot refreshed",
			zap.Int("prescriptions", len(snap.Items)),
			zap.Int("log_entries", len(snap.Log)))
		return nil
	}
	if err := refresh(); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	sched.SetLogSource(loader)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.ReminderRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := refresh(); err != nil {
					logger.Warn("snapshot refresh failed; keeping the previous one", zap.Error(err))
				}
			}
		}
	}()

	sched.Start()

	var consumer *redpanda.Consumer
	if opts.alertFeed {
		consumer, err = newAlertFeed(cfg, opts.account, notifier, logger)
		if err != nil {
			sched.Stop()
			cancel()
			wg.Wait()
			return err
		}
		consumer.Start()
	}

	logger.Info("reminder agent started",
		zap.Bool("voice", opts.voice),
		zap.Bool("alert_feed", opts.alertFeed))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	if consumer != nil {
		consumer.Stop()
		stats := consumer.Stats()
		logger.Info("alert feed stopped",
			zap.Int64("messages_read", stats.MessagesRead),
			zap.Int64("errors", stats.ErrorCount))
	}
	sched.Stop()
	cancel()
	wg.Wait()
	return nil
}

// newAlertFeed follows the caregiver alert topic and shows the alerts
// addressed to account as notifications tagged by dose key.
func newAlertFeed(cfg *config.Config, account string, notifier reminder.Notifier, logger *zap.Logger) (*redpanda.Consumer, error) {
	ccfg := redpanda.DefaultConsumerConfig()
	ccfg.Brokers = cfg.KafkaBrokers
	ccfg.GroupID = "reminder-agent-" + account
	ccfg.Topics = []string{cfg.AlertTopic}

	handler := redpanda.AlertHandler(account, func(ctx context.Context, n *alert.Notification) error {
		return notifier.Notify(ctx, reminder.Notification{
			Tag:   "alert-" + n.Key,
			Title: n.Title,
			Body:  n.Body,
		})
	}, logger)

	consumer, err := redpanda.NewConsumer(ccfg, handler, logger)
	if err != nil {
		return nil, fmt.Errorf("create alert consumer: %w", err)
	}
	return consumer, nil
}
