// Package main provides the missed-dose watchdog entry point.
// It scans every active prescription and alerts caregivers about late doses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/app"
	"github.com/caretrack/doseguard/internal/config"
	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/infrastructure/postgres"
	"github.com/caretrack/doseguard/internal/infrastructure/redpanda"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/watchdog"
	"github.com/caretrack/doseguard/pkg/circuitbreaker"
	"github.com/caretrack/doseguard/pkg/clock"
)

const serviceName = "doseguard-watchdog"

type options struct {
	once    bool
	migrate bool
	sink    string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Detect missed doses and alert caregivers once per dose",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	rootCmd.Flags().BoolVar(&opts.once, "once", false, "Run a single pass and exit")
	rootCmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Apply schema migrations before starting")
	rootCmd.Flags().StringVar(&opts.sink, "sink", "kafka", "Alert delivery: kafka or log")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return app.RunMigrations(cmd.Context(), cfg, logger)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := app.InitTracing(ctx, cfg, serviceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	stores, err := app.OpenStores(ctx, cfg, opts.migrate, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	m, reg := app.NewMetrics()

	deliverer, closeSink, err := newDeliverer(ctx, cfg, opts.sink, m, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	deps := watchdog.Deps{
		Prescriptions: stores.Prescriptions,
		Patients:      stores.Patients,
		Medications:   stores.Medications,
		Consumption:   stores.Consumption,
		Alerts:        stores.Alerts,
		Deliverer:     deliverer,
		Clock:         clock.New(),
		Metrics:       m,
		NewID:         app.NewID,
	}
	if stores.Pool != nil {
		deps.Locker = postgres.NewAdvisoryLock(stores.Pool, serviceName, logger)
	}

	wcfg := watchdog.DefaultConfig()
	wcfg.LateAfter = cfg.WatchdogLateAfter
	wcfg.Workers = cfg.WatchdogWorkers
	wcfg.Interval = cfg.WatchdogInterval
	wcfg.DefaultLocation = cfg.DefaultLocation()

	wd, err := watchdog.New(wcfg, deps, logger)
	if err != nil {
		return err
	}

	if opts.once {
		report, err := wd.Run(ctx)
		if errors.Is(err, watchdog.ErrLocked) {
			logger.Info("another pass is running; nothing to do")
			return nil
		}
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	metricsSrv := app.ServeMetrics(cfg.MetricsPort, reg, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(ctx)
	}()

	wd.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	wd.Stop()
	return nil
}

// newDeliverer builds the alert sink. The kafka sink makes sure the alert
// topic exists and guards the producer with a circuit breaker.
func newDeliverer(ctx context.Context, cfg *config.Config, sink string, m *metrics.Metrics, logger *zap.Logger) (alert.Deliverer, func(), error) {
	switch sink {
	case "log":
		return alert.DelivererFunc(func(ctx context.Context, n *alert.Notification) error {
			logger.Info("caregiver alert",
				zap.String("dose_key", n.Key),
				zap.String("patient_id", n.PatientID),
				zap.Strings("recipients", n.Recipients),
				zap.Int("lateness_minutes", n.LatenessMinutes),
				zap.String("body", n.Body))
			return nil
		}), func() {}, nil
	case "kafka":
	default:
		return nil, nil, fmt.Errorf("unknown sink %q, want kafka or log", sink)
	}

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create topic admin: %w", err)
	}
	err = admin.EnsureTopics(ctx, cfg.AlertTopic)
	admin.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("ensure alert topic: %w", err)
	}

	pcfg := redpanda.DefaultProducerConfig()
	pcfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(pcfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create producer: %w", err)
	}
	if err := producer.Ping(ctx); err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("ping brokers: %w", err)
	}
	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	bcfg := circuitbreaker.DefaultConfig("caregiver-alerts")
	bcfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(to.Value())
	}
	breaker, err := circuitbreaker.New(bcfg, logger)
	if err != nil {
		producer.Close()
		return nil, nil, err
	}

	publisher := redpanda.NewAlertPublisher(producer, cfg.AlertTopic, breaker, m, app.NewID, logger)
	closeFn := func() {
		stats := producer.Stats()
		logger.Info("alert producer closed",
			zap.Int64("messages_sent", stats.MessagesSent),
			zap.Int64("bytes_sent", stats.BytesSent),
			zap.Int64("errors", stats.ErrorCount))
		producer.Close()
	}
	return publisher, closeFn, nil
}
