// Package app wires configuration to stores, tracing and the metrics listener
// for the doseguard binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/config"
	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/infrastructure/memory"
	"github.com/caretrack/doseguard/internal/infrastructure/postgres"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/observability/tracing"
)

// Version is reported in traces and health checks
const Version = "1.0.0"

// Stores is the record store selected by STORE
type Stores struct {
	Prescriptions prescription.Repository
	Patients      patient.Repository
	Medications   medication.Repository
	Consumption   consumption.Repository
	Alerts        alert.Repository
	// Pool is nil for the memory store
	Pool *pgxpool.Pool
}

// Ping checks the database; the memory store is always ready
func (s *Stores) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases the pool
func (s *Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStores connects to the configured store. The postgres schema is
// migrated first when migrate is set.
func OpenStores(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*Stores, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory store; data is lost on exit")
		m := memory.NewStore()
		return &Stores{
			Prescriptions: m.Prescriptions,
			Patients:      m.Patients,
			Medications:   m.Medications,
			Consumption:   m.Consumption,
			Alerts:        m.Alerts,
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	if migrate {
		if err := postgres.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	pg := postgres.NewStore(pool)
	return &Stores{
		Prescriptions: pg.Prescriptions,
		Patients:      pg.Patients,
		Medications:   pg.Medications,
		Consumption:   pg.Consumption,
		Alerts:        pg.Alerts,
		Pool:          pool,
	}, nil
}

// RunMigrations applies pending schema migrations and exits
func RunMigrations(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Store != config.StorePostgres {
		return errors.New("migrations only apply to STORE=postgres")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 2, 0)
	if err != nil {
		return err
	}
	defer pool.Close()
	return postgres.Migrate(ctx, pool, logger)
}

// InitTracing installs the OTLP exporter when TRACING_ENABLED is set
func InitTracing(ctx context.Context, cfg *config.Config, service string) (*tracing.Provider, error) {
	tc := tracing.DefaultConfig(service)
	tc.Enabled = cfg.TracingEnabled
	tc.ServiceVersion = Version
	tc.Environment = cfg.Env
	tc.OTLPEndpoint = cfg.OTLPEndpoint
	tc.SampleRate = cfg.TraceSampleRate
	return tracing.Init(ctx, tc)
}

// NewMetrics registers the application metrics on a fresh registry that also
// carries the Go and process collectors
func NewMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), reg
}

// ServeMetrics exposes /metrics on port in the background
func ServeMetrics(port string, g prometheus.Gatherer, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(g))
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("port", port))
	return srv
}

// OptionalMetrics registers metrics and serves them on port. An empty port
// disables both and returns nil metrics, which every component accepts.
func OptionalMetrics(port string, logger *zap.Logger) (*metrics.Metrics, *http.Server) {
	if port == "" {
		return nil, nil
	}
	m, reg := NewMetrics()
	return m, ServeMetrics(port, reg, logger)
}

// NewID returns a random UUID for new records
func NewID() string {
	return uuid.NewString()
}
