// Package main provides the doseguard HTTP API entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/api/handlers"
	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/app"
	"github.com/caretrack/doseguard/internal/config"
	"github.com/caretrack/doseguard/internal/interaction"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/pkg/clock"
)

const serviceName = "doseguard-api"

func main() {
	var migrate bool

	rootCmd := &cobra.Command{
		Use:   "api",
		Short: "Medication adherence and interaction-check HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(migrate)
		},
	}
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "Apply schema migrations before serving")
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
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
	}
}

func runServer(migrate bool) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger
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

	stores, err := app.OpenStores(ctx, cfg, migrate, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	m, reg := app.NewMetrics()

	accounts := cfg.Accounts()
	if len(accounts) == 0 {
		logger.Warn("API_KEYS is empty; every /api/v1 request will be rejected")
	}

	h := handlers.New(handlers.Deps{
		Prescriptions:   stores.Prescriptions,
		Patients:        stores.Patients,
		Medications:     stores.Medications,
		Consumption:     stores.Consumption,
		Alerts:          stores.Alerts,
		Taxonomy:        interaction.Default(),
		Clock:           clock.New(),
		Metrics:         m,
		DefaultLocation: cfg.DefaultLocation(),
		NewID:           app.NewID,
	}, logger)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.Metrics(m))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := stores.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.HandlerFor(reg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(accounts))
		r.Mount("/", h.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting API", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": app.Version,
	})
}
