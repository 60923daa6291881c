// Package handlers provides HTTP handlers for the doseguard API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/domain/alert"
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/interaction"
	"github.com/caretrack/doseguard/internal/observability/metrics"
	"github.com/caretrack/doseguard/internal/schedule"
	"github.com/caretrack/doseguard/pkg/clock"
)

// maxRangeDays bounds calendar and report queries
const maxRangeDays = 366

// Deps are the stores and services the handlers use
type Deps struct {
	Prescriptions   prescription.Repository
	Patients        patient.Repository
	Medications     medication.Repository
	Consumption     consumption.Repository
	Alerts          alert.Repository
	Taxonomy        *interaction.Taxonomy
	Clock           clock.Clock
	Metrics         *metrics.Metrics
	DefaultLocation *time.Location
	NewID           func() string
}

// Handler serves the /api/v1 routes
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// New creates a handler. Taxonomy, clock and location fall back to the defaults.
func New(deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Taxonomy == nil {
		deps.Taxonomy = interaction.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.DefaultLocation == nil {
		deps.DefaultLocation = time.UTC
	}
	return &Handler{deps: deps, logger: logger}
}

// Routes returns the handler routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/interactions/check", h.CheckInteractions)

	r.Route("/patients", func(r chi.Router) {
		r.Get("/", h.ListPatients)
		r.Post("/", h.CreatePatient)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetPatient)
			r.Put("/", h.UpdatePatient)
			r.Get("/shares", h.ListShares)
			r.Post("/shares", h.CreateShare)
			r.Put("/shares/{shareID}", h.UpdateShare)
			r.Get("/prescriptions", h.ListPrescriptions)
			r.Get("/schedule", h.Schedule)
			r.Get("/adherence", h.AdherenceRange)
			r.Get("/adherence/{date}", h.AdherenceDay)
			r.Get("/report", h.Report)
			r.Get("/consumption", h.ListConsumption)
			r.Get("/alerts", h.ListAlerts)
		})
	})

	r.Route("/medications", func(r chi.Router) {
		r.Get("/", h.ListMedications)
		r.Post("/", h.CreateMedication)
		r.Get("/{id}", h.GetMedication)
		r.Put("/{id}", h.UpdateMedication)
	})

	r.Route("/prescriptions", func(r chi.Router) {
		r.Post("/", h.CreatePrescription)
		r.Get("/{id}", h.GetPrescription)
		r.Put("/{id}", h.UpdatePrescription)
		r.Delete("/{id}", h.DeletePrescription)
	})

	r.Route("/consumption", func(r chi.Router) {
		r.Post("/", h.RecordConsumption)
		r.Put("/{id}", h.UpdateConsumption)
	})

	return r
}

func (h *Handler) newID() string {
	if h.deps.NewID != nil {
		return h.deps.NewID()
	}
	return ""
}

// loadPatient returns the patient when the caller may read it, or modify it when write is set
func (h *Handler) loadPatient(ctx context.Context, id string, write bool) (*patient.Patient, error) {
	p, err := h.deps.Patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	account := middleware.GetAccountID(ctx)
	if p.AccountID == account {
		return p, nil
	}
	shares, err := h.deps.Patients.ListShares(ctx, id)
	if err != nil {
		return nil, err
	}
	if !patient.CanAccess(p, shares, account, write) {
		return nil, patient.ErrForbidden
	}
	return p, nil
}

// today is the calendar date in the patient's time zone
func (h *Handler) today(p *patient.Patient) (schedule.Date, *time.Location) {
	loc := p.Location(h.deps.DefaultLocation)
	return schedule.DateIn(h.deps.Clock.Now(), loc), loc
}

// dateRange reads ?from&to, defaulting to the 30 days ending today
func dateRange(r *http.Request, today schedule.Date) (schedule.Date, schedule.Date, error) {
	from, to := today.AddDays(-29), today
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = schedule.ParseDate(s); err != nil {
			return from, to, errors.New("invalid from date")
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = schedule.ParseDate(s); err != nil {
			return from, to, errors.New("invalid to date")
		}
	}
	if to.Before(from) {
		return from, to, errors.New("to is before from")
	}
	if from.DaysUntil(to) >= maxRangeDays {
		return from, to, errors.New("date range too long")
	}
	return from, to, nil
}

// fail maps domain sentinels to status codes
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, patient.ErrNotFound), errors.Is(err, prescription.ErrNotFound),
		errors.Is(err, medication.ErrNotFound), errors.Is(err, consumption.ErrNotFound):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, patient.ErrForbidden):
		h.jsonError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, patient.ErrInvalidInput), errors.Is(err, prescription.ErrInvalidInput),
		errors.Is(err, medication.ErrInvalidInput), errors.Is(err, consumption.ErrInvalidInput):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, consumption.ErrAlreadyRecorded):
		h.jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
		)
		h.jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
