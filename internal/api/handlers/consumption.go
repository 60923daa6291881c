package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/schedule"
)

// ConsumptionRequest records what happened to one dose
type ConsumptionRequest struct {
	PrescriptionID string             `json:"prescription_id"`
	Date           schedule.Date      `json:"date"`
	ScheduledTime  schedule.ClockTime `json:"scheduled_time"`
	Status         consumption.Status `json:"status"`
}

// RecordConsumption handles POST /consumption. A dose that already has an
// entry returns 409; use PUT to change its status.
func (h *Handler) RecordConsumption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConsumptionRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Status.Valid() {
		h.jsonError(w, "status must be taken or forgotten", http.StatusBadRequest)
		return
	}
	if req.Date.IsZero() {
		h.jsonError(w, "date is required", http.StatusBadRequest)
		return
	}

	rx, err := h.deps.Prescriptions.Get(ctx, req.PrescriptionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.loadPatient(ctx, rx.PatientID, true); err != nil {
		h.fail(w, r, err)
		return
	}
	if !rx.HasTime(req.ScheduledTime) {
		h.jsonError(w, "scheduled_time is not one of the prescription's times", http.StatusBadRequest)
		return
	}

	e := &consumption.Entry{
		ID:             h.newID(),
		PrescriptionID: rx.ID,
		Date:           req.Date,
		ScheduledTime:  req.ScheduledTime,
		Status:         req.Status,
		RecordedBy:     middleware.GetAccountID(ctx),
		RecordedAt:     h.deps.Clock.Now().UTC(),
	}
	if err := h.deps.Consumption.Record(ctx, e); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("dose recorded",
		zap.String("prescription_id", rx.ID),
		zap.String("dose_key", e.DoseKey()),
		zap.String("status", string(e.Status)),
	)
	writeJSON(w, http.StatusCreated, e)
}

// StatusRequest changes the status of a recorded dose
type StatusRequest struct {
	Status consumption.Status `json:"status"`
}

// UpdateConsumption handles PUT /consumption/{id}
func (h *Handler) UpdateConsumption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req StatusRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Status.Valid() {
		h.jsonError(w, "status must be taken or forgotten", http.StatusBadRequest)
		return
	}

	e, err := h.deps.Consumption.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rx, err := h.deps.Prescriptions.Get(ctx, e.PrescriptionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.loadPatient(ctx, rx.PatientID, true); err != nil {
		h.fail(w, r, err)
		return
	}

	e.Status = req.Status
	e.RecordedBy = middleware.GetAccountID(ctx)
	e.RecordedAt = h.deps.Clock.Now().UTC()
	if err := h.deps.Consumption.Update(ctx, e); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ListConsumption handles GET /patients/{id}/consumption?from&to
func (h *Handler) ListConsumption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.loadPatient(ctx, chi.URLParam(r, "id"), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	today, _ := h.today(p)
	from, to, err := dateRange(r, today)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, log, err := h.history(ctx, p, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if log == nil {
		log = []*consumption.Entry{}
	}
	writeJSON(w, http.StatusOK, log)
}
