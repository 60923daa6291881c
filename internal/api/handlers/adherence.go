package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caretrack/doseguard/internal/adherence"
	"github.com/caretrack/doseguard/internal/domain/consumption"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/schedule"
)

// DayDetail is one day's status with the per-dose breakdown
type DayDetail struct {
	Date   schedule.Date    `json:"date"`
	Status adherence.Status `json:"status"`
	Slots  []adherence.Slot `json:"slots"`
}

// ReportResponse is an adherence summary with medication labels per prescription
type ReportResponse struct {
	PatientID   string            `json:"patient_id"`
	PatientName string            `json:"patient_name"`
	Medications map[string]string `json:"medications"`
	adherence.Summary
}

// history loads every prescription of p and its log between from and to
func (h *Handler) history(ctx context.Context, p *patient.Patient, from, to schedule.Date) ([]*prescription.Prescription, []*consumption.Entry, error) {
	list, err := h.deps.Prescriptions.List(ctx, prescription.Filter{PatientIDs: []string{p.ID}})
	if err != nil {
		return nil, nil, err
	}
	if len(list) == 0 {
		return list, nil, nil
	}
	ids := make([]string, 0, len(list))
	for _, rx := range list {
		ids = append(ids, rx.ID)
	}
	log, err := h.deps.Consumption.List(ctx, consumption.Filter{PrescriptionIDs: ids, From: from, To: to})
	if err != nil {
		return nil, nil, err
	}
	return list, log, nil
}

// AdherenceRange handles GET /patients/{id}/adherence?from&to
func (h *Handler) AdherenceRange(w http.ResponseWriter, r *http.Request) {
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

	list, log, err := h.history(ctx, p, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adherence.Range(from, to, today, list, log))
}

// AdherenceDay handles GET /patients/{id}/adherence/{date}
func (h *Handler) AdherenceDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.loadPatient(ctx, chi.URLParam(r, "id"), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := schedule.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		h.jsonError(w, "invalid date", http.StatusBadRequest)
		return
	}

	list, log, err := h.history(ctx, p, date, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	today, loc := h.today(p)
	slots := adherence.SlotStatuses(date, list, log, h.deps.Clock.Now(), loc)
	if slots == nil {
		slots = []adherence.Slot{}
	}
	writeJSON(w, http.StatusOK, DayDetail{
		Date:   date,
		Status: adherence.DayStatus(date, today, list, log),
		Slots:  slots,
	})
}

// Report handles GET /patients/{id}/report?from&to
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
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

	list, log, err := h.history(ctx, p, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	medIDs := make([]string, 0, len(list))
	for _, rx := range list {
		medIDs = append(medIDs, rx.MedicationID)
	}
	meds, err := h.deps.Medications.GetMany(ctx, medIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	labels := make(map[string]string, len(list))
	for _, rx := range list {
		if m, ok := meds[rx.MedicationID]; ok {
			labels[rx.ID] = m.Label()
		}
	}

	writeJSON(w, http.StatusOK, ReportResponse{
		PatientID:   p.ID,
		PatientName: p.Name,
		Medications: labels,
		Summary:     adherence.Summarize(from, to, today, list, log),
	})
}
