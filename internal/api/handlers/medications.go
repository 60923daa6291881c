package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
)

// MedicationRequest is the request body for creating or updating a medication
type MedicationRequest struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage"`
	Unit   string `json:"unit"`
}

// ListMedications handles GET /medications
func (h *Handler) ListMedications(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Medications.ListByAccount(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateMedication handles POST /medications
func (h *Handler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var req MedicationRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := h.deps.Clock.Now().UTC()
	m := &medication.Medication{
		ID:        h.newID(),
		AccountID: middleware.GetAccountID(r.Context()),
		Name:      req.Name,
		Dosage:    req.Dosage,
		Unit:      req.Unit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Medications.Create(r.Context(), m); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetMedication handles GET /medications/{id}
func (h *Handler) GetMedication(w http.ResponseWriter, r *http.Request) {
	m, err := h.ownedMedication(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateMedication handles PUT /medications/{id}
func (h *Handler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	var req MedicationRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := h.ownedMedication(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	m.Name, m.Dosage, m.Unit = req.Name, req.Dosage, req.Unit
	m.UpdatedAt = h.deps.Clock.Now().UTC()
	if err := m.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Medications.Update(r.Context(), m); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) ownedMedication(r *http.Request) (*medication.Medication, error) {
	m, err := h.deps.Medications.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if m.AccountID != middleware.GetAccountID(r.Context()) {
		return nil, patient.ErrForbidden
	}
	return m, nil
}
