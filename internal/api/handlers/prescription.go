package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/domain/medication"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/interaction"
	"github.com/caretrack/doseguard/internal/schedule"
)

// PrescriptionRequest is the request body for creating or updating a prescription
type PrescriptionRequest struct {
	PatientID     string               `json:"patient_id"`
	MedicationID  string               `json:"medication_id"`
	Frequency     string               `json:"frequency"`
	Times         []schedule.ClockTime `json:"times"`
	StartDate     schedule.Date        `json:"start_date"`
	EndDate       schedule.Date        `json:"end_date"`
	ContinuousUse bool                 `json:"continuous_use"`
	DoseAmount    float64              `json:"dose_amount"`
	Notes         string               `json:"notes,omitempty"`
	// AcknowledgeInteractions saves the prescription even when conflicts are found
	AcknowledgeInteractions bool `json:"acknowledge_interactions"`
}

// PrescriptionResponse echoes the stored prescription with any acknowledged conflicts
type PrescriptionResponse struct {
	Prescription *prescription.Prescription `json:"prescription"`
	Findings     []interaction.Finding      `json:"findings,omitempty"`
}

// ConflictResponse is returned with 409 when unacknowledged conflicts block a save
type ConflictResponse struct {
	Error    string                `json:"error"`
	Highest  interaction.Severity  `json:"highest"`
	Findings []interaction.Finding `json:"findings"`
}

// CreatePrescription handles POST /prescriptions
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("prescription-handler").Start(r.Context(), "create_prescription")
	defer span.End()

	var req PrescriptionRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := h.deps.Clock.Now().UTC()
	p := &prescription.Prescription{
		ID:        h.newID(),
		AccountID: middleware.GetAccountID(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyRequest(p, &req)
	span.SetAttributes(attribute.String("prescription_id", p.ID))

	findings, ok := h.prepare(ctx, w, r, p, req.AcknowledgeInteractions)
	if !ok {
		return
	}

	if err := h.deps.Prescriptions.Create(ctx, p); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("prescription created",
		zap.String("prescription_id", p.ID),
		zap.String("patient_id", p.PatientID),
		zap.Int("acknowledged_findings", len(findings)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)
	writeJSON(w, http.StatusCreated, PrescriptionResponse{Prescription: p, Findings: findings})
}

// UpdatePrescription handles PUT /prescriptions/{id}. The patient cannot change.
func (h *Handler) UpdatePrescription(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("prescription-handler").Start(r.Context(), "update_prescription")
	defer span.End()
	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("prescription_id", id))

	var req PrescriptionRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.deps.Prescriptions.Get(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.PatientID != "" && req.PatientID != p.PatientID {
		h.jsonError(w, "patient_id cannot change", http.StatusBadRequest)
		return
	}
	req.PatientID = p.PatientID
	applyRequest(p, &req)
	p.UpdatedAt = h.deps.Clock.Now().UTC()

	findings, ok := h.prepare(ctx, w, r, p, req.AcknowledgeInteractions)
	if !ok {
		return
	}

	if err := h.deps.Prescriptions.Update(ctx, p); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("prescription updated",
		zap.String("prescription_id", p.ID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)
	writeJSON(w, http.StatusOK, PrescriptionResponse{Prescription: p, Findings: findings})
}

// prepare validates p, checks write access and runs the interaction check.
// It writes the response and returns false when the save must not go ahead.
func (h *Handler) prepare(ctx context.Context, w http.ResponseWriter, r *http.Request, p *prescription.Prescription, acknowledged bool) ([]interaction.Finding, bool) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		h.fail(w, r, err)
		return nil, false
	}

	pat, err := h.loadPatient(ctx, p.PatientID, true)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	med, err := h.deps.Medications.Get(ctx, p.MedicationID)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	if !usableMedication(med, pat, middleware.GetAccountID(ctx)) {
		h.fail(w, r, patient.ErrForbidden)
		return nil, false
	}

	today, _ := h.today(pat)
	findings, _, err := h.findConflicts(ctx, pat.ID, med.Name, p.ID, today)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	if len(findings) > 0 && !acknowledged {
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:    "interactions found; resubmit with acknowledge_interactions to save",
			Highest:  interaction.Highest(findings),
			Findings: findings,
		})
		return nil, false
	}
	return findings, true
}

// usableMedication allows the caller's own catalogue and the patient owner's
func usableMedication(m *medication.Medication, p *patient.Patient, accountID string) bool {
	return m.AccountID == accountID || m.AccountID == p.AccountID
}

func applyRequest(p *prescription.Prescription, req *PrescriptionRequest) {
	p.PatientID = req.PatientID
	p.MedicationID = req.MedicationID
	p.Frequency = req.Frequency
	p.Times = append([]schedule.ClockTime(nil), req.Times...)
	p.StartDate = req.StartDate
	p.EndDate = req.EndDate
	p.ContinuousUse = req.ContinuousUse
	p.DoseAmount = req.DoseAmount
	p.Notes = req.Notes
}

// GetPrescription handles GET /prescriptions/{id}
func (h *Handler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Prescriptions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.loadPatient(r.Context(), p.PatientID, false); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePrescription handles DELETE /prescriptions/{id}. The consumption log is kept.
func (h *Handler) DeletePrescription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.deps.Prescriptions.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.loadPatient(ctx, p.PatientID, true); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Prescriptions.Delete(ctx, p.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("prescription deleted",
		zap.String("prescription_id", p.ID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// ListPrescriptions handles GET /patients/{id}/prescriptions; ?active=true keeps
// those active today
func (h *Handler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.loadPatient(ctx, chi.URLParam(r, "id"), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	f := prescription.Filter{PatientIDs: []string{p.ID}}
	if r.URL.Query().Get("active") == "true" {
		f.ActiveOn, _ = h.today(p)
	}
	list, err := h.deps.Prescriptions.List(ctx, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ScheduledDose is one expected dose in a schedule listing
type ScheduledDose struct {
	Key            string             `json:"key"`
	PrescriptionID string             `json:"prescription_id"`
	MedicationID   string             `json:"medication_id"`
	MedicationName string             `json:"medication_name"`
	DoseAmount     float64            `json:"dose_amount"`
	Date           schedule.Date      `json:"date"`
	Time           schedule.ClockTime `json:"time"`
}

// Schedule handles GET /patients/{id}/schedule?from&to
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.loadPatient(ctx, chi.URLParam(r, "id"), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	today, _ := h.today(p)
	from, to := today, today
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		if from, to, err = dateRange(r, today); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	list, err := h.deps.Prescriptions.List(ctx, prescription.Filter{PatientIDs: []string{p.ID}, ActiveOn: from})
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

	out := make([]ScheduledDose, 0)
	for _, rx := range list {
		name := ""
		if m, ok := meds[rx.MedicationID]; ok {
			name = m.Label()
		}
		for _, d := range schedule.Expand(rx.Regimen(), from, to) {
			out = append(out, ScheduledDose{
				Key:            d.Key(),
				PrescriptionID: rx.ID,
				MedicationID:   rx.MedicationID,
				MedicationName: name,
				DoseAmount:     rx.DoseAmount,
				Date:           d.Date,
				Time:           d.Time,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].PrescriptionID < out[j].PrescriptionID
	})
	writeJSON(w, http.StatusOK, out)
}
