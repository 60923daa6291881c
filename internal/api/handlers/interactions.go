package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/domain/prescription"
	"github.com/caretrack/doseguard/internal/interaction"
	"github.com/caretrack/doseguard/internal/schedule"
)

// CheckRequest is the request body for an interaction check
type CheckRequest struct {
	PatientID             string `json:"patient_id"`
	MedicationName        string `json:"medication_name,omitempty"`
	MedicationID          string `json:"medication_id,omitempty"`
	ExcludePrescriptionID string `json:"exclude_prescription_id,omitempty"`
}

// CheckResponse lists the conflicts found against the patient's active medications
type CheckResponse struct {
	Medication     string                `json:"medication"`
	Groups         []string              `json:"groups"`
	CheckedAgainst int                   `json:"checked_against"`
	Highest        interaction.Severity  `json:"highest,omitempty"`
	Findings       []interaction.Finding `json:"findings"`
}

// CheckInteractions handles POST /interactions/check
func (h *Handler) CheckInteractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CheckRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" {
		h.jsonError(w, "patient_id is required", http.StatusBadRequest)
		return
	}

	p, err := h.loadPatient(ctx, req.PatientID, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name := strings.TrimSpace(req.MedicationName)
	if req.MedicationID != "" {
		med, err := h.deps.Medications.Get(ctx, req.MedicationID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !usableMedication(med, p, middleware.GetAccountID(ctx)) {
			h.fail(w, r, patient.ErrForbidden)
			return
		}
		name = med.Name
	}
	if name == "" {
		h.jsonError(w, "medication_name or medication_id is required", http.StatusBadRequest)
		return
	}

	today, _ := h.today(p)
	findings, checked, err := h.findConflicts(ctx, p.ID, name, req.ExcludePrescriptionID, today)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := CheckResponse{
		Medication:     name,
		Groups:         h.deps.Taxonomy.GroupsOf(name),
		CheckedAgainst: checked,
		Highest:        interaction.Highest(findings),
		Findings:       findings,
	}
	if resp.Groups == nil {
		resp.Groups = []string{}
	}
	if resp.Findings == nil {
		resp.Findings = []interaction.Finding{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// findConflicts runs the rule engine for candidate against the patient's
// prescriptions active on today, skipping excludeID. It also returns how many
// active medications were checked.
func (h *Handler) findConflicts(ctx context.Context, patientID, candidate, excludeID string, today schedule.Date) ([]interaction.Finding, int, error) {
	ctx, span := otel.Tracer("interaction-handler").Start(ctx, "find_conflicts")
	defer span.End()

	list, err := h.deps.Prescriptions.List(ctx, prescription.Filter{PatientIDs: []string{patientID}})
	if err != nil {
		return nil, 0, err
	}
	active := prescription.ActiveOnly(list, today, excludeID)

	ids := make([]string, 0, len(active))
	for _, p := range active {
		ids = append(ids, p.MedicationID)
	}
	meds, err := h.deps.Medications.GetMany(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	current := make([]interaction.Medication, 0, len(active))
	for _, p := range active {
		med, ok := meds[p.MedicationID]
		if !ok {
			h.logger.Warn("active prescription references unknown medication",
				zap.String("prescription_id", p.ID),
				zap.String("medication_id", p.MedicationID),
			)
			continue
		}
		current = append(current, interaction.Medication{Name: med.Name, PrescriptionID: p.ID})
	}

	findings := h.deps.Taxonomy.FindConflicts(candidate, current)

	span.SetAttributes(
		attribute.Int("active_medications", len(current)),
		attribute.Int("findings", len(findings)),
	)
	if m := h.deps.Metrics; m != nil {
		m.InteractionChecks.Inc()
		for _, f := range findings {
			m.InteractionFindings.WithLabelValues(string(f.Severity)).Inc()
		}
	}
	return findings, len(current), nil
}
