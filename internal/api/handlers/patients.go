package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/caretrack/doseguard/internal/api/middleware"
	"github.com/caretrack/doseguard/internal/domain/patient"
	"github.com/caretrack/doseguard/internal/schedule"
)

// PatientRequest is the request body for creating or updating a patient
type PatientRequest struct {
	Name      string        `json:"name"`
	BirthDate schedule.Date `json:"birth_date"`
	TimeZone  string        `json:"time_zone"`
}

// ListPatients handles GET /patients: owned patients, then accepted shares
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := middleware.GetAccountID(ctx)

	owned, err := h.deps.Patients.ListByAccount(ctx, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shares, err := h.deps.Patients.ListSharesByGrantee(ctx, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := append([]*patient.Patient{}, owned...)
	for _, s := range shares {
		if s.Status != patient.ShareAccepted {
			continue
		}
		p, err := h.deps.Patients.Get(ctx, s.PatientID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreatePatient handles POST /patients
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PatientRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := h.deps.Clock.Now().UTC()
	p := &patient.Patient{
		ID:        h.newID(),
		AccountID: middleware.GetAccountID(ctx),
		Name:      req.Name,
		BirthDate: req.BirthDate,
		TimeZone:  req.TimeZone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Patients.Create(ctx, p); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("patient created", zap.String("patient_id", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

// GetPatient handles GET /patients/{id}
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.loadPatient(r.Context(), chi.URLParam(r, "id"), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePatient handles PUT /patients/{id}
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PatientRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.loadPatient(ctx, chi.URLParam(r, "id"), true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p.Name = req.Name
	p.BirthDate = req.BirthDate
	p.TimeZone = req.TimeZone
	p.UpdatedAt = h.deps.Clock.Now().UTC()
	if err := p.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.Patients.Update(ctx, p); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ShareRequest creates a share or changes one. Only the owner may set Access;
// the grantee may accept, and either side may revoke.
type ShareRequest struct {
	GranteeAccountID string              `json:"grantee_account_id,omitempty"`
	Access           patient.Access      `json:"access,omitempty"`
	Status           patient.ShareStatus `json:"status,omitempty"`
}

// ListShares handles GET /patients/{id}/shares
func (h *Handler) ListShares(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.loadPatient(ctx, chi.URLParam(r, "id"), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shares, err := h.deps.Patients.ListShares(ctx, p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

// CreateShare handles POST /patients/{id}/shares. The share starts invited.
func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := middleware.GetAccountID(ctx)

	var req ShareRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.deps.Patients.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if p.AccountID != account {
		h.fail(w, r, patient.ErrForbidden)
		return
	}
	if req.GranteeAccountID == "" || req.GranteeAccountID == account {
		h.jsonError(w, "grantee_account_id must name another account", http.StatusBadRequest)
		return
	}
	if req.Access == "" {
		req.Access = patient.AccessRead
	}
	if !req.Access.Valid() {
		h.jsonError(w, "access must be read or read_write", http.StatusBadRequest)
		return
	}

	now := h.deps.Clock.Now().UTC()
	s := &patient.Share{
		ID:               h.newID(),
		PatientID:        p.ID,
		GranteeAccountID: req.GranteeAccountID,
		Access:           req.Access,
		Status:           patient.ShareInvited,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.deps.Patients.CreateShare(ctx, s); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// UpdateShare handles PUT /patients/{id}/shares/{shareID}
func (h *Handler) UpdateShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := middleware.GetAccountID(ctx)

	var req ShareRequest
	if err := decode(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.deps.Patients.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	shares, err := h.deps.Patients.ListShares(ctx, p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var s *patient.Share
	for _, candidate := range shares {
		if candidate.ID == chi.URLParam(r, "shareID") {
			s = candidate
			break
		}
	}
	if s == nil {
		h.jsonError(w, "share not found", http.StatusNotFound)
		return
	}

	owner := p.AccountID == account
	grantee := s.GranteeAccountID == account
	if !owner && !grantee {
		h.fail(w, r, patient.ErrForbidden)
		return
	}

	if req.Access != "" {
		if !owner {
			h.fail(w, r, patient.ErrForbidden)
			return
		}
		if !req.Access.Valid() {
			h.jsonError(w, "access must be read or read_write", http.StatusBadRequest)
			return
		}
		s.Access = req.Access
	}
	switch req.Status {
	case "":
	case patient.ShareRevoked:
		s.Status = req.Status
	case patient.ShareAccepted:
		if !grantee || s.Status != patient.ShareInvited {
			h.jsonError(w, "only the invited grantee can accept a share", http.StatusForbidden)
			return
		}
		s.Status = req.Status
	default:
		h.jsonError(w, "status must be accepted or revoked", http.StatusBadRequest)
		return
	}

	s.UpdatedAt = h.deps.Clock.Now().UTC()
	if err := h.deps.Patients.UpdateShare(ctx, s); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("share updated",
		zap.String("patient_id", p.ID),
		zap.String("share_id", s.ID),
		zap.String("status", string(s.Status)),
	)
	writeJSON(w, http.StatusOK, s)
}
