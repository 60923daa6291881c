package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caretrack/doseguard/internal/domain/alert"
)

// ListAlerts handles GET /patients/{id}/alerts?from&to
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Alerts == nil {
		h.jsonError(w, "alert log not configured", http.StatusNotImplemented)
		return
	}
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

	list, err := h.deps.Alerts.List(ctx, alert.Filter{PatientID: p.ID, From: from, To: to})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
