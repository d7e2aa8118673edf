package api

import (
	"net/http"
)

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.deps.Lifecycle.Cancel(r.Context(), user); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (h *handlers) changeSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.PlanID == "" {
		respondError(w, http.StatusBadRequest, "plan_id is required")
		return
	}

	if err := h.deps.Lifecycle.Change(r.Context(), user, req.PlanID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "changed", "plan_id": req.PlanID})
}
