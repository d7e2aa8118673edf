package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/plan"
)

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.deps.Plans.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *handlers) getPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Plans.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *handlers) createPlan(w http.ResponseWriter, r *http.Request) {
	var p plan.Plan
	if err := decodeJSON(r, &p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.deps.Plans.Create(r.Context(), &p); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *handlers) updatePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string       `json:"name"`
		MonthlyTokens int64        `json:"monthly_tokens"`
		Price         ledger.Money `json:"price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.deps.Plans.Update(r.Context(), chi.URLParam(r, "planID"), req.Name, req.MonthlyTokens, req.Price)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *handlers) deletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Plans.Delete(r.Context(), chi.URLParam(r, "planID")); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) assignPlan(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.deps.Plans.AssignToUser(r.Context(), userID, chi.URLParam(r, "planID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *handlers) addWhitelistEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.deps.Whitelist.Add(r.Context(), req.Email); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"email": req.Email})
}

func (h *handlers) listWhitelist(w http.ResponseWriter, r *http.Request) {
	emails, err := h.deps.Whitelist.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"emails": emails})
}
