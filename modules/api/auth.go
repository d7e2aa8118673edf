package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/asystentai/backend/pkg/auth"
	"github.com/asystentai/backend/pkg/jwt"
	"github.com/asystentai/backend/pkg/ledger"
)

type authResponse struct {
	User  *ledger.User `json:"user"`
	Token string       `json:"token"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.deps.Auth.Register(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (h *handlers) registerTrial(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.deps.Auth.RegisterFreeTrial(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Always 202, regardless of whether the email exists.
	if err := h.deps.Auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.deps.Logger.ErrorContext(r.Context(), "password reset request failed", "error", err)
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.deps.Auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// currentUser resolves the authenticated user from the JWT claims. Returns
// false after writing the error response.
func (h *handlers) currentUser(w http.ResponseWriter, r *http.Request) (*ledger.User, bool) {
	claims, ok := jwt.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing credentials")
		return nil, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return nil, false
	}
	user, err := h.deps.Users.FindByID(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return nil, false
	}
	return user, true
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	txs, err := h.deps.Ledger.Transactions(r.Context(), user.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *handlers) listPayments(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	payments, err := h.deps.Ledger.Payments(r.Context(), user.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"payments": payments})
}
