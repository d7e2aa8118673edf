package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/asystentai/backend/pkg/auth"
	"github.com/asystentai/backend/pkg/conversation"
	"github.com/asystentai/backend/pkg/jwt"
	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/metering"
	"github.com/asystentai/backend/pkg/payment"
	"github.com/asystentai/backend/pkg/plan"
	"github.com/asystentai/backend/pkg/subscription"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondDomainError maps sentinel errors from the domain packages to HTTP
// statuses. Anything unmapped is a 500 with a generic message.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidResetToken),
		errors.Is(err, jwt.ErrInvalidToken),
		errors.Is(err, jwt.ErrExpiredToken):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrNotWhitelisted),
		errors.Is(err, conversation.ErrNotConversationOwner):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, conversation.ErrConversationNotFound),
		errors.Is(err, payment.ErrCustomerNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrUserAlreadyExists),
		errors.Is(err, plan.ErrPlanAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, metering.ErrAccountBlocked):
		respondError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, subscription.ErrNoActiveSubscription):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, subscription.ErrPropagationTimeout):
		respondError(w, http.StatusGatewayTimeout, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
