package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/asystentai/backend/pkg/billing"
	"github.com/asystentai/backend/pkg/payment"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// webhook receives processor notifications. Only signature failures return a
// non-2xx status; apply failures are acked so the processor does not retry
// an event the reconciler has already logged.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	signature := r.Header.Get(h.deps.Config.WebhookSignatureHeader)
	if err := h.deps.Reconciler.HandleWebhook(r.Context(), payload, signature); err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			respondError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkoutRequest struct {
	// PlanID starts a subscription checkout for the plan.
	PlanID string `json:"plan_id,omitempty"`

	// Tokens starts a one-time token purchase. PriceID selects the
	// processor price to charge.
	Tokens  int64  `json:"tokens,omitempty"`
	PriceID string `json:"price_id,omitempty"`

	// ReferrerID credits the referring user when the purchase settles.
	ReferrerID string `json:"referrer_id,omitempty"`

	// Trial requests a free trial; honored only for whitelisted emails.
	Trial bool `json:"trial,omitempty"`
}

func (h *handlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	metadata := map[string]string{
		billing.MetaAsCompany: strconv.FormatBool(user.IsCompany()),
	}
	if req.ReferrerID != "" {
		metadata[billing.MetaReferrerID] = req.ReferrerID
	}

	checkout := payment.CheckoutRequest{
		CustomerEmail: user.Email,
		SuccessURL:    h.deps.Config.CheckoutSuccessURL,
		CancelURL:     h.deps.Config.CheckoutCancelURL,
		Metadata:      metadata,
	}

	switch {
	case req.PlanID != "":
		p, err := h.deps.Plans.Get(r.Context(), req.PlanID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		checkout.Mode = payment.ModeSubscription
		checkout.PriceID = p.PriceID
		metadata[billing.MetaPlanID] = p.ID

		if req.Trial {
			whitelisted, err := h.deps.Whitelist.Contains(r.Context(), user.Email)
			if err != nil {
				respondDomainError(w, err)
				return
			}
			if !whitelisted {
				respondError(w, http.StatusForbidden, "email is not whitelisted for a trial")
				return
			}
			checkout.TrialDays = h.deps.Config.TrialDays
			metadata[billing.MetaTrial] = "true"
		}

	case req.Tokens > 0:
		if req.PriceID == "" {
			respondError(w, http.StatusBadRequest, "price_id is required for token purchases")
			return
		}
		checkout.Mode = payment.ModePayment
		checkout.PriceID = req.PriceID
		metadata[billing.MetaTokensToAdd] = strconv.FormatInt(req.Tokens, 10)

	default:
		respondError(w, http.StatusBadRequest, "either plan_id or tokens must be set")
		return
	}

	url, err := h.deps.Payments.CreateCheckoutSession(r.Context(), checkout)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"checkout_url": url})
}
