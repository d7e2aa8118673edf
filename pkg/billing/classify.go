package billing

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/asystentai/backend/pkg/payment"
)

// Metadata keys attached to checkout sessions and echoed back on webhooks.
// Checkout creation and webhook reconciliation share these; the processor
// serializes every value as a string, booleans included.
const (
	MetaPlanID      = "plan_id"
	MetaTokensToAdd = "tokens_to_add"
	MetaReferrerID  = "referrer_id"
	MetaTrial       = "trial"
	MetaAsCompany   = "asCompany"
)

type action int

const (
	actionIgnore action = iota
	actionActivation
	actionOneTime
	actionRenewal
)

// intent is the normalized outcome of classifying a webhook event: what to
// apply and the metadata already parsed into native types.
type intent struct {
	action      action
	planID      string
	tokensToAdd int64
	referrerID  string
	trial       bool
	asCompany   bool
}

// classify maps a verified event to a billing intent. Unknown event kinds and
// checkouts without billing metadata are ignored.
func (r *Reconciler) classify(ctx context.Context, event *payment.WebhookEvent) intent {
	in := intent{
		planID:     event.Metadata[MetaPlanID],
		referrerID: event.Metadata[MetaReferrerID],
		trial:      r.metaBool(ctx, event, MetaTrial),
		asCompany:  r.metaBool(ctx, event, MetaAsCompany),
	}

	if raw, ok := event.Metadata[MetaTokensToAdd]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			r.logger.WarnContext(ctx, "unparseable token amount in event metadata",
				slog.String("event_id", event.ID),
				slog.String(MetaTokensToAdd, raw))
		} else {
			in.tokensToAdd = n
		}
	}

	switch event.Kind {
	case payment.EventCheckoutCompleted:
		switch {
		case in.planID != "":
			in.action = actionActivation
		case in.tokensToAdd > 0:
			in.action = actionOneTime
		}
	case payment.EventSubscriptionRenewed:
		if in.planID != "" {
			in.action = actionRenewal
		}
	}

	return in
}

// metaBool reads a string-typed boolean from event metadata. Anything other
// than "true", "false" or absent is logged and treated as false.
func (r *Reconciler) metaBool(ctx context.Context, event *payment.WebhookEvent, key string) bool {
	raw, ok := event.Metadata[key]
	if !ok || raw == "" || raw == "false" {
		return false
	}
	if raw == "true" {
		return true
	}
	r.logger.WarnContext(ctx, "unexpected boolean value in event metadata",
		slog.String("event_id", event.ID),
		slog.String("key", key),
		slog.String("value", raw))
	return false
}
