package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/asystentai/backend/pkg/invoicing"
	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/payment"
	"github.com/asystentai/backend/pkg/plan"
)

// WebhookVerifier validates a raw webhook payload and returns the normalized
// event. payment.Provider satisfies it.
type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookEvent, error)
}

// InvoiceEnqueuer schedules an invoice for best-effort issuance.
// *invoicing.Outbox satisfies it.
type InvoiceEnqueuer interface {
	Enqueue(ctx context.Context, client invoicing.ClientDetails, inv invoicing.Invoice) error
}

// TrialWhitelist removes an email from the free-trial allowlist once the
// trial has been consumed.
type TrialWhitelist interface {
	Remove(ctx context.Context, email string) error
}

// Config controls reconciliation amounts.
type Config struct {
	// ReferralBonusTokens is credited to both sides of a referral on the
	// referred user's first paid activation.
	ReferralBonusTokens int64 `env:"BILLING_REFERRAL_BONUS_TOKENS" envDefault:"30000"`
}

// Reconciler applies verified processor webhook events to the ledger. It is
// the single writer for billing-driven balance changes.
type Reconciler struct {
	verifier  WebhookVerifier
	ledger    *ledger.Service
	users     ledger.UserStore
	plans     plan.Store
	events    EventStore
	whitelist TrialWhitelist
	invoices  InvoiceEnqueuer
	cfg       Config
	logger    *slog.Logger
}

// ReconcilerOption configures optional reconciler collaborators.
type ReconcilerOption func(*Reconciler)

// WithWhitelist enables trial allowlist cleanup on trial activations.
func WithWhitelist(w TrialWhitelist) ReconcilerOption {
	return func(r *Reconciler) { r.whitelist = w }
}

// WithInvoices enables invoice issuance for company purchases.
func WithInvoices(e InvoiceEnqueuer) ReconcilerOption {
	return func(r *Reconciler) { r.invoices = e }
}

// WithLogger sets the reconciler logger.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReconciler creates a webhook reconciler. Panics on nil required
// dependencies to fail fast during initialization.
func NewReconciler(verifier WebhookVerifier, ledgerSvc *ledger.Service, users ledger.UserStore, plans plan.Store, events EventStore, cfg Config, opts ...ReconcilerOption) *Reconciler {
	if verifier == nil {
		panic("billing: WebhookVerifier is required")
	}
	if ledgerSvc == nil {
		panic("billing: ledger service is required")
	}
	if users == nil {
		panic("billing: UserStore is required")
	}
	if plans == nil {
		panic("billing: plan store is required")
	}
	if events == nil {
		panic("billing: EventStore is required")
	}
	if cfg.ReferralBonusTokens <= 0 {
		cfg.ReferralBonusTokens = 30000
	}

	r := &Reconciler{
		verifier: verifier,
		ledger:   ledgerSvc,
		users:    users,
		plans:    plans,
		events:   events,
		cfg:      cfg,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// HandleWebhook verifies and applies a single webhook delivery. The only
// error it returns is payment.ErrInvalidSignature; every failure past
// verification is logged and acknowledged so the processor does not retry an
// event whose signature already checked out.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := r.verifier.VerifyWebhook(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return err
		}
		r.logger.ErrorContext(ctx, "webhook verification failed", slog.Any("error", err))
		return payment.ErrInvalidSignature
	}

	in := r.classify(ctx, event)
	if in.action == actionIgnore {
		return nil
	}

	first, err := r.events.MarkProcessed(ctx, event.ID)
	if err != nil {
		// Fail open: a dedup-store outage must not drop billing events.
		r.logger.ErrorContext(ctx, "event dedup store unavailable, processing anyway",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
	} else if !first {
		r.logger.InfoContext(ctx, "duplicate webhook event, skipping",
			slog.String("event_id", event.ID),
			slog.String("provider_event", event.ProviderEvent))
		return nil
	}

	if err := r.apply(ctx, event, in); err != nil {
		r.logger.ErrorContext(ctx, "failed to apply webhook event",
			slog.String("event_id", event.ID),
			slog.String("provider_event", event.ProviderEvent),
			slog.Any("error", err))
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, event *payment.WebhookEvent, in intent) error {
	user, err := r.users.FindByEmail(ctx, event.CustomerEmail)
	if err != nil {
		return err
	}

	switch in.action {
	case actionOneTime:
		return r.applyOneTime(ctx, event, in, user)
	case actionActivation:
		return r.applyActivation(ctx, event, in, user)
	case actionRenewal:
		return r.applyRenewal(ctx, event, in, user)
	}
	return nil
}

func (r *Reconciler) applyOneTime(ctx context.Context, event *payment.WebhookEvent, in intent, user *ledger.User) error {
	_, err := r.ledger.Credit(ctx, user.ID, in.tokensToAdd, "Token purchase",
		ledger.WithPayment(event.AmountTotal, in.tokensToAdd, "Token purchase", ledger.PaymentOneTime))
	if err != nil {
		return err
	}

	r.enqueueInvoice(ctx, user, in.asCompany, "Token purchase", event.AmountTotal)
	return nil
}

func (r *Reconciler) applyActivation(ctx context.Context, event *payment.WebhookEvent, in intent, user *ledger.User) error {
	p, err := r.plans.Get(ctx, in.planID)
	if err != nil {
		return err
	}

	title := "Plan activation: " + p.Name
	price := purchasePrice(event, p)
	if _, err := r.ledger.Credit(ctx, user.ID, p.MonthlyTokens, title,
		ledger.WithPlan(p.ID),
		ledger.WithPayment(price, p.MonthlyTokens, title, ledger.PaymentSubscription)); err != nil {
		return err
	}

	r.awardReferralBonus(ctx, user, in)

	if in.trial {
		if r.whitelist != nil {
			if err := r.whitelist.Remove(ctx, user.Email); err != nil {
				r.logger.WarnContext(ctx, "failed to remove email from trial whitelist",
					slog.String("email", user.Email),
					slog.Any("error", err))
			}
		}
		return nil
	}

	r.enqueueInvoice(ctx, user, in.asCompany, title, price)
	return nil
}

func (r *Reconciler) applyRenewal(ctx context.Context, event *payment.WebhookEvent, in intent, user *ledger.User) error {
	p, err := r.plans.Get(ctx, in.planID)
	if err != nil {
		return err
	}

	title := "Monthly renewal: " + p.Name
	price := purchasePrice(event, p)
	if _, err := r.ledger.Credit(ctx, user.ID, p.MonthlyTokens, title,
		ledger.WithPlan(p.ID),
		ledger.WithPayment(price, p.MonthlyTokens, title, ledger.PaymentSubscription)); err != nil {
		return err
	}

	// Renewal events carry no checkout metadata; every company user gets an
	// invoice for a renewal.
	r.enqueueInvoice(ctx, user, true, title, price)
	return nil
}

// awardReferralBonus credits both sides of a referral once per referred user.
// Failures are logged; the activation credit has already been applied and
// must not be rolled back.
func (r *Reconciler) awardReferralBonus(ctx context.Context, user *ledger.User, in intent) {
	if in.referrerID == "" {
		return
	}

	referrerID, err := uuid.Parse(in.referrerID)
	if err != nil {
		r.logger.WarnContext(ctx, "malformed referrer id in event metadata",
			slog.String(MetaReferrerID, in.referrerID))
		return
	}

	referrer, err := r.users.FindByID(ctx, referrerID)
	if err != nil {
		r.logger.WarnContext(ctx, "referrer not found, skipping bonus",
			slog.String("referrer_id", in.referrerID),
			slog.Any("error", err))
		return
	}

	// The once-per-user claim is enforced inside the ledger's lock; checking
	// the caller's copy of the user would race with a concurrent claim.
	if _, err := r.ledger.Credit(ctx, user.ID, r.cfg.ReferralBonusTokens, "Referral bonus",
		ledger.WithReferralPaid()); err != nil {
		if errors.Is(err, ledger.ErrReferralAlreadyPaid) {
			return
		}
		r.logger.ErrorContext(ctx, "failed to credit referred user bonus",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err))
		return
	}

	if _, err := r.ledger.Credit(ctx, referrer.ID, r.cfg.ReferralBonusTokens, "Referral bonus",
		ledger.WithReferralCountIncrement()); err != nil {
		r.logger.ErrorContext(ctx, "failed to credit referrer bonus",
			slog.String("referrer_id", referrer.ID.String()),
			slog.Any("error", err))
	}
}

// enqueueInvoice schedules a VAT invoice for company purchases. Best effort:
// a full outbox or missing enqueuer never affects the credit. requested says
// whether the purchase asked for an invoice; checkouts signal it through
// metadata, renewals always do.
func (r *Reconciler) enqueueInvoice(ctx context.Context, user *ledger.User, requested bool, serviceName string, price ledger.Money) {
	if r.invoices == nil || !user.IsCompany() || !requested {
		return
	}

	client := invoicing.ClientDetails{
		Name:         user.Name,
		Email:        user.Email,
		CompanyName:  user.CompanyName,
		Street:       user.Street,
		StreetNumber: user.StreetNumber,
		FlatNumber:   user.ApartmentNumber,
		City:         user.City,
		Country:      "PL",
		PostalCode:   user.PostalCode,
		TaxID:        user.TaxID,
		MailingEmail: billingEmail(user),
	}
	inv := invoicing.Invoice{
		ClientCompanyName: user.CompanyName,
		ServiceName:       serviceName,
		GrossPrice:        price.Amount,
		Currency:          price.Currency,
	}

	if err := r.invoices.Enqueue(ctx, client, inv); err != nil {
		r.logger.ErrorContext(ctx, "failed to enqueue invoice",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err))
	}
}

func billingEmail(user *ledger.User) string {
	if user.ContactEmail != "" {
		return user.ContactEmail
	}
	return user.Email
}

// purchasePrice prefers the amount the processor actually charged and falls
// back to the catalog price when the event carries no total.
func purchasePrice(event *payment.WebhookEvent, p *plan.Plan) ledger.Money {
	if event.AmountTotal.Amount > 0 {
		return event.AmountTotal
	}
	return p.Price
}

var (
	_ WebhookVerifier = (payment.Provider)(nil)
	_ InvoiceEnqueuer = (*invoicing.Outbox)(nil)
)
