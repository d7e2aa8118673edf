// Package subscription manages the processor-side subscription lifecycle:
// cancelling the active subscription and switching between plans without a
// new checkout.
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/asystentai/backend/pkg/invoicing"
	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/payment"
	"github.com/asystentai/backend/pkg/plan"
)

var (
	// ErrNoActiveSubscription means the user has nothing to cancel.
	ErrNoActiveSubscription = errors.New("subscription: no active subscription")

	// ErrPropagationTimeout means the processor did not expose a stored
	// payment method within the configured wait window.
	ErrPropagationTimeout = errors.New("subscription: timed out waiting for payment method")
)

// InvoiceEnqueuer schedules an invoice for best-effort issuance.
type InvoiceEnqueuer interface {
	Enqueue(ctx context.Context, client invoicing.ClientDetails, inv invoicing.Invoice) error
}

// Config controls how long a plan change waits for the processor to settle
// after the old subscription is deleted.
type Config struct {
	PropagationPollInterval time.Duration `env:"SUBSCRIPTION_POLL_INTERVAL" envDefault:"2s"`
	PropagationTimeout      time.Duration `env:"SUBSCRIPTION_POLL_TIMEOUT" envDefault:"30s"`
}

// Manager drives subscription cancellation and plan changes against the
// payment processor and mirrors the outcome into local user state.
type Manager struct {
	provider payment.Provider
	ledger   *ledger.Service
	users    ledger.UserStore
	plans    plan.Store
	invoices InvoiceEnqueuer
	cfg      Config
	logger   *slog.Logger
}

// Option configures optional manager collaborators.
type Option func(*Manager)

// WithInvoices enables invoice issuance for company plan changes.
func WithInvoices(e InvoiceEnqueuer) Option {
	return func(m *Manager) { m.invoices = e }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a subscription lifecycle manager. Panics on nil required
// dependencies to fail fast during initialization.
func NewManager(provider payment.Provider, ledgerSvc *ledger.Service, users ledger.UserStore, plans plan.Store, cfg Config, opts ...Option) *Manager {
	if provider == nil {
		panic("subscription: payment provider is required")
	}
	if ledgerSvc == nil {
		panic("subscription: ledger service is required")
	}
	if users == nil {
		panic("subscription: UserStore is required")
	}
	if plans == nil {
		panic("subscription: plan store is required")
	}
	if cfg.PropagationPollInterval <= 0 {
		cfg.PropagationPollInterval = 2 * time.Second
	}
	if cfg.PropagationTimeout <= 0 {
		cfg.PropagationTimeout = 30 * time.Second
	}

	m := &Manager{
		provider: provider,
		ledger:   ledgerSvc,
		users:    users,
		plans:    plans,
		cfg:      cfg,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Cancel deletes the user's active subscription at the processor and clears
// the plan locally. The remaining token balance is kept.
func (m *Manager) Cancel(ctx context.Context, user *ledger.User) error {
	customerID, err := m.provider.FindCustomerID(ctx, user.Email)
	if err != nil {
		return err
	}

	subs, err := m.provider.ListSubscriptions(ctx, customerID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return ErrNoActiveSubscription
	}

	for _, sub := range subs {
		if err := m.provider.DeleteSubscription(ctx, sub.ID); err != nil {
			return err
		}
	}

	// Clear the plan through the ledger's locked update; saving the caller's
	// copy would overwrite any credit applied since it was fetched.
	_, err = m.ledger.Update(ctx, user.ID, func(u *ledger.User) {
		u.PlanID = nil
	})
	return err
}

// Change switches the user to another plan without a new checkout: the old
// subscription is cancelled, the manager waits for the processor to settle,
// the new subscription is created on the stored payment method and the new
// plan's tokens are credited locally.
func (m *Manager) Change(ctx context.Context, user *ledger.User, planID string) error {
	p, err := m.plans.Get(ctx, planID)
	if err != nil {
		return err
	}

	customerID, err := m.provider.FindCustomerID(ctx, user.Email)
	if err != nil {
		return err
	}

	subs, err := m.provider.ListSubscriptions(ctx, customerID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := m.provider.DeleteSubscription(ctx, sub.ID); err != nil {
			return err
		}
	}

	method, err := m.waitForPaymentMethod(ctx, customerID)
	if err != nil {
		return err
	}

	if _, err := m.provider.CreateSubscription(ctx, customerID, p.PriceID, method.ID); err != nil {
		return err
	}

	title := "Plan change: " + p.Name
	if _, err := m.ledger.Credit(ctx, user.ID, p.MonthlyTokens, title,
		ledger.WithPlan(p.ID),
		ledger.WithPayment(p.Price, p.MonthlyTokens, title, ledger.PaymentSubscription)); err != nil {
		return err
	}

	m.enqueueInvoice(ctx, user, title, p.Price)
	return nil
}

// waitForPaymentMethod polls the processor until a stored payment method is
// visible. Deleting a subscription and reading the customer back immediately
// races with the processor's own propagation.
func (m *Manager) waitForPaymentMethod(ctx context.Context, customerID string) (*payment.PaymentMethod, error) {
	deadline := time.Now().Add(m.cfg.PropagationTimeout)
	ticker := time.NewTicker(m.cfg.PropagationPollInterval)
	defer ticker.Stop()

	for {
		methods, err := m.provider.ListPaymentMethods(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if len(methods) > 0 {
			return &methods[0], nil
		}
		if time.Now().After(deadline) {
			return nil, ErrPropagationTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) enqueueInvoice(ctx context.Context, user *ledger.User, serviceName string, price ledger.Money) {
	if m.invoices == nil || !user.IsCompany() {
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
		MailingEmail: user.Email,
	}
	inv := invoicing.Invoice{
		ClientCompanyName: user.CompanyName,
		ServiceName:       serviceName,
		GrossPrice:        price.Amount,
		Currency:          price.Currency,
	}

	if err := m.invoices.Enqueue(ctx, client, inv); err != nil {
		m.logger.ErrorContext(ctx, "failed to enqueue invoice",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err))
	}
}
