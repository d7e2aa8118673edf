// Package payment defines the payment-processor capability the billing core
// depends on, together with a Paddle-backed implementation and an in-memory
// fake for tests and local development.
package payment

import (
	"context"
	"errors"

	"github.com/asystentai/backend/pkg/ledger"
)

var (
	// ErrInvalidSignature means webhook verification failed; the event must
	// be rejected without any state change.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")

	// ErrProvider wraps processor API failures.
	ErrProvider = errors.New("payment: provider error")

	// ErrCustomerNotFound means no processor customer matches the email.
	ErrCustomerNotFound = errors.New("payment: customer not found")

	// ErrNoPaymentMethod means the customer has no stored payment method.
	ErrNoPaymentMethod = errors.New("payment: no payment method on file")
)

// CheckoutMode mirrors the processor's session modes.
type CheckoutMode string

const (
	ModePayment      CheckoutMode = "payment"
	ModeSubscription CheckoutMode = "subscription"
)

// CheckoutRequest describes a hosted checkout session. Metadata travels
// through the processor verbatim and comes back on the webhook; the
// processor serializes all values as strings, including booleans.
type CheckoutRequest struct {
	CustomerEmail string
	PriceID       string
	Mode          CheckoutMode
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
	TrialDays     int // 0 means no trial
}

// Subscription is the processor-side subscription record.
type Subscription struct {
	ID         string
	CustomerID string
	PriceID    string
	Status     string
}

// PaymentMethod is a stored payment instrument.
type PaymentMethod struct {
	ID   string
	Type string
}

// EventKind is the normalized webhook event classification input.
type EventKind string

const (
	// EventCheckoutCompleted covers both initial subscription purchases and
	// one-time purchases; metadata distinguishes them.
	EventCheckoutCompleted EventKind = "checkout_completed"

	// EventSubscriptionRenewed is a recurring billing cycle charge.
	EventSubscriptionRenewed EventKind = "subscription_renewed"

	// EventUnknown is anything the reconciler does not act on.
	EventUnknown EventKind = "unknown"
)

// WebhookEvent is a verified, normalized webhook notification. ID is the
// processor-assigned event ID and is the idempotency key for reconciliation.
type WebhookEvent struct {
	ID            string
	Kind          EventKind
	ProviderEvent string
	CustomerEmail string
	AmountTotal   ledger.Money
	Metadata      map[string]string
}

// Provider is the processor capability contract. Implementations must keep
// all processor-specific quirks internal and return normalized values.
type Provider interface {
	// CreateCheckoutSession creates a hosted checkout and returns its URL.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)

	// FindCustomerID resolves the processor customer by billing email.
	FindCustomerID(ctx context.Context, email string) (string, error)

	// ListSubscriptions returns the customer's subscriptions.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)

	// DeleteSubscription cancels a subscription immediately.
	DeleteSubscription(ctx context.Context, subscriptionID string) error

	// CreateSubscription starts a subscription billed to a stored payment method.
	CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*Subscription, error)

	// ListPaymentMethods returns the customer's stored payment methods.
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)

	// VerifyWebhook validates the raw payload against the endpoint secret
	// and returns the normalized event. Fails closed with
	// ErrInvalidSignature; no other validation error may leak state.
	VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
