package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeProvider is an in-memory Provider for tests and local development.
// Webhook payloads are JSON-encoded WebhookEvent values signed with
// HMAC-SHA256 over the raw body, so signature-rejection paths behave like a
// real processor.
type FakeProvider struct {
	Secret string

	mu             sync.Mutex
	customers      map[string]string // email -> customer ID
	subscriptions  map[string][]Subscription
	paymentMethods map[string][]PaymentMethod

	DeletedSubscriptions []string
	CreatedSubscriptions []Subscription
	CheckoutRequests     []CheckoutRequest
}

// NewFakeProvider creates a fake with the given webhook secret.
func NewFakeProvider(secret string) *FakeProvider {
	return &FakeProvider{
		Secret:         secret,
		customers:      make(map[string]string),
		subscriptions:  make(map[string][]Subscription),
		paymentMethods: make(map[string][]PaymentMethod),
	}
}

// AddCustomer registers a customer with optional subscriptions and payment methods.
func (f *FakeProvider) AddCustomer(email, customerID string, subs []Subscription, methods []PaymentMethod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[email] = customerID
	f.subscriptions[customerID] = subs
	f.paymentMethods[customerID] = methods
}

// SetPaymentMethods replaces the customer's stored payment methods.
func (f *FakeProvider) SetPaymentMethods(customerID string, methods []PaymentMethod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentMethods[customerID] = methods
}

func (f *FakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CheckoutRequests = append(f.CheckoutRequests, req)
	return "https://checkout.example.com/session/" + req.PriceID, nil
}

func (f *FakeProvider) FindCustomerID(ctx context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.customers[email]
	if !ok {
		return "", ErrCustomerNotFound
	}
	return id, nil
}

func (f *FakeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Subscription(nil), f.subscriptions[customerID]...), nil
}

func (f *FakeProvider) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedSubscriptions = append(f.DeletedSubscriptions, subscriptionID)
	for customerID, subs := range f.subscriptions {
		kept := subs[:0]
		for _, s := range subs {
			if s.ID != subscriptionID {
				kept = append(kept, s)
			}
		}
		f.subscriptions[customerID] = kept
	}
	return nil
}

func (f *FakeProvider) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := Subscription{
		ID:         fmt.Sprintf("sub_%d", len(f.CreatedSubscriptions)+1),
		CustomerID: customerID,
		PriceID:    priceID,
		Status:     "active",
	}
	f.CreatedSubscriptions = append(f.CreatedSubscriptions, sub)
	f.subscriptions[customerID] = append(f.subscriptions[customerID], sub)
	return &sub, nil
}

func (f *FakeProvider) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PaymentMethod(nil), f.paymentMethods[customerID]...), nil
}

func (f *FakeProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if signature != SignPayload(payload, f.Secret) {
		return nil, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("payment: invalid fake webhook payload: %w", err)
	}
	return &event, nil
}

// SignPayload computes the fake signature for a webhook payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
