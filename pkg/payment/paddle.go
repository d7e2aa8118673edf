package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/asystentai/backend/pkg/ledger"
)

// PaddleConfig holds the Paddle provider configuration.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider for Paddle Billing.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	cfg      PaddleConfig
}

// NewPaddleProvider creates a Paddle-backed payment provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("payment: paddle API key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("payment: paddle webhook secret is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("payment: invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("payment: failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		cfg:      cfg,
	}, nil
}

// CreateCheckoutSession creates a Paddle transaction with a hosted checkout.
// Metadata is carried as custom data and comes back verbatim on webhooks.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	if req.PriceID == "" {
		return "", errors.New("payment: price ID is required")
	}

	customData := paddle.CustomData{}
	for k, v := range req.Metadata {
		customData[k] = v
	}
	if req.CustomerEmail != "" {
		customData["customer_email"] = req.CustomerEmail
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: customData,
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return "", errors.Join(ErrProvider, err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return "", errors.Join(ErrProvider, errors.New("no checkout URL returned"))
	}
	return *transaction.Checkout.URL, nil
}

// FindCustomerID resolves the Paddle customer by billing email.
func (p *PaddleProvider) FindCustomerID(ctx context.Context, email string) (string, error) {
	res, err := p.client.CustomersClient.ListCustomers(ctx, &paddle.ListCustomersRequest{
		Email: []string{email},
	})
	if err != nil {
		return "", errors.Join(ErrProvider, err)
	}

	var customerID string
	if err := res.Iter(ctx, func(c *paddle.Customer) (bool, error) {
		customerID = c.ID
		return false, nil
	}); err != nil {
		return "", errors.Join(ErrProvider, err)
	}

	if customerID == "" {
		return "", ErrCustomerNotFound
	}
	return customerID, nil
}

// ListSubscriptions returns the customer's Paddle subscriptions.
func (p *PaddleProvider) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	res, err := p.client.SubscriptionsClient.ListSubscriptions(ctx, &paddle.ListSubscriptionsRequest{
		CustomerID: []string{customerID},
	})
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	var out []Subscription
	if err := res.Iter(ctx, func(s *paddle.Subscription) (bool, error) {
		sub := Subscription{
			ID:         s.ID,
			CustomerID: s.CustomerID,
			Status:     string(s.Status),
		}
		if len(s.Items) > 0 {
			sub.PriceID = s.Items[0].Price.ID
		}
		out = append(out, sub)
		return true, nil
	}); err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	return out, nil
}

// DeleteSubscription cancels a subscription immediately.
func (p *PaddleProvider) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
	})
	if err != nil {
		return errors.Join(ErrProvider, err)
	}
	return nil
}

// CreateSubscription bills the price to the customer's stored payment method
// by creating an automatically-collected transaction; Paddle materializes
// the subscription from the recurring price.
func (p *PaddleProvider) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*Subscription, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(customerID),
	})
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	sub := &Subscription{CustomerID: customerID, PriceID: priceID, Status: "active"}
	if transaction.SubscriptionID != nil {
		sub.ID = *transaction.SubscriptionID
	}
	return sub, nil
}

// ListPaymentMethods returns the customer's stored payment methods.
func (p *PaddleProvider) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	res, err := p.client.PaymentMethodsClient.ListCustomerPaymentMethods(ctx, &paddle.ListCustomerPaymentMethodsRequest{
		CustomerID: customerID,
	})
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	var out []PaymentMethod
	if err := res.Iter(ctx, func(pm *paddle.PaymentMethod) (bool, error) {
		out = append(out, PaymentMethod{ID: pm.ID, Type: string(pm.Type)})
		return true, nil
	}); err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	return out, nil
}

// VerifyWebhook validates the signature over the raw payload and returns the
// normalized event. The raw body must be passed exactly as received; the
// signature scheme breaks on any re-serialization.
func (p *PaddleProvider) VerifyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil || !valid {
		return nil, ErrInvalidSignature
	}

	var raw struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Data      struct {
			Origin     string         `json:"origin"`
			CustomData map[string]any `json:"custom_data"`
			Details    struct {
				Totals struct {
					GrandTotal   string `json:"grand_total"`
					CurrencyCode string `json:"currency_code"`
				} `json:"totals"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrProvider, fmt.Errorf("failed to parse webhook payload: %w", err))
	}

	metadata := make(map[string]string, len(raw.Data.CustomData))
	for k, v := range raw.Data.CustomData {
		metadata[k] = fmt.Sprint(v)
	}

	event := &WebhookEvent{
		ID:            raw.EventID,
		Kind:          mapPaddleEvent(raw.EventType, raw.Data.Origin),
		ProviderEvent: raw.EventType,
		CustomerEmail: metadata["customer_email"],
		Metadata:      metadata,
	}

	if raw.Data.Details.Totals.GrandTotal != "" {
		// Paddle serializes totals as strings in minor units.
		if amount, err := strconv.ParseInt(raw.Data.Details.Totals.GrandTotal, 10, 64); err == nil {
			event.AmountTotal = ledger.Money{
				Amount:   amount,
				Currency: raw.Data.Details.Totals.CurrencyCode,
			}
		}
	}

	return event, nil
}

// mapPaddleEvent normalizes Paddle event types. A completed transaction that
// originated from recurring billing is a renewal; one from checkout is an
// initial purchase.
func mapPaddleEvent(eventType, origin string) EventKind {
	if eventType != "transaction.completed" {
		return EventUnknown
	}
	switch origin {
	case "subscription_recurring":
		return EventSubscriptionRenewed
	default:
		return EventCheckoutCompleted
	}
}
