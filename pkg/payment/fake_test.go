package payment_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/pkg/payment"
)

func TestVerifyWebhookRoundTrip(t *testing.T) {
	t.Parallel()

	provider := payment.NewFakeProvider("whsec_test")
	payload, err := json.Marshal(payment.WebhookEvent{
		ID:            "evt_1",
		Kind:          payment.EventCheckoutCompleted,
		CustomerEmail: "user@example.com",
		Metadata:      map[string]string{"plan_id": "pro"},
	})
	require.NoError(t, err)

	event, err := provider.VerifyWebhook(context.Background(), payload, payment.SignPayload(payload, "whsec_test"))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "pro", event.Metadata["plan_id"])
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	provider := payment.NewFakeProvider("whsec_test")
	payload := []byte(`{"id":"evt_1"}`)

	_, err := provider.VerifyWebhook(context.Background(), payload, "bogus")
	require.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = provider.VerifyWebhook(context.Background(), payload, payment.SignPayload(payload, "other_secret"))
	require.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestFakeSubscriptionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := payment.NewFakeProvider("whsec_test")
	provider.AddCustomer("user@example.com", "ctm_1", []payment.Subscription{
		{ID: "sub_old", CustomerID: "ctm_1", PriceID: "pri_old", Status: "active"},
	}, []payment.PaymentMethod{{ID: "pm_1", Type: "card"}})

	customerID, err := provider.FindCustomerID(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ctm_1", customerID)

	_, err = provider.FindCustomerID(ctx, "nobody@example.com")
	require.ErrorIs(t, err, payment.ErrCustomerNotFound)

	require.NoError(t, provider.DeleteSubscription(ctx, "sub_old"))
	subs, err := provider.ListSubscriptions(ctx, "ctm_1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	created, err := provider.CreateSubscription(ctx, "ctm_1", "pri_new", "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "pri_new", created.PriceID)

	subs, err = provider.ListSubscriptions(ctx, "ctm_1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, created.ID, subs[0].ID)
}
