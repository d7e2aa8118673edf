package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/modules/api"
	"github.com/asystentai/backend/pkg/auth"
	"github.com/asystentai/backend/pkg/billing"
	"github.com/asystentai/backend/pkg/conversation"
	"github.com/asystentai/backend/pkg/invoicing"
	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/metering"
	"github.com/asystentai/backend/pkg/payment"
	"github.com/asystentai/backend/pkg/plan"
	"github.com/asystentai/backend/pkg/subscription"
)

const (
	webhookSecret = "whsec_test"
	adminKey      = "admin_test_key"
)

type fixture struct {
	router   http.Handler
	store    *ledger.MemoryStore
	provider *payment.FakeProvider
	auth     *auth.Service
}

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, req metering.GenerateRequest) (*metering.GenerateResult, error) {
	return &metering.GenerateResult{Text: "echo: " + req.Prompt, TokensConsumed: 42}, nil
}

type nopInvoicer struct{}

func (nopInvoicer) FindOrCreateClient(ctx context.Context, details invoicing.ClientDetails) (string, error) {
	return "client-1", nil
}
func (nopInvoicer) IssueInvoice(ctx context.Context, inv invoicing.Invoice) (string, error) {
	return "inv-1", nil
}
func (nopInvoicer) MarkPaid(ctx context.Context, invoiceID string) error { return nil }
func (nopInvoicer) Deliver(ctx context.Context, invoiceID string) error  { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := ledger.NewMemoryStore()
	ledgerSvc := ledger.NewService(store, store, store.Payments(), store.Snapshots(), ledger.WithLogger(logger))

	plans := plan.NewMemoryStore()
	require.NoError(t, plans.Create(ctx, &plan.Plan{
		ID:            "assistant-pro",
		PriceID:       "pri_pro",
		Name:          "Assistant Pro",
		MonthlyTokens: 20000,
		Price:         ledger.Money{Amount: 39900, Currency: "PLN"},
	}))
	planSvc := plan.NewService(plans, store)

	whitelist := auth.NewMemoryWhitelist("trial@example.com")
	authSvc, err := auth.NewService(store, ledgerSvc, whitelist, auth.Config{
		SigningKey: "test-signing-key",
	}, auth.WithLogger(logger))
	require.NoError(t, err)

	provider := payment.NewFakeProvider(webhookSecret)
	outbox := invoicing.NewOutbox(invoicing.NewMemoryJobStore(), nopInvoicer{}, invoicing.OutboxConfig{}, logger)
	reconciler := billing.NewReconciler(provider, ledgerSvc, store, plans,
		billing.NewMemoryEventStore(), billing.Config{},
		billing.WithWhitelist(whitelist),
		billing.WithInvoices(outbox),
		billing.WithLogger(logger),
	)

	gate := metering.NewGate(ledgerSvc, store, echoGenerator{}, metering.Config{}, logger)
	convSvc := conversation.NewService(conversation.NewMemoryStore(), gate, conversation.Config{},
		conversation.WithLogger(logger))

	lifecycle := subscription.NewManager(provider, ledgerSvc, store, plans, subscription.Config{},
		subscription.WithLogger(logger))

	router := api.Router(api.Deps{
		Config: api.Config{
			WebhookSignatureHeader: "Paddle-Signature",
			AdminAPIKey:            adminKey,
			TrialDays:              30,
		},
		Logger:        logger,
		Auth:          authSvc,
		Ledger:        ledgerSvc,
		Users:         store,
		Plans:         planSvc,
		Payments:      provider,
		Reconciler:    reconciler,
		Gate:          gate,
		Conversations: convSvc,
		Lifecycle:     lifecycle,
		Whitelist:     whitelist,
	})

	return &fixture{router: router, store: store, provider: provider, auth: authSvc}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) registerUser(t *testing.T, email string) (*ledger.User, string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/auth/register", "", auth.RegisterRequest{
		Email:    email,
		Password: "correct-horse",
		Name:     "Test User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		User  *ledger.User `json:"user"`
		Token string       `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.User, resp.Token
}

func (f *fixture) deliverWebhook(t *testing.T, event payment.WebhookEvent) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Paddle-Signature", payment.SignPayload(payload, webhookSecret))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user, token := f.registerUser(t, "alice@example.com")
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, token)
	assert.Zero(t, user.TokenBalance)

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterTrialRequiresWhitelist(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register-trial", "", auth.RegisterRequest{
		Email:    "stranger@example.com",
		Password: "correct-horse",
		Name:     "Stranger",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/register-trial", "", auth.RegisterRequest{
		Email:    "trial@example.com",
		Password: "correct-horse",
		Name:     "Trial User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		User *ledger.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 10000, resp.User.TokenBalance)
}

func TestMeRequiresAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, token := f.registerUser(t, "bob@example.com")
	rec = f.do(t, http.MethodGet, "/me", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookInvalidSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Paddle-Signature", "bogus")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookOneTimePurchaseCreditsBalance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user, token := f.registerUser(t, "carol@example.com")

	rec := f.deliverWebhook(t, payment.WebhookEvent{
		ID:            "evt_1",
		Kind:          payment.EventCheckoutCompleted,
		CustomerEmail: user.Email,
		AmountTotal:   ledger.Money{Amount: 4900, Currency: "PLN"},
		Metadata:      map[string]string{"tokens_to_add": "5000"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me ledger.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.EqualValues(t, 5000, me.TokenBalance)

	rec = f.do(t, http.MethodGet, "/me/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, "Token purchase", history.Transactions[0].Title)
}

func TestCreateCheckoutSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, token := f.registerUser(t, "dave@example.com")

	rec := f.do(t, http.MethodPost, "/billing/checkout", token, map[string]any{
		"plan_id": "assistant-pro",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["checkout_url"], "pri_pro")

	require.Len(t, f.provider.CheckoutRequests, 1)
	created := f.provider.CheckoutRequests[0]
	assert.Equal(t, payment.ModeSubscription, created.Mode)
	assert.Equal(t, "assistant-pro", created.Metadata["plan_id"])
	assert.Equal(t, "false", created.Metadata["asCompany"])
	assert.Zero(t, created.TrialDays)
}

func TestCreateCheckoutTrialGatedByWhitelist(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, token := f.registerUser(t, "eve@example.com")

	rec := f.do(t, http.MethodPost, "/billing/checkout", token, map[string]any{
		"plan_id": "assistant-pro",
		"trial":   true,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/register-trial", "", auth.RegisterRequest{
		Email:    "trial@example.com",
		Password: "correct-horse",
		Name:     "Trial User",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = f.do(t, http.MethodPost, "/billing/checkout", resp.Token, map[string]any{
		"plan_id": "assistant-pro",
		"trial":   true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := f.provider.CheckoutRequests[len(f.provider.CheckoutRequests)-1]
	assert.Equal(t, 30, created.TrialDays)
	assert.Equal(t, "true", created.Metadata["trial"])
}

func TestCreateCheckoutOneTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, token := f.registerUser(t, "frank@example.com")

	rec := f.do(t, http.MethodPost, "/billing/checkout", token, map[string]any{
		"tokens": 5000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/billing/checkout", token, map[string]any{
		"tokens":   5000,
		"price_id": "pri_tokens_5000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := f.provider.CheckoutRequests[len(f.provider.CheckoutRequests)-1]
	assert.Equal(t, payment.ModePayment, created.Mode)
	assert.Equal(t, "5000", created.Metadata["tokens_to_add"])
}

func TestGenerateMetersUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user, token := f.registerUser(t, "grace@example.com")

	rec := f.deliverWebhook(t, payment.WebhookEvent{
		ID:            "evt_topup",
		Kind:          payment.EventCheckoutCompleted,
		CustomerEmail: user.Email,
		Metadata:      map[string]string{"tokens_to_add": "1000"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/generate", token, map[string]any{
		"prompt":         "write a haiku",
		"estimated_cost": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Text           string `json:"text"`
		TokensConsumed int64  `json:"tokens_consumed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "echo: write a haiku", resp.Text)
	assert.EqualValues(t, 42, resp.TokensConsumed)

	updated, err := f.store.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 958, updated.TokenBalance)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, token := f.registerUser(t, "henry@example.com")

	rec := f.do(t, http.MethodPost, "/generate", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user, token := f.registerUser(t, "chat@example.com")

	rec := f.deliverWebhook(t, payment.WebhookEvent{
		ID:            "evt_chat_topup",
		Kind:          payment.EventCheckoutCompleted,
		CustomerEmail: user.Email,
		Metadata:      map[string]string{"tokens_to_add": "1000"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/conversations", token, map[string]any{"title": "Plan marketingowy"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var conv conversation.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "Plan marketingowy", conv.Title)

	rec = f.do(t, http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", token,
		map[string]any{"text": "Cześć!"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reply conversation.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, conversation.SenderAssistant, reply.Sender)
	assert.Equal(t, "echo: Cześć!", reply.Text)

	rec = f.do(t, http.MethodGet, "/conversations/"+conv.ID.String()+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []conversation.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.SenderUser, msgs[0].Sender)

	// The reply's exact usage was debited.
	updated, err := f.store.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 958, updated.TokenBalance)

	// Someone else cannot read or post into the thread.
	_, otherToken := f.registerUser(t, "intruz@example.com")
	rec = f.do(t, http.MethodGet, "/conversations/"+conv.ID.String()+"/messages", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/conversations/"+uuid.NewString()+"/messages", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user, token := f.registerUser(t, "iris@example.com")

	planID := "assistant-pro"
	user.PlanID = &planID
	require.NoError(t, f.store.Save(context.Background(), user))
	f.provider.AddCustomer(user.Email, "ctm_iris", []payment.Subscription{
		{ID: "sub_iris", CustomerID: "ctm_iris", PriceID: "pri_pro", Status: "active"},
	}, nil)

	rec := f.do(t, http.MethodPost, "/subscription/cancel", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"sub_iris"}, f.provider.DeletedSubscriptions)

	updated, err := f.store.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.PlanID)
}

func TestSubscriptionCancelWithoutSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user, token := f.registerUser(t, "jack@example.com")
	f.provider.AddCustomer(user.Email, "ctm_jack", nil, nil)

	rec := f.do(t, http.MethodPost, "/subscription/cancel", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanCatalog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Plans []plan.Plan `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Plans, 1)
	assert.Equal(t, "assistant-pro", listing.Plans[0].ID)

	rec = f.do(t, http.MethodGet, "/plans/assistant-pro", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/plans/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpointsRequireKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/whitelist", bytes.NewReader([]byte(`{"email":"new@example.com"}`)))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/whitelist", bytes.NewReader([]byte(`{"email":"new@example.com"}`)))
	req.Header.Set("X-Admin-Key", adminKey)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/whitelist", nil)
	req.Header.Set("X-Admin-Key", adminKey)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Emails []string `json:"emails"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Contains(t, listing.Emails, "new@example.com")
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
