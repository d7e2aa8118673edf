package auth_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/pkg/auth"
	"github.com/asystentai/backend/pkg/email"
	"github.com/asystentai/backend/pkg/ledger"
)

const signingKey = "test-signing-key-at-least-32-bytes!"

type captureSender struct {
	mu   sync.Mutex
	sent []email.SendEmailParams
}

func (c *captureSender) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, params)
	return nil
}

func newService(t *testing.T, whitelist *auth.MemoryWhitelist, sender email.EmailSender) (*auth.Service, *ledger.MemoryStore) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledger.NewMemoryStore()
	ledgerSvc := ledger.NewService(store, store, store.Payments(), store.Snapshots(), ledger.WithLogger(logger))

	opts := []auth.Option{auth.WithLogger(logger)}
	if sender != nil {
		opts = append(opts, auth.WithEmailSender(sender))
	}

	svc, err := auth.NewService(store, ledgerSvc, whitelist, auth.Config{SigningKey: signingKey}, opts...)
	require.NoError(t, err)
	return svc, store
}

func TestRegister(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, auth.NewMemoryWhitelist(), nil)

	user, token, err := svc.Register(context.Background(), auth.RegisterRequest{
		Email:    "New@Example.com",
		Password: "correct-horse",
		Name:     "New User",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, ledger.AccountTypeIndividual, user.AccountType)
	assert.Zero(t, user.TokenBalance, "plain registration carries no bonus")
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	claims, err := svc.Tokens().Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)

	_, err = store.FindByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
}

func TestRegisterCompany(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, auth.NewMemoryWhitelist(), nil)

	user, _, err := svc.Register(context.Background(), auth.RegisterRequest{
		Email:    "firma@example.com",
		Password: "correct-horse",
		Name:     "Jan Kowalski",
		Company: &auth.CompanyDetails{
			CompanyName: "Firma Sp. z o.o.",
			TaxID:       "5260250995",
			City:        "Warszawa",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.AccountTypeCompany, user.AccountType)
	assert.Equal(t, "Firma Sp. z o.o.", user.CompanyName)
	assert.Equal(t, "5260250995", user.TaxID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, auth.NewMemoryWhitelist(), nil)
	req := auth.RegisterRequest{Email: "dup@example.com", Password: "correct-horse", Name: "A"}

	_, _, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	_, _, err = svc.Register(context.Background(), req)
	require.ErrorIs(t, err, ledger.ErrUserAlreadyExists)
}

func TestRegisterWeakPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, auth.NewMemoryWhitelist(), nil)

	_, _, err := svc.Register(context.Background(), auth.RegisterRequest{
		Email:    "weak@example.com",
		Password: "short",
		Name:     "A",
	})
	require.ErrorIs(t, err, auth.ErrWeakPassword)
}

func TestRegisterFreeTrial(t *testing.T) {
	t.Parallel()

	t.Run("whitelisted email gets signup bonus", func(t *testing.T) {
		t.Parallel()

		svc, store := newService(t, auth.NewMemoryWhitelist("trial@example.com"), nil)

		user, token, err := svc.RegisterFreeTrial(context.Background(), auth.RegisterRequest{
			Email:    "trial@example.com",
			Password: "correct-horse",
			Name:     "Trial User",
		})
		require.NoError(t, err)
		require.NotEmpty(t, token)

		updated, err := store.FindByID(context.Background(), user.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 10000, updated.TokenBalance)

		txs, err := store.ListByUser(context.Background(), user.ID)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "Signup bonus", txs[0].Title)
	})

	t.Run("unlisted email is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t, auth.NewMemoryWhitelist(), nil)

		_, _, err := svc.RegisterFreeTrial(context.Background(), auth.RegisterRequest{
			Email:    "stranger@example.com",
			Password: "correct-horse",
			Name:     "Stranger",
		})
		require.ErrorIs(t, err, auth.ErrNotWhitelisted)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, auth.NewMemoryWhitelist(), nil)

	_, _, err := svc.Register(context.Background(), auth.RegisterRequest{
		Email:    "login@example.com",
		Password: "correct-horse",
		Name:     "A",
	})
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		user, token, err := svc.Login(context.Background(), "login@example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, "login@example.com", user.Email)

		claims, err := svc.Tokens().Parse(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(context.Background(), "login@example.com", "wrong-password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(context.Background(), "nobody@example.com", "correct-horse")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	svc, _ := newService(t, auth.NewMemoryWhitelist(), sender)

	_, _, err := svc.Register(context.Background(), auth.RegisterRequest{
		Email:    "reset@example.com",
		Password: "correct-horse",
		Name:     "A",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "reset@example.com"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "reset@example.com", sender.sent[0].SendTo)

	// Pull the token out of the emailed link.
	body := sender.sent[0].BodyHTML
	start := strings.Index(body, "?token=")
	require.GreaterOrEqual(t, start, 0)
	token := body[start+len("?token="):]
	token = token[:strings.Index(token, `"`)]

	require.NoError(t, svc.ResetPassword(context.Background(), token, "new-password-123"))

	_, _, err = svc.Login(context.Background(), "reset@example.com", "new-password-123")
	require.NoError(t, err)
	_, _, err = svc.Login(context.Background(), "reset@example.com", "correct-horse")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestResetPasswordKeepsCreditAppliedAfterFetch(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	svc, store := newService(t, auth.NewMemoryWhitelist(), sender)
	ledgerSvc := ledger.NewService(store, store, store.Payments(), store.Snapshots())

	user, _, err := svc.Register(context.Background(), auth.RegisterRequest{
		Email:    "reset3@example.com",
		Password: "correct-horse",
		Name:     "A",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "reset3@example.com"))
	require.Len(t, sender.sent, 1)
	body := sender.sent[0].BodyHTML
	start := strings.Index(body, "?token=")
	require.GreaterOrEqual(t, start, 0)
	token := body[start+len("?token="):]
	token = token[:strings.Index(token, `"`)]

	// A renewal lands between the reset request and the reset itself.
	_, err = ledgerSvc.Credit(context.Background(), user.ID, 5000, "Monthly renewal")
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(context.Background(), token, "new-password-123"))

	updated, err := store.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, updated.TokenBalance, "reset must not overwrite a concurrent credit")

	_, _, err = svc.Login(context.Background(), "reset3@example.com", "new-password-123")
	require.NoError(t, err)
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	svc, _ := newService(t, auth.NewMemoryWhitelist(), sender)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, sender.sent, "unknown emails are acked without sending")
}

func TestResetPasswordRejectsAccessToken(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, auth.NewMemoryWhitelist(), nil)

	_, token, err := svc.Register(context.Background(), auth.RegisterRequest{
		Email:    "reset2@example.com",
		Password: "correct-horse",
		Name:     "A",
	})
	require.NoError(t, err)

	err = svc.ResetPassword(context.Background(), token, "new-password-123")
	require.ErrorIs(t, err, auth.ErrInvalidResetToken)
}
