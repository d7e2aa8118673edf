package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/pkg/jwt"
)

func TestGenerateAndParse(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New("test-signing-key-at-least-32-bytes!")
	require.NoError(t, err)

	token, err := svc.Generate(jwt.Claims{
		UserID:  "user-1",
		Email:   "user@example.com",
		Purpose: jwt.PurposeAccess,
	}, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, jwt.PurposeAccess, claims.Purpose)
	assert.Greater(t, claims.ExpiresAt, time.Now().Unix())
}

func TestParseRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New("test-signing-key-at-least-32-bytes!")
	require.NoError(t, err)

	token, err := svc.Generate(jwt.Claims{UserID: "user-1", Purpose: jwt.PurposeAccess}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	_, err = svc.Parse(tampered)
	require.ErrorIs(t, err, jwt.ErrInvalidSignature)
}

func TestParseRejectsWrongKey(t *testing.T) {
	t.Parallel()

	issuer, err := jwt.New("issuer-key-at-least-32-bytes-long!!!")
	require.NoError(t, err)
	verifier, err := jwt.New("verifier-key-at-least-32-bytes-long!")
	require.NoError(t, err)

	token, err := issuer.Generate(jwt.Claims{UserID: "user-1", Purpose: jwt.PurposeAccess}, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	require.ErrorIs(t, err, jwt.ErrInvalidSignature)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New("test-signing-key-at-least-32-bytes!")
	require.NoError(t, err)

	token, err := svc.Generate(jwt.Claims{UserID: "user-1", Purpose: jwt.PurposeAccess}, -time.Minute)
	require.NoError(t, err)

	_, err = svc.Parse(token)
	require.ErrorIs(t, err, jwt.ErrExpiredToken)
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := jwt.New("")
	require.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc, err := jwt.New("test-signing-key-at-least-32-bytes!")
	require.NoError(t, err)

	handler := jwt.Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := jwt.ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.UserID))
	}))

	t.Run("valid access token", func(t *testing.T) {
		t.Parallel()

		token, err := svc.Generate(jwt.Claims{UserID: "user-1", Purpose: jwt.PurposeAccess}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", rec.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong purpose", func(t *testing.T) {
		t.Parallel()

		token, err := svc.Generate(jwt.Claims{UserID: "user-1", Purpose: jwt.PurposePasswordReset}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
