package generation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/pkg/generation"
	"github.com/asystentai/backend/pkg/metering"
)

func TestClientGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "generated copy"}},
			},
			"usage": map[string]int64{"prompt_tokens": 20, "completion_tokens": 400, "total_tokens": 420},
		})
	}))
	defer srv.Close()

	client, err := generation.NewClient(generation.Config{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := client.Generate(context.Background(), metering.GenerateRequest{Prompt: "write a headline"})
	require.NoError(t, err)
	assert.Equal(t, "generated copy", result.Text)
	assert.Equal(t, int64(420), result.TokensConsumed)
}

func TestClientGenerateAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()

	client, err := generation.NewClient(generation.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), metering.GenerateRequest{Prompt: "hi"})
	require.ErrorIs(t, err, generation.ErrRequestFailed)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := generation.NewClient(generation.Config{})
	require.Error(t, err)
}
