// Package generation implements the AI-generation capability on top of an
// OpenAI-compatible chat completions API. The metering gate treats it as an
// opaque provider that returns text plus exact token usage.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/asystentai/backend/pkg/metering"
)

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// ErrRequestFailed wraps transport and API-level failures.
var ErrRequestFailed = errors.New("generation: request failed")

// Config holds the OpenAI client configuration.
type Config struct {
	APIKey       string        `env:"OPENAI_API_KEY,required"`
	Organization string        `env:"OPENAI_ORGANIZATION"`
	Model        string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	BaseURL      string        `env:"OPENAI_BASE_URL"`
	Timeout      time.Duration `env:"OPENAI_TIMEOUT" envDefault:"120s"`
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a generation client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generation: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate implements metering.Provider.
func (c *Client) Generate(ctx context.Context, req metering.GenerateRequest) (*metering.GenerateResult, error) {
	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	body, err := json.Marshal(chatRequest{
		Model:            model,
		Messages:         messages,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generation: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.Join(ErrRequestFailed, fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err))
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, errors.Join(ErrRequestFailed, fmt.Errorf("api error %s: %s", parsed.Error.Type, parsed.Error.Message))
		}
		return nil, errors.Join(ErrRequestFailed, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if len(parsed.Choices) == 0 {
		return nil, errors.Join(ErrRequestFailed, errors.New("no choices in response"))
	}

	return &metering.GenerateResult{
		Text:           parsed.Choices[0].Message.Content,
		TokensConsumed: parsed.Usage.TotalTokens,
	}, nil
}
