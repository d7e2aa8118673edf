package api

import (
	"net/http"

	"github.com/asystentai/backend/pkg/metering"
)

type generateRequest struct {
	Prompt           string  `json:"prompt"`
	System           string  `json:"system,omitempty"`
	Model            string  `json:"model,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`

	// EstimatedCost is the token cost the balance is checked against before
	// the call; the ledger settles on the actual usage afterwards.
	EstimatedCost int64 `json:"estimated_cost,omitempty"`

	// Label titles the resulting ledger entry.
	Label string `json:"label,omitempty"`
}

type generateResponse struct {
	Text           string `json:"text"`
	TokensConsumed int64  `json:"tokens_consumed"`
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	label := req.Label
	if label == "" {
		label = "Content generation"
	}

	result, err := h.deps.Gate.Generate(r.Context(), user.ID, req.EstimatedCost, label, metering.GenerateRequest{
		Prompt:           req.Prompt,
		System:           req.System,
		Model:            req.Model,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, generateResponse{
		Text:           result.Text,
		TokensConsumed: result.TokensConsumed,
	})
}
