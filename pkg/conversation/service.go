package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/asystentai/backend/pkg/metering"
)

// Generator runs a metered generation. *metering.Gate satisfies it.
type Generator interface {
	Generate(ctx context.Context, userID uuid.UUID, estimatedCost int64, label string, req metering.GenerateRequest) (*metering.GenerateResult, error)
}

// Config controls how user messages are turned into generation calls.
type Config struct {
	// SystemPrompt is sent ahead of every exchange.
	SystemPrompt string `env:"CONVERSATION_SYSTEM_PROMPT" envDefault:"Jesteś pomocnym asystentem."`

	// ContextWindow is how many of the latest stored messages are replayed
	// to the provider with each new message.
	ContextWindow int `env:"CONVERSATION_CONTEXT_WINDOW" envDefault:"4"`

	// EstimatedCost is the token cost the balance is authorized against
	// before the call; the exact usage settles afterwards.
	EstimatedCost int64 `env:"CONVERSATION_ESTIMATED_COST" envDefault:"1"`

	Temperature      float64 `env:"CONVERSATION_TEMPERATURE" envDefault:"0.7"`
	FrequencyPenalty float64 `env:"CONVERSATION_FREQUENCY_PENALTY" envDefault:"0.35"`
}

// Service owns conversation threads and runs a metered generation for every
// user message.
type Service struct {
	store  Store
	gate   Generator
	cfg    Config
	logger *slog.Logger
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a conversation service. Panics on nil dependencies to
// fail fast during initialization.
func NewService(store Store, gate Generator, cfg Config, opts ...ServiceOption) *Service {
	if store == nil {
		panic("conversation: Store is required")
	}
	if gate == nil {
		panic("conversation: Generator is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "Jesteś pomocnym asystentem."
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 4
	}
	if cfg.EstimatedCost <= 0 {
		cfg.EstimatedCost = 1
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.FrequencyPenalty == 0 {
		cfg.FrequencyPenalty = 0.35
	}

	s := &Service{
		store:  store,
		gate:   gate,
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens a new conversation for the user.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, title string) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// List returns the user's conversations, most recently updated first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	return s.store.ListByUser(ctx, userID)
}

// Messages returns the conversation's messages, oldest first. Fails with
// ErrNotConversationOwner when the conversation belongs to someone else.
func (s *Service) Messages(ctx context.Context, userID, conversationID uuid.UUID) ([]Message, error) {
	if _, err := s.find(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SendMessage appends the user's message, generates the assistant's reply
// with the latest messages as context, and returns the stored reply. The
// generation is metered: the exact token usage is debited from the user's
// balance by the gate.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, text string) (*Message, error) {
	conv, err := s.find(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(history) > s.cfg.ContextWindow {
		history = history[len(history)-s.cfg.ContextWindow:]
	}

	turns := make([]metering.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, metering.Turn{Role: m.Sender, Content: m.Text})
	}

	result, err := s.gate.Generate(ctx, userID, s.cfg.EstimatedCost, "Assistant reply", metering.GenerateRequest{
		Prompt:           text,
		System:           s.cfg.SystemPrompt,
		History:          turns,
		Temperature:      s.cfg.Temperature,
		FrequencyPenalty: s.cfg.FrequencyPenalty,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userMsg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Sender:         SenderUser,
		Text:           text,
		CreatedAt:      now,
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	reply := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Sender:         SenderAssistant,
		Text:           result.Text,
		CreatedAt:      now,
	}
	if err := s.store.AppendMessage(ctx, reply); err != nil {
		return nil, err
	}

	if err := s.store.Touch(ctx, conv.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to touch conversation",
			slog.String("conversation_id", conv.ID.String()),
			slog.Any("error", err))
	}

	return reply, nil
}

var _ Generator = (*metering.Gate)(nil)

func (s *Service) find(ctx context.Context, userID, conversationID uuid.UUID) (*Conversation, error) {
	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotConversationOwner
	}
	return conv, nil
}
