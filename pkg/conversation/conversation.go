// Package conversation manages assistant chat threads: the conversation and
// message models, their stores and the service that runs a metered generation
// for every user message.
package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sender values for messages. They double as the chat roles sent to the
// generation provider.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Conversation is a single chat thread owned by one user.
type Conversation struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Message is one turn of a conversation, from the user or the assistant.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists conversations and their messages. ListMessages returns
// messages oldest first.
type Store interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	FindConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Conversation, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
}
