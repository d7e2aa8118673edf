package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]Conversation
	messages      map[uuid.UUID][]Message
}

// NewMemoryStore creates an empty in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]Conversation),
		messages:      make(map[uuid.UUID][]Message),
	}
}

func (m *MemoryStore) CreateConversation(ctx context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[c.ID] = *c
	return nil
}

func (m *MemoryStore) FindConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Conversation, 0)
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

func (m *MemoryStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.LastUpdated = at
	m.conversations[id] = c
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return ErrConversationNotFound
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}
	out := make([]Message, len(m.messages[conversationID]))
	copy(out, m.messages[conversationID])
	return out, nil
}
