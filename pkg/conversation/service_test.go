package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/pkg/conversation"
	"github.com/asystentai/backend/pkg/metering"
)

type stubGenerator struct {
	mu       sync.Mutex
	fail     error
	requests []metering.GenerateRequest
	replies  int
}

func (s *stubGenerator) Generate(ctx context.Context, userID uuid.UUID, estimatedCost int64, label string, req metering.GenerateRequest) (*metering.GenerateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	s.requests = append(s.requests, req)
	s.replies++
	return &metering.GenerateResult{
		Text:           fmt.Sprintf("reply %d", s.replies),
		TokensConsumed: 42,
	}, nil
}

func newService(gen *stubGenerator) (*conversation.Service, *conversation.MemoryStore) {
	store := conversation.NewMemoryStore()
	return conversation.NewService(store, gen, conversation.Config{}), store
}

func TestStartAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(&stubGenerator{})
	userID := uuid.New()

	first, err := svc.Start(ctx, userID, "Pierwsza rozmowa")
	require.NoError(t, err)
	second, err := svc.Start(ctx, userID, "Druga rozmowa")
	require.NoError(t, err)

	// Another user's thread stays invisible.
	_, err = svc.Start(ctx, uuid.New(), "Cudza rozmowa")
	require.NoError(t, err)

	list, err := svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []uuid.UUID{list[0].ID, list[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestSendMessageStoresBothTurns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{}
	svc, _ := newService(gen)
	userID := uuid.New()

	conv, err := svc.Start(ctx, userID, "Test")
	require.NoError(t, err)

	reply, err := svc.SendMessage(ctx, userID, conv.ID, "Cześć!")
	require.NoError(t, err)
	assert.Equal(t, conversation.SenderAssistant, reply.Sender)
	assert.Equal(t, "reply 1", reply.Text)

	msgs, err := svc.Messages(ctx, userID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.SenderUser, msgs[0].Sender)
	assert.Equal(t, "Cześć!", msgs[0].Text)
	assert.Equal(t, conversation.SenderAssistant, msgs[1].Sender)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, "Jesteś pomocnym asystentem.", req.System)
	assert.Equal(t, "Cześć!", req.Prompt)
	assert.Empty(t, req.History)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.InDelta(t, 0.35, req.FrequencyPenalty, 1e-9)
}

func TestSendMessageReplaysLatestContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{}
	svc, _ := newService(gen)
	userID := uuid.New()

	conv, err := svc.Start(ctx, userID, "Test")
	require.NoError(t, err)

	for i := range 4 {
		_, err := svc.SendMessage(ctx, userID, conv.ID, fmt.Sprintf("pytanie %d", i))
		require.NoError(t, err)
	}

	// Eight stored messages by now; only the latest four are replayed.
	last := gen.requests[len(gen.requests)-1]
	require.Len(t, last.History, 4)
	assert.Equal(t, "user", last.History[0].Role)
	assert.Equal(t, "pytanie 1", last.History[0].Content)
	assert.Equal(t, "assistant", last.History[1].Role)
	assert.Equal(t, "reply 2", last.History[1].Content)
	assert.Equal(t, "pytanie 2", last.History[2].Content)
	assert.Equal(t, "reply 3", last.History[3].Content)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(&stubGenerator{})

	_, err := svc.SendMessage(context.Background(), uuid.New(), uuid.New(), "Cześć!")
	require.ErrorIs(t, err, conversation.ErrConversationNotFound)
}

func TestSendMessageRejectsNonOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{}
	svc, _ := newService(gen)

	conv, err := svc.Start(ctx, uuid.New(), "Cudza rozmowa")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, uuid.New(), conv.ID, "Cześć!")
	require.ErrorIs(t, err, conversation.ErrNotConversationOwner)
	assert.Empty(t, gen.requests, "no generation for someone else's thread")

	_, err = svc.Messages(ctx, uuid.New(), conv.ID)
	require.ErrorIs(t, err, conversation.ErrNotConversationOwner)
}

func TestSendMessageGenerationFailureStoresNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{fail: errors.New("upstream unavailable")}
	svc, _ := newService(gen)
	userID := uuid.New()

	conv, err := svc.Start(ctx, userID, "Test")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, userID, conv.ID, "Cześć!")
	require.Error(t, err)

	msgs, err := svc.Messages(ctx, userID, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "a failed generation must not leave a dangling turn")
}
