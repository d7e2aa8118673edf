package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/asystentai/backend/pkg/conversation"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type conversationDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	Title       string    `bson:"title"`
	CreatedAt   time.Time `bson:"created_at"`
	LastUpdated time.Time `bson:"last_updated"`
}

type messageDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	Sender         string    `bson:"sender"`
	Text           string    `bson:"text"`
	CreatedAt      time.Time `bson:"created_at"`
}

// ConversationStore is the Mongo-backed conversation.Store.
type ConversationStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewConversationStore creates the conversation store on the given database.
func NewConversationStore(db *mongo.Database) *ConversationStore {
	return &ConversationStore{
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}
}

// EnsureIndexes creates the lookup indexes. Call once at startup.
func (s *ConversationStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "last_updated", Value: -1}},
	}); err != nil {
		return err
	}
	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (s *ConversationStore) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := s.conversations.InsertOne(ctx, conversationDoc{
		ID:          c.ID.String(),
		UserID:      c.UserID.String(),
		Title:       c.Title,
		CreatedAt:   c.CreatedAt,
		LastUpdated: c.LastUpdated,
	})
	return err
}

func (s *ConversationStore) FindConversation(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	var doc conversationDoc
	err := s.conversations.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, conversation.ErrConversationNotFound
		}
		return nil, err
	}
	return docToConversation(doc)
}

func (s *ConversationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	cursor, err := s.conversations.Find(ctx, bson.M{"user_id": userID.String()},
		options.Find().SetSort(bson.D{{Key: "last_updated", Value: -1}}))
	if err != nil {
		return nil, err
	}

	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]conversation.Conversation, 0, len(docs))
	for _, d := range docs {
		c, err := docToConversation(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *ConversationStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"last_updated": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return conversation.ErrConversationNotFound
	}
	return nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, m *conversation.Message) error {
	_, err := s.messages.InsertOne(ctx, messageDoc{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Sender:         m.Sender,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
	})
	return err
}

func (s *ConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]conversation.Message, error) {
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID.String()},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]conversation.Message, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, err
		}
		cid, err := uuid.Parse(d.ConversationID)
		if err != nil {
			return nil, err
		}
		out = append(out, conversation.Message{
			ID:             id,
			ConversationID: cid,
			Sender:         d.Sender,
			Text:           d.Text,
			CreatedAt:      d.CreatedAt,
		})
	}
	return out, nil
}

func docToConversation(d conversationDoc) (*conversation.Conversation, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	return &conversation.Conversation{
		ID:          id,
		UserID:      uid,
		Title:       d.Title,
		CreatedAt:   d.CreatedAt,
		LastUpdated: d.LastUpdated,
	}, nil
}
