package mongodb

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const whitelistCollection = "trial_whitelist"

type whitelistDoc struct {
	Email   string    `bson:"_id"`
	AddedAt time.Time `bson:"added_at"`
}

// WhitelistStore is the Mongo-backed auth.WhitelistStore.
type WhitelistStore struct {
	coll *mongo.Collection
}

// NewWhitelistStore creates the trial whitelist store on the given database.
func NewWhitelistStore(db *mongo.Database) *WhitelistStore {
	return &WhitelistStore{coll: db.Collection(whitelistCollection)}
}

func (s *WhitelistStore) Add(ctx context.Context, email string) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": normalizeEmail(email)},
		whitelistDoc{Email: normalizeEmail(email), AddedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true))
	return err
}

func (s *WhitelistStore) Contains(ctx context.Context, email string) (bool, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"_id": normalizeEmail(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *WhitelistStore) Remove(ctx context.Context, email string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": normalizeEmail(email)})
	return err
}

func (s *WhitelistStore) List(ctx context.Context) ([]string, error) {
	cursor, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	var docs []whitelistDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Email)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
