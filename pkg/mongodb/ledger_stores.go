package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/asystentai/backend/pkg/ledger"
)

const (
	transactionsCollection = "transactions"
	paymentsCollection     = "payments"
	snapshotsCollection    = "balance_snapshots"
)

type transactionDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Value     int64     `bson:"value"`
	Title     string    `bson:"title"`
	Type      string    `bson:"type"`
	Timestamp time.Time `bson:"timestamp"`
}

type paymentDoc struct {
	ID        string       `bson:"_id"`
	UserID    string       `bson:"user_id"`
	Price     ledger.Money `bson:"price"`
	Tokens    int64        `bson:"tokens"`
	Title     string       `bson:"title"`
	Type      string       `bson:"type"`
	Timestamp time.Time    `bson:"timestamp"`
}

type snapshotDoc struct {
	UserID    string    `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Balance   int64     `bson:"balance"`
}

// TransactionStore is the Mongo-backed ledger.TransactionStore.
type TransactionStore struct {
	coll *mongo.Collection
}

// NewTransactionStore creates the transaction store on the given database.
func NewTransactionStore(db *mongo.Database) *TransactionStore {
	return &TransactionStore{coll: db.Collection(transactionsCollection)}
}

// EnsureIndexes creates the user_id lookup index. Call once at startup.
func (s *TransactionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	return err
}

func (s *TransactionStore) Append(ctx context.Context, tx *ledger.Transaction) error {
	_, err := s.coll.InsertOne(ctx, transactionDoc{
		ID:        tx.ID.String(),
		UserID:    tx.UserID.String(),
		Value:     tx.Value,
		Title:     tx.Title,
		Type:      string(tx.Type),
		Timestamp: tx.Timestamp,
	})
	return err
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Transaction, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []transactionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]ledger.Transaction, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, err
		}
		uid, err := uuid.Parse(d.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.Transaction{
			ID:        id,
			UserID:    uid,
			Value:     d.Value,
			Title:     d.Title,
			Type:      ledger.TransactionType(d.Type),
			Timestamp: d.Timestamp,
		})
	}
	return out, nil
}

// PaymentStore is the Mongo-backed ledger.PaymentStore.
type PaymentStore struct {
	coll *mongo.Collection
}

// NewPaymentStore creates the payment store on the given database.
func NewPaymentStore(db *mongo.Database) *PaymentStore {
	return &PaymentStore{coll: db.Collection(paymentsCollection)}
}

func (s *PaymentStore) Append(ctx context.Context, p *ledger.Payment) error {
	_, err := s.coll.InsertOne(ctx, paymentDoc{
		ID:        p.ID.String(),
		UserID:    p.UserID.String(),
		Price:     p.Price,
		Tokens:    p.Tokens,
		Title:     p.Title,
		Type:      string(p.Type),
		Timestamp: p.Timestamp,
	})
	return err
}

func (s *PaymentStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Payment, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []paymentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]ledger.Payment, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, err
		}
		uid, err := uuid.Parse(d.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.Payment{
			ID:        id,
			UserID:    uid,
			Price:     d.Price,
			Tokens:    d.Tokens,
			Title:     d.Title,
			Type:      ledger.PaymentType(d.Type),
			Timestamp: d.Timestamp,
		})
	}
	return out, nil
}

// SnapshotStore is the Mongo-backed ledger.SnapshotStore.
type SnapshotStore struct {
	coll *mongo.Collection
}

// NewSnapshotStore creates the snapshot store on the given database.
func NewSnapshotStore(db *mongo.Database) *SnapshotStore {
	return &SnapshotStore{coll: db.Collection(snapshotsCollection)}
}

func (s *SnapshotStore) Append(ctx context.Context, snap *ledger.BalanceSnapshot) error {
	_, err := s.coll.InsertOne(ctx, snapshotDoc{
		UserID:    snap.UserID.String(),
		Timestamp: snap.Timestamp,
		Balance:   snap.Balance,
	})
	return err
}

func (s *SnapshotStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]ledger.BalanceSnapshot, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []snapshotDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]ledger.BalanceSnapshot, 0, len(docs))
	for _, d := range docs {
		uid, err := uuid.Parse(d.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.BalanceSnapshot{
			UserID:    uid,
			Timestamp: d.Timestamp,
			Balance:   d.Balance,
		})
	}
	return out, nil
}
