package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/asystentai/backend/pkg/invoicing"
)

const invoiceJobsCollection = "invoice_jobs"

type invoiceJobDoc struct {
	ID            string                  `bson:"_id"`
	Client        invoicing.ClientDetails `bson:"client"`
	Invoice       invoicing.Invoice       `bson:"invoice"`
	Status        string                  `bson:"status"`
	Attempts      int                     `bson:"attempts"`
	LastError     string                  `bson:"last_error,omitempty"`
	NextAttemptAt  time.Time               `bson:"next_attempt_at"`
	LeaseExpiresAt time.Time               `bson:"lease_expires_at,omitempty"`
	CreatedAt      time.Time               `bson:"created_at"`
}

// InvoiceJobStore is the Mongo-backed invoicing.JobStore. Claiming uses an
// atomic find-and-update so concurrent workers never run the same job twice.
type InvoiceJobStore struct {
	coll *mongo.Collection
}

// NewInvoiceJobStore creates the invoice outbox store on the given database.
func NewInvoiceJobStore(db *mongo.Database) *InvoiceJobStore {
	return &InvoiceJobStore{coll: db.Collection(invoiceJobsCollection)}
}

func (s *InvoiceJobStore) Enqueue(ctx context.Context, job *invoicing.Job) error {
	_, err := s.coll.InsertOne(ctx, invoiceJobDoc{
		ID:            job.ID.String(),
		Client:        job.Client,
		Invoice:       job.Invoice,
		Status:        string(job.Status),
		Attempts:      job.Attempts,
		LastError:     job.LastError,
		NextAttemptAt: job.NextAttemptAt,
		CreatedAt:     job.CreatedAt,
	})
	return err
}

func (s *InvoiceJobStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) (*invoicing.Job, error) {
	// Due pending jobs, plus processing jobs whose lease expired because a
	// worker died mid-delivery.
	filter := bson.M{"$or": bson.A{
		bson.M{
			"status":          string(invoicing.JobPending),
			"next_attempt_at": bson.M{"$lte": now},
		},
		bson.M{
			"status":           string(invoicing.JobProcessing),
			"lease_expires_at": bson.M{"$lte": now},
		},
	}}
	update := bson.M{"$set": bson.M{
		"status":           string(invoicing.JobProcessing),
		"lease_expires_at": now.Add(lease),
	}}

	var doc invoiceJobDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "next_attempt_at", Value: 1}}).
			SetReturnDocument(options.After)).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, err
	}
	return &invoicing.Job{
		ID:             id,
		Client:         doc.Client,
		Invoice:        doc.Invoice,
		Status:         invoicing.JobStatus(doc.Status),
		Attempts:       doc.Attempts,
		LastError:      doc.LastError,
		NextAttemptAt:  doc.NextAttemptAt,
		LeaseExpiresAt: doc.LeaseExpiresAt,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

func (s *InvoiceJobStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, bson.M{
		"$set": bson.M{"status": string(invoicing.JobDelivered)},
	})
}

func (s *InvoiceJobStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) error {
	return s.update(ctx, id, bson.M{
		"$set": bson.M{
			"status":          string(invoicing.JobPending),
			"last_error":      errMsg,
			"next_attempt_at": nextAttempt,
		},
		"$inc": bson.M{"attempts": 1},
	})
}

func (s *InvoiceJobStore) Park(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.update(ctx, id, bson.M{
		"$set": bson.M{
			"status":     string(invoicing.JobParked),
			"last_error": errMsg,
		},
		"$inc": bson.M{"attempts": 1},
	})
}

func (s *InvoiceJobStore) update(ctx context.Context, id uuid.UUID, update bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return invoicing.ErrJobNotFound
	}
	return nil
}
