package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/asystentai/backend/pkg/ledger"
	"github.com/asystentai/backend/pkg/plan"
)

const plansCollection = "plans"

type planDoc struct {
	ID            string       `bson:"_id"`
	PriceID       string       `bson:"price_id"`
	Name          string       `bson:"name"`
	Type          string       `bson:"type"`
	MonthlyTokens int64        `bson:"monthly_tokens"`
	Price         ledger.Money `bson:"price"`
	TokenPrice    ledger.Money `bson:"token_price"`
	AccountLimit  int          `bson:"account_limit"`
	CreatedAt     time.Time    `bson:"created_at"`
	UpdatedAt     time.Time    `bson:"updated_at"`
}

func toPlanDoc(p *plan.Plan) planDoc {
	return planDoc{
		ID:            p.ID,
		PriceID:       p.PriceID,
		Name:          p.Name,
		Type:          p.Type,
		MonthlyTokens: p.MonthlyTokens,
		Price:         p.Price,
		TokenPrice:    p.TokenPrice,
		AccountLimit:  p.AccountLimit,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (d planDoc) toPlan() plan.Plan {
	return plan.Plan{
		ID:            d.ID,
		PriceID:       d.PriceID,
		Name:          d.Name,
		Type:          d.Type,
		MonthlyTokens: d.MonthlyTokens,
		Price:         d.Price,
		TokenPrice:    d.TokenPrice,
		AccountLimit:  d.AccountLimit,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// PlanStore is the Mongo-backed plan.Store.
type PlanStore struct {
	coll *mongo.Collection
}

// NewPlanStore creates the plan store on the given database.
func NewPlanStore(db *mongo.Database) *PlanStore {
	return &PlanStore{coll: db.Collection(plansCollection)}
}

func (s *PlanStore) Create(ctx context.Context, p *plan.Plan) error {
	_, err := s.coll.InsertOne(ctx, toPlanDoc(p))
	if mongo.IsDuplicateKeyError(err) {
		return plan.ErrPlanAlreadyExists
	}
	return err
}

func (s *PlanStore) Get(ctx context.Context, id string) (*plan.Plan, error) {
	var doc planDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, plan.ErrPlanNotFound
		}
		return nil, err
	}
	p := doc.toPlan()
	return &p, nil
}

func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "price.amount", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []planDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]plan.Plan, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toPlan())
	}
	return out, nil
}

func (s *PlanStore) Save(ctx context.Context, p *plan.Plan) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, toPlanDoc(p))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return plan.ErrPlanNotFound
	}
	return nil
}

func (s *PlanStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return plan.ErrPlanNotFound
	}
	return nil
}
