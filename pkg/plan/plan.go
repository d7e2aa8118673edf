// Package plan manages the subscription plan catalog: the plan model, its
// stores, a YAML catalog source and the admin-facing CRUD service.
package plan

import (
	"context"
	"time"

	"github.com/asystentai/backend/pkg/ledger"
)

// Plan describes a subscription tier. MonthlyTokens is credited on every
// activation and renewal; PriceID maps the plan to the payment processor's
// price object.
type Plan struct {
	ID            string       `json:"id" yaml:"id" bson:"_id"`
	PriceID       string       `json:"price_id" yaml:"price_id" bson:"price_id"`
	Name          string       `json:"name" yaml:"name" bson:"name"`
	Type          string       `json:"type" yaml:"type" bson:"type"`
	MonthlyTokens int64        `json:"monthly_tokens" yaml:"monthly_tokens" bson:"monthly_tokens"`
	Price         ledger.Money `json:"price" yaml:"price" bson:"price"`
	TokenPrice    ledger.Money `json:"token_price" yaml:"token_price" bson:"token_price"`
	AccountLimit  int          `json:"account_limit" yaml:"account_limit" bson:"account_limit"`
	CreatedAt     time.Time    `json:"created_at" yaml:"-" bson:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" yaml:"-" bson:"updated_at"`
}

// Store persists the plan catalog.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Save(ctx context.Context, p *Plan) error
	Delete(ctx context.Context, id string) error
}
