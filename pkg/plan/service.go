package plan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/asystentai/backend/pkg/ledger"
)

// Service exposes catalog reads to everyone and mutations to admin callers;
// authorization is enforced at the HTTP layer.
type Service struct {
	store Store
	users ledger.UserStore
}

// NewService creates a plan service. The user store is used for direct plan
// assignment; panics on nil dependencies to fail fast during initialization.
func NewService(store Store, users ledger.UserStore) *Service {
	if store == nil {
		panic("plan: Store is required")
	}
	if users == nil {
		panic("plan: UserStore is required")
	}
	return &Service{store: store, users: users}
}

func (s *Service) Get(ctx context.Context, id string) (*Plan, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Plan, error) {
	return s.store.List(ctx)
}

func (s *Service) Create(ctx context.Context, p *Plan) error {
	if err := validate(*p); err != nil {
		return err
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.store.Create(ctx, p)
}

// Update replaces the mutable plan fields. Plans referenced by active
// subscription cycles keep their credited token amounts; the change takes
// effect on the next renewal.
func (s *Service) Update(ctx context.Context, id string, name string, monthlyTokens int64, price ledger.Money) (*Plan, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Name = name
	p.MonthlyTokens = monthlyTokens
	p.Price = price
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// AssignToUser sets the user's plan and resets the balance to the plan's
// monthly token allowance. Admin operation, not part of the billing flow.
func (s *Service) AssignToUser(ctx context.Context, userID uuid.UUID, planID string) (*ledger.User, error) {
	p, err := s.store.Get(ctx, planID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.PlanID = &p.ID
	user.TokenBalance = p.MonthlyTokens
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
