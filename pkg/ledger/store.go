package ledger

import (
	"context"

	"github.com/google/uuid"
)

// UserStore persists user records. Save must replace the whole record;
// the service serializes writes per user, so implementations do not need
// their own optimistic locking.
type UserStore interface {
	// Create inserts a new user. Returns ErrUserAlreadyExists if the email
	// is taken.
	Create(ctx context.Context, user *User) error

	// FindByID retrieves a user by ID. Returns ErrUserNotFound if missing.
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindByEmail retrieves a user by email. Returns ErrUserNotFound if missing.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Save updates an existing user record.
	Save(ctx context.Context, user *User) error
}

// TransactionStore is the append-only store for ledger entries.
type TransactionStore interface {
	Append(ctx context.Context, tx *Transaction) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error)
}

// PaymentStore is the append-only store for purchase records.
type PaymentStore interface {
	Append(ctx context.Context, p *Payment) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Payment, error)
}

// SnapshotStore is the append-only store for balance snapshots.
type SnapshotStore interface {
	Append(ctx context.Context, s *BalanceSnapshot) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]BalanceSnapshot, error)
}
