package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service applies credits and debits to user balances. All mutations of a
// user's ledger state go through this type; it owns the per-user locks.
type Service struct {
	users        UserStore
	transactions TransactionStore
	payments     PaymentStore
	snapshots    SnapshotStore
	locks        *keyedLock
	logger       *slog.Logger
}

// ServiceOption configures optional service settings.
type ServiceOption func(*Service)

// WithLogger sets the logger used for recovery warnings.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a balance service. Panics if a required store is nil to
// fail fast during initialization.
func NewService(users UserStore, transactions TransactionStore, payments PaymentStore, snapshots SnapshotStore, opts ...ServiceOption) *Service {
	if users == nil {
		panic("ledger: UserStore is required")
	}
	if transactions == nil {
		panic("ledger: TransactionStore is required")
	}
	if payments == nil {
		panic("ledger: PaymentStore is required")
	}
	if snapshots == nil {
		panic("ledger: SnapshotStore is required")
	}

	s := &Service{
		users:        users,
		transactions: transactions,
		payments:     payments,
		snapshots:    snapshots,
		locks:        newKeyedLock(),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type applyOptions struct {
	planID        *string
	payment       *Payment
	referralPaid  bool
	countReferral bool
}

// Option adjusts a single credit or debit so that related user-state changes
// (plan assignment, purchase records, referral bookkeeping) are persisted in
// the same locked unit as the balance change.
type Option func(*applyOptions)

// WithPlan assigns the plan to the user together with the balance change.
func WithPlan(planID string) Option {
	return func(o *applyOptions) { o.planID = &planID }
}

// WithPayment appends a purchase record in the same logical unit.
func WithPayment(price Money, tokens int64, title string, typ PaymentType) Option {
	return func(o *applyOptions) {
		o.payment = &Payment{Price: price, Tokens: tokens, Title: title, Type: typ}
	}
}

// WithReferralPaid claims the user's one-time referral bonus together with
// the credit. The claim is checked against the freshly read record inside the
// lock; if the bonus was already paid the whole credit fails with
// ErrReferralAlreadyPaid and nothing is persisted.
func WithReferralPaid() Option {
	return func(o *applyOptions) { o.referralPaid = true }
}

// WithReferralCountIncrement bumps the user's referral counter. Applied on
// the referrer's side of a referral bonus.
func WithReferralCountIncrement() Option {
	return func(o *applyOptions) { o.countReferral = true }
}

// Credit adds tokens to the user's balance and appends an income transaction.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64, title string, opts ...Option) (*Transaction, error) {
	tx, _, err := s.apply(ctx, userID, amount, title, TransactionIncome, false, opts)
	return tx, err
}

// Debit removes tokens from the user's balance and appends an expense
// transaction. Fails with ErrInsufficientBalance when amount exceeds the
// current balance; nothing is persisted in that case.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount int64, title string, opts ...Option) (*Transaction, error) {
	tx, _, err := s.apply(ctx, userID, amount, title, TransactionExpense, false, opts)
	return tx, err
}

// DebitOverdraft removes tokens even if it drives the balance negative.
// Used for post-hoc settlement of usage that already happened. The returned
// bool reports whether the user ended up balance-deficient.
func (s *Service) DebitOverdraft(ctx context.Context, userID uuid.UUID, amount int64, title string, opts ...Option) (*Transaction, bool, error) {
	return s.apply(ctx, userID, amount, title, TransactionExpense, true, opts)
}

func (s *Service) apply(ctx context.Context, userID uuid.UUID, amount int64, title string, typ TransactionType, allowOverdraft bool, opts []Option) (*Transaction, bool, error) {
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}

	options := &applyOptions{}
	for _, opt := range opts {
		opt(options)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	if options.referralPaid && user.ReferralPaid {
		return nil, false, ErrReferralAlreadyPaid
	}

	delta := amount
	if typ == TransactionExpense {
		if !allowOverdraft && amount > user.TokenBalance {
			return nil, false, ErrInsufficientBalance
		}
		delta = -amount
	}

	now := time.Now().UTC()
	user.TokenBalance += delta
	user.BalanceDeficient = user.TokenBalance < 0
	user.UpdatedAt = now

	if options.planID != nil {
		user.PlanID = options.planID
	}
	if options.referralPaid {
		user.ReferralPaid = true
	}
	if options.countReferral {
		user.ReferralCount++
	}

	tx := &Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Value:     amount,
		Title:     title,
		Type:      typ,
		Timestamp: now,
	}

	if err := s.users.Save(ctx, user); err != nil {
		return nil, false, fmt.Errorf("ledger: failed to save user %s: %w", userID, err)
	}

	// The user record is already persisted; any failure from here on leaves
	// the ledger inconsistent with the balance and must be reported as
	// recoverable.
	if err := s.transactions.Append(ctx, tx); err != nil {
		return nil, false, errors.Join(ErrLedgerWriteIncomplete, err)
	}

	if options.payment != nil {
		p := *options.payment
		p.ID = uuid.New()
		p.UserID = userID
		p.Timestamp = now
		if err := s.payments.Append(ctx, &p); err != nil {
			return nil, false, errors.Join(ErrLedgerWriteIncomplete, err)
		}
	}

	snapshot := &BalanceSnapshot{UserID: userID, Timestamp: now, Balance: user.TokenBalance}
	if err := s.snapshots.Append(ctx, snapshot); err != nil {
		return nil, false, errors.Join(ErrLedgerWriteIncomplete, err)
	}

	return tx, user.BalanceDeficient, nil
}

// Update applies fn to a freshly read user record inside the per-user
// critical section and persists the result. Callers holding a user value
// fetched earlier must not Save it directly: Save replaces the whole record
// and would overwrite any credit or debit applied since the fetch.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, fn func(*User)) (*User, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fn(user)
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("ledger: failed to save user %s: %w", userID, err)
	}
	return user, nil
}

// Recompute rebuilds the user's balance from the transaction list and
// appends a corrective snapshot. It is the recovery path for
// ErrLedgerWriteIncomplete.
func (s *Service) Recompute(ctx context.Context, userID uuid.UUID) (int64, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	txs, err := s.transactions.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ledger: failed to list transactions for %s: %w", userID, err)
	}

	var balance int64
	for _, tx := range txs {
		balance += tx.Signed()
	}

	if balance == user.TokenBalance {
		return balance, nil
	}

	s.logger.WarnContext(ctx, "recomputed balance diverged from stored balance",
		slog.String("user_id", userID.String()),
		slog.Int64("stored", user.TokenBalance),
		slog.Int64("recomputed", balance))

	now := time.Now().UTC()
	user.TokenBalance = balance
	user.BalanceDeficient = balance < 0
	user.UpdatedAt = now
	if err := s.users.Save(ctx, user); err != nil {
		return 0, fmt.Errorf("ledger: failed to save recomputed balance for %s: %w", userID, err)
	}

	snapshot := &BalanceSnapshot{UserID: userID, Timestamp: now, Balance: balance}
	if err := s.snapshots.Append(ctx, snapshot); err != nil {
		return balance, errors.Join(ErrLedgerWriteIncomplete, err)
	}

	return balance, nil
}

// Balance returns the user's current token balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.TokenBalance, nil
}

// Transactions returns the user's ledger entries ordered by timestamp.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	return s.transactions.ListByUser(ctx, userID)
}

// Payments returns the user's purchase records ordered by timestamp.
func (s *Service) Payments(ctx context.Context, userID uuid.UUID) ([]Payment, error) {
	return s.payments.ListByUser(ctx, userID)
}
