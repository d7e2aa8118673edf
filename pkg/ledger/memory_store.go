package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of UserStore, TransactionStore,
// PaymentStore and SnapshotStore. Intended for tests and local development;
// production deployments use the mongodb-backed stores.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[uuid.UUID]User
	byEmail      map[string]uuid.UUID
	transactions map[uuid.UUID][]Transaction
	payments     map[uuid.UUID][]Payment
	snapshots    map[uuid.UUID][]BalanceSnapshot

	// FailTransactionAppend makes the next transaction append fail, to
	// exercise partial-write recovery in tests.
	FailTransactionAppend error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[uuid.UUID]User),
		byEmail:      make(map[string]uuid.UUID),
		transactions: make(map[uuid.UUID][]Transaction),
		payments:     make(map[uuid.UUID][]Payment),
		snapshots:    make(map[uuid.UUID][]BalanceSnapshot),
	}
}

func (m *MemoryStore) Create(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := m.byEmail[email]; exists {
		return ErrUserAlreadyExists
	}
	m.users[user.ID] = *user
	m.byEmail[email] = user.ID
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := m.users[id]
	return &user, nil
}

func (m *MemoryStore) Save(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailTransactionAppend; err != nil {
		m.FailTransactionAppend = nil
		return err
	}
	m.transactions[tx.UserID] = append(m.transactions[tx.UserID], *tx)
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := m.transactions[userID]
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

// Payments returns a PaymentStore view over the same store.
func (m *MemoryStore) Payments() PaymentStore { return (*memoryPayments)(m) }

// Snapshots returns a SnapshotStore view over the same store.
func (m *MemoryStore) Snapshots() SnapshotStore { return (*memorySnapshots)(m) }

type memoryPayments MemoryStore

func (m *memoryPayments) Append(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.UserID] = append(m.payments[p.UserID], *p)
	return nil
}

func (m *memoryPayments) ListByUser(ctx context.Context, userID uuid.UUID) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps := m.payments[userID]
	out := make([]Payment, len(ps))
	copy(out, ps)
	return out, nil
}

type memorySnapshots MemoryStore

func (m *memorySnapshots) Append(ctx context.Context, s *BalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.UserID] = append(m.snapshots[s.UserID], *s)
	return nil
}

func (m *memorySnapshots) ListByUser(ctx context.Context, userID uuid.UUID) ([]BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ss := m.snapshots[userID]
	out := make([]BalanceSnapshot, len(ss))
	copy(out, ss)
	return out, nil
}
