package plan

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation for tests and for
// deployments that load the catalog from a file at startup.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewMemoryStore creates an empty in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]Plan)}
}

// NewMemoryStoreFromSource loads the catalog from the given source into a
// fresh memory store.
func NewMemoryStoreFromSource(ctx context.Context, src Source) (*MemoryStore, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}

	store := NewMemoryStore()
	for _, p := range plans {
		store.plans[p.ID] = p
	}
	return store, nil
}

func (m *MemoryStore) Create(ctx context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plans[p.ID]; exists {
		return ErrPlanAlreadyExists
	}
	m.plans[p.ID] = *p
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &p, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plans[p.ID]; !ok {
		return ErrPlanNotFound
	}
	m.plans[p.ID] = *p
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plans[id]; !ok {
		return ErrPlanNotFound
	}
	delete(m.plans, id)
	return nil
}
