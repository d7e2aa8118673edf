package billing

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventStore records processed webhook event IDs. MarkProcessed returns true
// exactly once per event ID; retried deliveries of the same event see false.
type EventStore interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// MemoryEventStore is an in-memory EventStore for tests and single-node
// deployments.
type MemoryEventStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{seen: make(map[string]struct{})}
}

func (m *MemoryEventStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = struct{}{}
	return true, nil
}

const defaultEventTTL = 90 * 24 * time.Hour

// RedisEventStore keeps processed-event markers in Redis so that retried
// deliveries are deduplicated across instances and restarts.
type RedisEventStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisEventStore creates a Redis-backed event store. TTL bounds how long
// a processor may retry a delivery; zero uses a 90-day default.
func NewRedisEventStore(client *redis.Client, ttl time.Duration) *RedisEventStore {
	if client == nil {
		panic("billing: redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultEventTTL
	}
	return &RedisEventStore{client: client, prefix: "billing:event:", ttl: ttl}
}

func (r *RedisEventStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+eventID, 1, r.ttl).Result()
}
