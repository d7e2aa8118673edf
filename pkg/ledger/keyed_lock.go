package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// keyedLock serializes read-modify-write cycles per user. Concurrent webhook
// retries and consumption requests for the same user take the same mutex;
// unrelated users proceed in parallel.
type keyedLock struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[uuid.UUID]*userLock)}
}

// Lock acquires the lock for the given user and returns its unlock func.
func (k *keyedLock) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &userLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
