package auth

import (
	"context"
	"strings"
	"sync"
)

// WhitelistStore holds the emails allowed to start a free trial. Entries are
// consumed: activating a trial removes the email.
type WhitelistStore interface {
	Add(ctx context.Context, email string) error
	Contains(ctx context.Context, email string) (bool, error)
	Remove(ctx context.Context, email string) error
	List(ctx context.Context) ([]string, error)
}

// MemoryWhitelist is an in-memory WhitelistStore for tests and single-node
// deployments.
type MemoryWhitelist struct {
	mu     sync.RWMutex
	emails map[string]struct{}
}

// NewMemoryWhitelist creates a whitelist preloaded with the given emails.
func NewMemoryWhitelist(emails ...string) *MemoryWhitelist {
	w := &MemoryWhitelist{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		w.emails[normalizeEmail(e)] = struct{}{}
	}
	return w
}

func (w *MemoryWhitelist) Add(ctx context.Context, email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emails[normalizeEmail(email)] = struct{}{}
	return nil
}

func (w *MemoryWhitelist) Contains(ctx context.Context, email string) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.emails[normalizeEmail(email)]
	return ok, nil
}

func (w *MemoryWhitelist) Remove(ctx context.Context, email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.emails, normalizeEmail(email))
	return nil
}

func (w *MemoryWhitelist) List(ctx context.Context) ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.emails))
	for e := range w.emails {
		out = append(out, e)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
