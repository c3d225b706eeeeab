package lock

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryBackend keeps leases in a process-local map. Suitable for a single node.
type MemoryBackend struct {
	mu     sync.Mutex
	leases map[string]entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{leases: make(map[string]entry)}
}

func (b *MemoryBackend) TryAcquire(_ context.Context, key, token string, now, expiresAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.leases[key]; ok && now.Before(cur.expiresAt) {
		return false, nil
	}
	b.leases[key] = entry{token: token, expiresAt: expiresAt}
	return true, nil
}

func (b *MemoryBackend) Release(_ context.Context, key, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.leases[key]; ok && cur.token == token {
		delete(b.leases, key)
	}
	return nil
}

// Held reports whether key currently has an unexpired lease at now
func (b *MemoryBackend) Held(key string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.leases[key]
	return ok && now.Before(cur.expiresAt)
}
