package cache

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-lobby/internal/models"
)

// MemoryCache is a tiny in-process TTL cache for ride snapshots, the
// fallback when no Redis address is configured.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]entry
	ttl   time.Duration
}

type entry struct {
	snap models.Snapshot
	ts   time.Time
}

// NewMemoryCache creates a cache with the provided TTL. A zero TTL disables
// expiry, which only makes sense in tests.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: make(map[string]entry), ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, key string) (models.Snapshot, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, false
	}
	if c.ttl > 0 && time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return models.Snapshot{}, false
	}
	return e.snap, true
}

func (c *MemoryCache) Set(_ context.Context, key string, snap models.Snapshot) {
	c.mu.Lock()
	c.store[key] = entry{snap: snap, ts: time.Now()}
	c.mu.Unlock()
}
