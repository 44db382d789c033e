package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/healthops/health"
)

// MemoryCache is an in-process cache with lazy expiry.
type MemoryCache struct {
	name string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry

	counters
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

var (
	_ Cache          = (*MemoryCache)(nil)
	_ StatsReporter  = (*MemoryCache)(nil)
	_ health.Checker = (*MemoryCache)(nil)
)

// NewMemoryCache creates an empty cache reported under name.
func NewMemoryCache(name string) *MemoryCache {
	if name == "" {
		name = "memory-cache"
	}
	return &MemoryCache{
		name:    name,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the value for key unless it is missing or expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.miss()
		return nil, false
	}
	c.hit()
	return e.value, true
}

// Set stores value for ttl. A ttl <= 0 is ignored.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	c.set()
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats implements StatsReporter.
func (c *MemoryCache) Stats() Stats {
	return c.snapshot(c.Len())
}

// Name implements health.Checker.
func (c *MemoryCache) Name() string {
	return c.name
}

// Check implements health.Checker. An in-process cache is always reachable.
func (c *MemoryCache) Check(context.Context) health.Result {
	s := c.Stats()
	return health.Healthy(fmt.Sprintf("%d entries", s.Size)).WithDetails(map[string]any{
		"backend":  "memory",
		"entries":  s.Size,
		"hitRatio": s.HitRatio(),
	})
}
