package cache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache stores opaque values with a TTL.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: Get never errors; backend failures are reported as a miss.
type Cache interface {
	// Get retrieves a cached value. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. A TTL <= 0 stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Stats holds cache counters since creation.
type Stats struct {
	Hits   int64
	Misses int64
	Sets   int64
	Size   int
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StatsReporter is implemented by caches that count their lookups.
type StatsReporter interface {
	Stats() Stats
}

// counters is embedded by backends to track lookups.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

func (c *counters) hit()  { c.hits.Add(1) }
func (c *counters) miss() { c.misses.Add(1) }
func (c *counters) set()  { c.sets.Add(1) }

func (c *counters) snapshot(size int) Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Size:   size,
	}
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}
