package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of operations allowed in flight.
	// Default: 10
	MaxConcurrent int

	// MaxWait is how long Acquire waits for a slot. Zero fails immediately.
	MaxWait time.Duration
}

// Bulkhead caps the number of concurrent calls into a dependency.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted

	active    atomic.Int64
	maxActive atomic.Int64
	rejected  atomic.Int64
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// Acquire takes a slot, waiting up to MaxWait. It returns ErrBulkheadFull
// when no slot frees up in time and ctx.Err() when ctx ends first.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if !b.sem.TryAcquire(1) {
		if b.config.MaxWait <= 0 {
			b.rejected.Add(1)
			return ErrBulkheadFull
		}
		waitCtx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
		defer cancel()
		if err := b.sem.Acquire(waitCtx, 1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.rejected.Add(1)
			return ErrBulkheadFull
		}
	}

	n := b.active.Add(1)
	for {
		peak := b.maxActive.Load()
		if n <= peak || b.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (b *Bulkhead) Release() {
	b.active.Add(-1)
	b.sem.Release(1)
}

// Execute runs op inside a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

// Metrics returns current bulkhead figures.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	active := int(b.active.Load())
	return BulkheadMetrics{
		Active:        active,
		MaxActive:     int(b.maxActive.Load()),
		Available:     b.config.MaxConcurrent - active,
		MaxConcurrent: b.config.MaxConcurrent,
		Rejected:      b.rejected.Load(),
	}
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	Rejected      int64
}
