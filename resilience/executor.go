package resilience

import (
	"context"
	"time"
)

// Executor composes the resilience patterns around calls to one dependency.
//
// Calls pass through, outermost first: rate limiter, bulkhead, circuit
// breaker, retry, timeout. The breaker therefore sees one outcome per
// retried call and each attempt gets its own timeout.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. With no options it calls op directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retries.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithRateLimiter adds rate limiting.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead adds a concurrency cap.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout}) }
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.circuitBreaker }

// RateLimiter returns the configured limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter { return e.rateLimiter }

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead { return e.bulkhead }

// Execute runs op through every configured pattern.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	type stage interface {
		Execute(context.Context, func(context.Context) error) error
	}

	// Innermost first.
	var stages []stage
	if e.timeout != nil {
		stages = append(stages, e.timeout)
	}
	if e.retry != nil {
		stages = append(stages, e.retry)
	}
	if e.circuitBreaker != nil {
		stages = append(stages, e.circuitBreaker)
	}
	if e.bulkhead != nil {
		stages = append(stages, e.bulkhead)
	}
	if e.rateLimiter != nil {
		stages = append(stages, e.rateLimiter)
	}

	call := op
	for _, s := range stages {
		inner := call
		call = func(ctx context.Context) error { return s.Execute(ctx, inner) }
	}
	return call(ctx)
}

// Call runs fn through e and returns its value.
func Call[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
