package resilience

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/healthops/health"
)

// DefaultPressureRatio is the fraction of the burst below which a limiter
// reports itself degraded.
const DefaultPressureRatio = 0.2

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Name identifies the limiter in health reports.
	// Default: "rate-limiter"
	Name string

	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the bucket size.
	// Default: 10
	Burst int

	// WaitOnLimit makes Execute wait for a token instead of failing.
	WaitOnLimit bool

	// MaxWait bounds how long Wait blocks for a token.
	// Default: 1 second
	MaxWait time.Duration

	// PressureRatio is the fraction of Burst below which Check reports
	// degraded. Default: DefaultPressureRatio
	PressureRatio float64
}

// RateLimiter is a token bucket guarding calls to a dependency or an
// expensive endpoint.
type RateLimiter struct {
	config   RateLimiterConfig
	limiter  atomic.Pointer[rate.Limiter]
	rejected atomic.Int64
}

var _ health.Checker = (*RateLimiter)(nil)

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Name == "" {
		config.Name = "rate-limiter"
	}
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}
	if config.PressureRatio <= 0 {
		config.PressureRatio = DefaultPressureRatio
	}
	rl := &RateLimiter{config: config}
	rl.Reset()
	return rl
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN takes n tokens if available.
func (rl *RateLimiter) AllowN(n int) bool {
	if rl.limiter.Load().AllowN(time.Now(), n) {
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Wait blocks until a token is available, ctx is done, or MaxWait elapses.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := rl.limiter.Load().Reserve()
	if !r.OK() {
		rl.rejected.Add(1)
		return ErrRateLimitExceeded
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if delay > rl.config.MaxWait {
		r.Cancel()
		rl.rejected.Add(1)
		return ErrRateLimitExceeded
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Execute runs op if a token is available.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.WaitOnLimit {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	} else if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

// Tokens returns the number of tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.Load().Tokens()
}

// Burst returns the bucket size.
func (rl *RateLimiter) Burst() int {
	return rl.config.Burst
}

// Rejected returns how many calls were refused.
func (rl *RateLimiter) Rejected() int64 {
	return rl.rejected.Load()
}

// Reset refills the bucket.
func (rl *RateLimiter) Reset() {
	rl.limiter.Store(rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst))
}

// UnderPressure reports whether the available tokens have fallen below the
// pressure ratio of the burst.
func (rl *RateLimiter) UnderPressure() bool {
	return rl.pressured(rl.Tokens())
}

func (rl *RateLimiter) pressured(tokens float64) bool {
	return tokens < float64(rl.config.Burst)*rl.config.PressureRatio
}

// Name implements health.Checker.
func (rl *RateLimiter) Name() string {
	return rl.config.Name
}

// Check implements health.Checker. A limiter never reports unhealthy; an
// almost empty bucket is degraded.
func (rl *RateLimiter) Check(ctx context.Context) health.Result {
	tokens := rl.Tokens()
	details := map[string]any{
		"tokens":   tokens,
		"burst":    rl.config.Burst,
		"rate":     rl.config.Rate,
		"rejected": rl.Rejected(),
	}
	if rl.pressured(tokens) {
		msg := fmt.Sprintf("rate limit pressure: %.1f of %d tokens left", tokens, rl.config.Burst)
		return health.Degraded(msg).WithDetails(details)
	}
	return health.Healthy("rate limit ok").WithDetails(details)
}
