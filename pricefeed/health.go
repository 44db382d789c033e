package pricefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/resilience"
)

var _ health.Checker = (*Client)(nil)

// Name implements health.Checker.
func (c *Client) Name() string {
	return c.config.Name
}

// Check implements health.Checker.
//
// An open breaker or a failed ping is unhealthy. Upstream throttling seen
// within ThrottleWindow is degraded, as are a half-open breaker and a
// limiter below its pressure ratio.
func (c *Client) Check(ctx context.Context) health.Result {
	details := map[string]any{"baseURL": c.config.BaseURL}

	cb := c.exec.CircuitBreaker()
	if cb != nil {
		details["circuit"] = cb.State().String()
		if cb.State() == resilience.StateOpen {
			return health.Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
		}
	}
	rl := c.exec.RateLimiter()
	if rl != nil {
		details["tokens"] = rl.Tokens()
		details["burst"] = rl.Burst()
	}

	err := c.Ping(ctx)
	switch {
	case errors.Is(err, ErrRateLimited):
		return health.Degraded("rate limited by upstream").WithDetails(details)
	case err != nil:
		return health.Unhealthy("ping failed", err).WithDetails(details)
	case cb != nil && cb.State() == resilience.StateHalfOpen:
		return health.Degraded("circuit half-open").WithDetails(details)
	case c.recentlyThrottled():
		return health.Degraded("rate limited by upstream").WithDetails(details)
	case rl != nil && rl.UnderPressure():
		return health.Degraded(fmt.Sprintf("rate-limit pressure: %.1f of %d tokens", rl.Tokens(), rl.Burst())).WithDetails(details)
	}
	return health.Healthy("upstream reachable").WithDetails(details)
}
