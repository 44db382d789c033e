package probes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/resilience"
)

// RetryProbe re-runs a probe that reports down. Degraded and up outcomes
// are returned immediately. Retries share the caller's context, so they
// never extend the probe timeout.
type RetryProbe struct {
	inner health.Probe
	retry *resilience.Retry
}

// NewRetryProbe wraps inner with retry.
func NewRetryProbe(inner health.Probe, retry *resilience.Retry) *RetryProbe {
	return &RetryProbe{inner: inner, retry: retry}
}

// Run implements health.Probe. The returned outcome is the last attempt's,
// with the attempt count recorded in Detail when more than one was made.
func (p *RetryProbe) Run(ctx context.Context) health.Outcome {
	if err := ctx.Err(); err != nil {
		return health.DownOutcome(fmt.Errorf("%w: %v", health.ErrProbeCancelled, err), nil)
	}

	var (
		last     health.Outcome
		attempts int
	)
	err := p.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		last = p.inner.Run(ctx)
		if last.Status == health.ProbeDown {
			return errors.New(last.Error)
		}
		return nil
	})
	if attempts == 0 {
		return health.DownOutcome(err, nil)
	}
	if attempts > 1 {
		detail := make(map[string]any, len(last.Detail)+1)
		for k, v := range last.Detail {
			detail[k] = v
		}
		detail["attempts"] = attempts
		last.Detail = detail
	}
	return last
}
