package probes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonwraymond/healthops/health"
)

// HTTPProbe checks an HTTP endpoint.
type HTTPProbe struct {
	// Target is the URL to request.
	Target string

	// Method is the request method. Default: GET.
	Method string

	// Client performs the request. Default: http.DefaultClient.
	Client *http.Client

	// SlowThreshold reports degraded when a successful response takes
	// longer. Zero disables the check.
	SlowThreshold time.Duration
}

// Run implements health.Probe.
func (p *HTTPProbe) Run(ctx context.Context) health.Outcome {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	method := p.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, p.Target, nil)
	if err != nil {
		return health.DownOutcome(fmt.Errorf("build request: %w", err), map[string]any{"target": p.Target})
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	detail := map[string]any{
		"target":    p.Target,
		"latencyMs": latency.Milliseconds(),
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return health.DownOutcome(health.ErrProbeTimeout, detail)
		}
		return health.DownOutcome(err, detail)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}()

	detail["statusCode"] = resp.StatusCode
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return health.DegradedOutcome("rate limited", detail)
	case resp.StatusCode < 200 || resp.StatusCode >= 400:
		return health.DownOutcome(fmt.Errorf("unexpected status %s", resp.Status), detail)
	case p.SlowThreshold > 0 && latency > p.SlowThreshold:
		return health.DegradedOutcome(fmt.Sprintf("slow response: %s", latency.Round(time.Millisecond)), detail)
	}
	return health.UpOutcome(detail)
}
