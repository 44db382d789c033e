package probes

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/resilience"
)

type flakyProbe struct {
	failures int32
	calls    atomic.Int32
}

func (p *flakyProbe) Run(context.Context) health.Outcome {
	if p.calls.Add(1) <= p.failures {
		return health.DownOutcome(errors.New("connection refused"), nil)
	}
	return health.UpOutcome(map[string]any{"ok": true})
}

func quickRetry(attempts int) *resilience.Retry {
	return resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	})
}

func TestRetryProbe_RecoversWithinAttempts(t *testing.T) {
	inner := &flakyProbe{failures: 2}
	out := NewRetryProbe(inner, quickRetry(3)).Run(context.Background())

	if out.Status != health.ProbeUp {
		t.Fatalf("Run() = %v (%s), want up", out.Status, out.Error)
	}
	if out.Detail["attempts"] != 3 || out.Detail["ok"] != true {
		t.Errorf("Detail = %v", out.Detail)
	}
}

func TestRetryProbe_ExhaustsAttempts(t *testing.T) {
	inner := &flakyProbe{failures: 10}
	out := NewRetryProbe(inner, quickRetry(2)).Run(context.Background())

	if out.Status != health.ProbeDown || out.Error != "connection refused" {
		t.Errorf("Run() = %v %q", out.Status, out.Error)
	}
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestRetryProbe_DegradedIsNotRetried(t *testing.T) {
	var calls int
	inner := health.ProbeFunc(func(context.Context) health.Outcome {
		calls++
		return health.DegradedOutcome("slow", nil)
	})
	out := NewRetryProbe(inner, quickRetry(3)).Run(context.Background())
	if out.Status != health.ProbeDegraded || calls != 1 {
		t.Errorf("Run() = %v after %d calls", out.Status, calls)
	}
	if _, ok := out.Detail["attempts"]; ok {
		t.Error("single attempt should not record attempts")
	}
}

func TestRetryProbe_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewRetryProbe(&flakyProbe{}, quickRetry(3)).Run(ctx)
	if out.Status != health.ProbeDown {
		t.Errorf("Run() = %v, want down", out.Status)
	}
}
