package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/healthops/health"
)

var errUpstream = errors.New("upstream error")

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *manualClock) {
	clock := newManualClock()
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.Now
	return cb, clock
}

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
	if cb.Name() != "circuit-breaker" {
		t.Errorf("Name() = %q, want circuit-breaker", cb.Name())
	}
	if cb.config.MaxFailures != 5 || cb.config.ResetTimeout != 30*time.Second || cb.config.HalfOpenMaxRequests != 1 {
		t.Errorf("defaults = %+v", cb.config)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, fail); err != errUpstream {
			t.Fatalf("Execute() error = %v, want %v", err, errUpstream)
		}
	}
	// A success resets the streak.
	_ = cb.Execute(ctx, succeed)
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, fail)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed after a broken streak", cb.State())
	}

	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	err := cb.Execute(ctx, func(context.Context) error {
		t.Error("op called while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	tests := []struct {
		name  string
		trial func(context.Context) error
		want  State
	}{
		{"trial succeeds", succeed, StateClosed},
		{"trial fails", fail, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Second})
			ctx := context.Background()

			_ = cb.Execute(ctx, fail)
			clock.Advance(10 * time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("State() = %v, want half-open", cb.State())
			}

			_ = cb.Execute(ctx, tt.trial)
			if cb.State() != tt.want {
				t.Errorf("State() = %v, want %v", cb.State(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenAdmitsLimitedTrials(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMaxRequests: 1})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second trial error = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first trial error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ContextErrorsDoNotCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Second)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	cb.Reset()

	want := []string{"closed->open", "open->half-open", "half-open->closed", "closed->open", "open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_Check(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{Name: "pricefeed", MaxFailures: 2, ResetTimeout: 30 * time.Second})
	ctx := context.Background()

	r := cb.Check(ctx)
	if r.Status != health.StatusHealthy || r.Details["state"] != "closed" {
		t.Errorf("closed Check() = %+v", r)
	}

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	clock.Advance(10 * time.Second)

	r = cb.Check(ctx)
	if r.Status != health.StatusUnhealthy {
		t.Fatalf("open Check() status = %v, want unhealthy", r.Status)
	}
	if !errors.Is(r.Error, ErrCircuitOpen) {
		t.Errorf("open Check() error = %v, want ErrCircuitOpen", r.Error)
	}
	if r.Details["retryInMs"] != int64(20000) {
		t.Errorf("retryInMs = %v, want 20000", r.Details["retryInMs"])
	}
	if r.Details["opens"] != 1 {
		t.Errorf("opens = %v, want 1", r.Details["opens"])
	}

	clock.Advance(20 * time.Second)
	r = cb.Check(ctx)
	if r.Status != health.StatusDegraded || r.Details["state"] != "half-open" {
		t.Errorf("half-open Check() = %+v", r)
	}

	o := health.FromChecker(cb).Run(ctx)
	if o.Status != health.ProbeDegraded {
		t.Errorf("probe outcome = %v, want degraded", o.Status)
	}
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(context.Background(), fail)
			} else {
				_ = cb.Execute(context.Background(), succeed)
			}
			_ = cb.Check(context.Background())
		}(i)
	}
	wg.Wait()
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
