package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/healthops/health"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a limited number of trial calls.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in health reports.
	// Default: "circuit-breaker"
	Name string

	// MaxFailures is the number of consecutive failures that opens the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before a trial call.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the number of trial calls admitted while half-open.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called with the breaker lock held; it must not call
	// back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure decides whether an error counts against the dependency.
	// Default: any non-nil error except context cancellation.
	IsFailure func(err error) bool
}

// CircuitBreaker stops calls to a dependency after repeated failures and
// reports its state as a health check.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	opens         int
	lastFailure   time.Time
	openedAt      time.Time
	halfOpenCount int
}

var _ health.Checker = (*CircuitBreaker)(nil)

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "circuit-breaker"
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil && !isContextErr(err) }
	}
	return &CircuitBreaker{config: config, now: time.Now, state: StateClosed}
}

// Execute runs op unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := op(ctx)
	cb.record(err)
	return err
}

// State returns the current state, moving open to half-open once the
// reset timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.halfOpenCount = 0
	cb.transitionLocked(StateClosed)
}

// Name implements health.Checker.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Check implements health.Checker: closed is healthy, half-open is
// degraded and open is unhealthy.
func (cb *CircuitBreaker) Check(ctx context.Context) health.Result {
	m := cb.Metrics()
	details := map[string]any{
		"state":       m.State.String(),
		"failures":    m.Failures,
		"maxFailures": cb.config.MaxFailures,
		"opens":       m.Opens,
	}
	if !m.LastFailure.IsZero() {
		details["lastFailure"] = m.LastFailure.UTC().Format(time.RFC3339)
	}

	switch m.State {
	case StateOpen:
		retryIn := cb.config.ResetTimeout - cb.now().Sub(m.OpenedAt)
		details["retryInMs"] = retryIn.Milliseconds()
		return health.Unhealthy("circuit open", fmt.Errorf("%w: %s", ErrCircuitOpen, cb.config.Name)).WithDetails(details)
	case StateHalfOpen:
		return health.Degraded("circuit half-open, probing recovery").WithDetails(details)
	default:
		return health.Healthy("circuit closed").WithDetails(details)
	}
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.halfOpenCount++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := cb.config.IsFailure(err)
	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.failures >= cb.config.MaxFailures {
			cb.openLocked()
		}
	case StateHalfOpen:
		if failed {
			cb.lastFailure = cb.now()
			cb.openLocked()
			return
		}
		cb.failures = 0
		cb.transitionLocked(StateClosed)
	}
}

func (cb *CircuitBreaker) openLocked() {
	cb.openedAt = cb.now()
	cb.opens++
	cb.transitionLocked(StateOpen)
}

func (cb *CircuitBreaker) stateLocked() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.halfOpenCount = 0
		cb.transitionLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	cb.state = to
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// Metrics returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:       cb.stateLocked(),
		Failures:    cb.failures,
		Opens:       cb.opens,
		LastFailure: cb.lastFailure,
		OpenedAt:    cb.openedAt,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	Opens       int
	LastFailure time.Time
	OpenedAt    time.Time
}
