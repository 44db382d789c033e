package health

import (
	"context"
	"time"
)

// Status is the overall health of the system, or the self-reported health
// of a collaborator.
type Status int

const (
	// StatusHealthy indicates every dependency is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the system is serving but with impaired dependencies.
	StatusDegraded
	// StatusUnhealthy indicates at least one critical dependency is down.
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its string form.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the self-reported health of a collaborator.
type Result struct {
	Status  Status
	Message string
	Details map[string]any

	// Duration and Timestamp describe the check itself. A zero Timestamp
	// is replaced by the settlement time.
	Duration  time.Duration
	Timestamp time.Time

	// Error is the cause of a degraded or unhealthy report.
	Error error
}

func newResult(status Status, message string, err error) Result {
	return Result{Status: status, Message: message, Error: err, Timestamp: time.Now()}
}

// Healthy reports a working collaborator.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded reports a collaborator that works with reduced capacity.
func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

// Unhealthy reports a failed collaborator. err may be nil.
func Unhealthy(message string, err error) Result { return newResult(StatusUnhealthy, message, err) }

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Outcome converts a collaborator report into a probe outcome:
// healthy maps to up, degraded to degraded, anything else to down.
func (r Result) Outcome() Outcome {
	detail := make(map[string]any, len(r.Details)+1)
	for k, v := range r.Details {
		detail[k] = v
	}
	if r.Message != "" {
		detail["message"] = r.Message
	}
	if len(detail) == 0 {
		detail = nil
	}

	out := Outcome{Detail: detail, CheckedAt: r.Timestamp}
	switch r.Status {
	case StatusHealthy:
		out.Status = ProbeUp
	case StatusDegraded:
		out.Status = ProbeDegraded
		if _, ok := detail["reason"]; !ok && r.Message != "" {
			detail["reason"] = r.Message
		}
		if r.Error != nil {
			out.Error = r.Error.Error()
		}
	default:
		out.Status = ProbeDown
		switch {
		case r.Error != nil:
			out.Error = r.Error.Error()
		case r.Message != "":
			out.Error = r.Message
		default:
			out.Error = ErrCheckFailed.Error()
		}
	}
	return out
}

// Checker is a collaborator that reports its own health, such as a cache,
// queue or upstream client. FromChecker turns one into a Probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc is a named function satisfying Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc wraps fn as a Checker called name.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string                      { return f.name }
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
