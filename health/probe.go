package health

import (
	"context"
	"fmt"
	"time"
)

// ProbeStatus is the classification a probe assigns to one dependency.
type ProbeStatus int

const (
	// ProbeUp indicates the dependency responded normally.
	ProbeUp ProbeStatus = iota
	// ProbeDegraded indicates the dependency responded but is impaired.
	ProbeDegraded
	// ProbeDown indicates the dependency is unusable.
	ProbeDown
)

// String returns the string representation of the probe status.
func (s ProbeStatus) String() string {
	switch s {
	case ProbeUp:
		return "up"
	case ProbeDegraded:
		return "degraded"
	case ProbeDown:
		return "down"
	default:
		return fmt.Sprintf("ProbeStatus(%d)", int(s))
	}
}

// MarshalText renders the probe status as its string form.
func (s ProbeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the result of one probe execution.
//
// Outcomes are values. Once the aggregator has produced one it is never
// modified.
type Outcome struct {
	// Status is the classification of the dependency.
	Status ProbeStatus

	// Latency is the wall time from dispatch to settlement.
	Latency time.Duration

	// Detail is probe-specific structured information.
	Detail map[string]any

	// Error describes the failure. Empty for up outcomes.
	Error string

	// CheckedAt is when the probe was dispatched.
	CheckedAt time.Time
}

// UpOutcome creates an up outcome.
func UpOutcome(detail map[string]any) Outcome {
	return Outcome{Status: ProbeUp, Detail: detail}
}

// DegradedOutcome creates a degraded outcome with a reason recorded in Detail.
func DegradedOutcome(reason string, detail map[string]any) Outcome {
	d := make(map[string]any, len(detail)+1)
	for k, v := range detail {
		d[k] = v
	}
	if reason != "" {
		d["reason"] = reason
	}
	return Outcome{Status: ProbeDegraded, Detail: d}
}

// DownOutcome creates a down outcome. A nil err yields ErrProbeDown.
func DownOutcome(err error, detail map[string]any) Outcome {
	if err == nil {
		err = ErrProbeDown
	}
	return Outcome{Status: ProbeDown, Error: err.Error(), Detail: detail}
}

// Probe checks one dependency.
//
// Run must honor ctx cancellation. A probe never reports failure through a
// panic; if it does, the aggregator records a down outcome.
type Probe interface {
	Run(ctx context.Context) Outcome
}

// ProbeFunc adapts an ordinary function to the Probe interface.
type ProbeFunc func(ctx context.Context) Outcome

// Run calls f(ctx).
func (f ProbeFunc) Run(ctx context.Context) Outcome {
	return f(ctx)
}

// FromChecker adapts a collaborator health report into a probe.
func FromChecker(c Checker) Probe {
	return ProbeFunc(func(ctx context.Context) Outcome {
		return c.Check(ctx).Outcome()
	})
}

// Descriptor registers a probe under a unique name.
type Descriptor struct {
	// Name is unique within a registry.
	Name string

	// Critical marks dependencies whose failure makes the system unhealthy.
	Critical bool

	// Timeout bounds a single run. Zero means the registry default.
	Timeout time.Duration

	// Probe performs the check.
	Probe Probe

	// Kind labels the probe implementation for telemetry. Optional.
	Kind string
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidProbe)
	}
	if d.Probe == nil {
		return fmt.Errorf("%w: %q has no probe", ErrInvalidProbe, d.Name)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("%w: %q has negative timeout", ErrInvalidProbe, d.Name)
	}
	return nil
}
