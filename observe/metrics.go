package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records probe and aggregate run metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordProbe records one probe run with its status and duration.
	RecordProbe(ctx context.Context, meta ProbeMeta, status string, duration time.Duration)

	// RecordRun records one aggregate run with its overall status.
	RecordRun(ctx context.Context, overall string, probes int, duration time.Duration)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	probeRuns     metric.Int64Counter
	probeFailures metric.Int64Counter
	probeDuration metric.Float64Histogram
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	probeRuns, err := meter.Int64Counter(
		"health.probe.runs",
		metric.WithDescription("Total number of probe runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	probeFailures, err := meter.Int64Counter(
		"health.probe.failures",
		metric.WithDescription("Probe runs that reported down"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	probeDuration, err := meter.Float64Histogram(
		"health.probe.duration_ms",
		metric.WithDescription("Probe run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter(
		"health.aggregate.runs",
		metric.WithDescription("Total number of aggregate runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"health.aggregate.duration_ms",
		metric.WithDescription("Aggregate run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		probeRuns:     probeRuns,
		probeFailures: probeFailures,
		probeDuration: probeDuration,
		runs:          runs,
		runDuration:   runDuration,
	}, nil
}

func (m *metricsImpl) RecordProbe(ctx context.Context, meta ProbeMeta, status string, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("probe.name", meta.Name),
		attribute.Bool("probe.critical", meta.Critical),
		attribute.String("probe.status", status),
	)

	m.probeRuns.Add(ctx, 1, opt)
	if status == "down" {
		m.probeFailures.Add(ctx, 1, opt)
	}
	m.probeDuration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordRun(ctx context.Context, overall string, probes int, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("health.status", overall),
		attribute.Int("health.probes", probes),
	)

	m.runs.Add(ctx, 1, opt)
	m.runDuration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordProbe(context.Context, ProbeMeta, string, time.Duration) {}

func (noopMetrics) RecordRun(context.Context, string, int, time.Duration) {}
