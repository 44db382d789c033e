package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/healthops/health"
)

// ProbeHook instruments the aggregator with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use; the aggregator calls it from
//     one goroutine per probe.
//   - Context: ProbeStarted returns a context carrying the probe span.
type ProbeHook struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

var _ health.Hook = (*ProbeHook)(nil)

// NewProbeHook creates a hook from observability components.
func NewProbeHook(tracer Tracer, metrics Metrics, logger Logger) *ProbeHook {
	return &ProbeHook{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.WithComponent("aggregator"),
	}
}

// ProbeHookFromObserver creates a ProbeHook from an Observer.
func ProbeHookFromObserver(obs Observer) (*ProbeHook, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewProbeHook(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

func metaOf(d health.Descriptor) ProbeMeta {
	return ProbeMeta{Name: d.Name, Critical: d.Critical, Kind: d.Kind}
}

// ProbeStarted opens the probe span.
func (h *ProbeHook) ProbeStarted(ctx context.Context, d health.Descriptor) context.Context {
	ctx, _ = h.tracer.StartSpan(ctx, metaOf(d))
	return ctx
}

// ProbeFinished closes the span, records metrics and logs non-up outcomes.
func (h *ProbeHook) ProbeFinished(ctx context.Context, d health.Descriptor, o health.Outcome) {
	meta := metaOf(d)
	status := o.Status.String()

	var err error
	if o.Error != "" {
		err = errors.New(o.Error)
	}
	h.tracer.EndSpan(trace.SpanFromContext(ctx), status, err)
	h.metrics.RecordProbe(ctx, meta, status, o.Latency)

	log := h.logger.WithProbe(meta)
	fields := []Field{
		{Key: "status", Value: status},
		{Key: "latency_ms", Value: o.Latency.Milliseconds()},
	}
	switch o.Status {
	case health.ProbeDown:
		fields = append(fields, Field{Key: "error", Value: o.Error})
		log.Warn(ctx, "probe down", fields...)
	case health.ProbeDegraded:
		if reason, ok := o.Detail["reason"]; ok {
			fields = append(fields, Field{Key: "reason", Value: reason})
		}
		log.Info(ctx, "probe degraded", fields...)
	default:
		log.Debug(ctx, "probe up", fields...)
	}
}

// RunFinished records the aggregate run.
func (h *ProbeHook) RunFinished(ctx context.Context, r health.AggregateResult) {
	overall := r.Overall.String()
	h.metrics.RecordRun(ctx, overall, len(r.PerProbe), r.Duration)
	h.logger.Debug(ctx, "health run completed",
		Field{Key: "status", Value: overall},
		Field{Key: "probes", Value: len(r.PerProbe)},
		Field{Key: "down", Value: r.Count(health.ProbeDown)},
		Field{Key: "duration_ms", Value: r.Duration.Milliseconds()},
	)
}
