package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestMetrics_ProbeCounters verifies runs and failures are counted separately.
func TestMetrics_ProbeCounters(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordProbe(ctx, ProbeMeta{Name: "queue", Critical: true}, "up", 5*time.Millisecond)
	m.RecordProbe(ctx, ProbeMeta{Name: "queue", Critical: true}, "down", 5*time.Millisecond)
	m.RecordProbe(ctx, ProbeMeta{Name: "price"}, "degraded", 5*time.Millisecond)

	rm := collect(t, reader)
	if got := sumOf(t, findMetric(rm, "health.probe.runs")); got != 3 {
		t.Errorf("health.probe.runs = %d, want 3", got)
	}
	if got := sumOf(t, findMetric(rm, "health.probe.failures")); got != 1 {
		t.Errorf("health.probe.failures = %d, want 1", got)
	}
	if findMetric(rm, "health.probe.duration_ms") == nil {
		t.Error("health.probe.duration_ms not recorded")
	}
}

// TestMetrics_RunHistogram verifies aggregate runs are recorded.
func TestMetrics_RunHistogram(t *testing.T) {
	m, reader := newManualMetrics(t)

	m.RecordRun(context.Background(), "degraded", 4, 120*time.Millisecond)

	rm := collect(t, reader)
	if got := sumOf(t, findMetric(rm, "health.aggregate.runs")); got != 1 {
		t.Errorf("health.aggregate.runs = %d, want 1", got)
	}
	hist := findMetric(rm, "health.aggregate.duration_ms")
	if hist == nil {
		t.Fatal("health.aggregate.duration_ms not recorded")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) != 1 || h.DataPoints[0].Sum != 120 {
		t.Errorf("duration histogram = %+v, want one 120ms point", hist.Data)
	}
}

// TestNoopMetrics verifies the no-op implementation accepts calls.
func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	m.RecordProbe(context.Background(), ProbeMeta{Name: "noop"}, "up", time.Millisecond)
	m.RecordRun(context.Background(), "healthy", 0, time.Millisecond)
}
