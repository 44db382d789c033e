package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func benchRegistry(b *testing.B, n int) *Registry {
	reg := NewRegistry(time.Second)
	for i := 0; i < n; i++ {
		mustRegister(b, reg, Descriptor{
			Name:     fmt.Sprintf("probe%d", i),
			Critical: i%2 == 0,
			Probe:    upProbe(),
		})
	}
	return reg
}

// BenchmarkAggregator_RunAll measures a full fan-out over ten probes.
func BenchmarkAggregator_RunAll(b *testing.B) {
	agg := NewAggregator(benchRegistry(b, 10))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = agg.RunAll(ctx)
	}
}

// BenchmarkReduce measures the reduction policy alone.
func BenchmarkReduce(b *testing.B) {
	rs := make(map[string]ProbeResult, 50)
	for i := 0; i < 50; i++ {
		rs[fmt.Sprintf("p%d", i)] = ProbeResult{Outcome: Outcome{Status: ProbeStatus(i % 3)}, Critical: i%7 == 0}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Reduce(rs)
	}
}

// BenchmarkBasic_Cached measures the basic endpoint served from a fresh cache.
func BenchmarkBasic_Cached(b *testing.B) {
	agg := NewAggregator(benchRegistry(b, 10))
	agg.RunAll(context.Background())
	handler := NewHandler(agg, HandlerConfig{FreshFor: time.Hour}).Basic()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler(httptest.NewRecorder(), req)
	}
}

// BenchmarkRegistry_Snapshot measures lock-free snapshot reads.
func BenchmarkRegistry_Snapshot(b *testing.B) {
	reg := benchRegistry(b, 20)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = reg.snapshot()
		}
	})
}
