package exporters

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracingExporter(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{name: "stdout"},
		{name: "none"},
		{name: ""},
		{name: "otlp", env: map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "http://localhost:4317"}},
		{name: "otlp", env: map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT": ""}, wantErr: ErrNoEndpoint},
		{name: "jaeger", env: map[string]string{"OTEL_EXPORTER_JAEGER_ENDPOINT": ""}, wantErr: ErrNoEndpoint},
		{name: "zipkin", wantErr: ErrUnknownExporter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			exp, err := NewTracingExporter(context.Background(), tt.name)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTracingExporter(%q) error = %v", tt.name, err)
			}
			if exp == nil {
				t.Fatal("expected non-nil exporter")
			}
			_ = exp.Shutdown(context.Background())
		})
	}
}

func TestNewMetricsReader(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{name: "stdout"},
		{name: "none"},
		{name: "prometheus"},
		{name: "otlp", env: map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT": ""}, wantErr: ErrNoEndpoint},
		{name: "statsd", wantErr: ErrUnknownExporter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := []Option{WithRegisterer(promclient.NewRegistry())}
			reader, err := NewMetricsReader(context.Background(), tt.name, opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewMetricsReader(%q) error = %v", tt.name, err)
			}
			if reader == nil {
				t.Fatal("expected non-nil reader")
			}
		})
	}
}

// TestWithWriter verifies stdout spans go to the configured writer.
func TestWithWriter(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewTracingExporter(context.Background(), "stdout", WithWriter(&buf))
	if err != nil {
		t.Fatalf("NewTracingExporter() error = %v", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "health.probe.queue")
	span.End()
	_ = tp.Shutdown(context.Background())

	if !strings.Contains(buf.String(), "health.probe.queue") {
		t.Errorf("stdout output missing span name: %q", buf.String())
	}
}

// TestWithRegisterer verifies the prometheus collector lands in the given registry.
func TestWithRegisterer(t *testing.T) {
	reg := promclient.NewRegistry()
	reader, err := NewMetricsReader(context.Background(), "prometheus", WithRegisterer(reg))
	if err != nil {
		t.Fatalf("NewMetricsReader() error = %v", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	counter, err := mp.Meter("test").Int64Counter("health.checks")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "health_checks_total" {
			return
		}
	}
	t.Error("health_checks_total not found in custom registry")
}
