// Package exporters builds OpenTelemetry span exporters and metric readers
// by name, so configuration can select a backend with a single string.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrUnknownExporter is returned for an exporter name with no backend.
	ErrUnknownExporter = errors.New("exporters: unknown exporter")

	// ErrNoEndpoint is returned when a network exporter has no endpoint
	// in its environment.
	ErrNoEndpoint = errors.New("exporters: endpoint not configured")
)

type options struct {
	writer     io.Writer
	registerer promclient.Registerer
}

// Option customizes exporter construction.
type Option func(*options)

// WithWriter sets the destination of stdout exporters. Default: os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithRegisterer sets the Prometheus registry the prometheus exporter
// registers its collector with. Default: the global registry.
func WithRegisterer(r promclient.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

func apply(opts []Option) options {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// endpoint reports ErrNoEndpoint unless one of keys is set.
func endpoint(keys ...string) error {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: set %v", ErrNoEndpoint, keys)
}

// NewTracingExporter returns the span exporter for name: stdout, otlp,
// jaeger (over OTLP) or none. The otlp exporters read their endpoint from
// the standard OTEL_EXPORTER_* variables.
func NewTracingExporter(ctx context.Context, name string, opts ...Option) (sdktrace.SpanExporter, error) {
	o := apply(opts)

	switch name {
	case "", "none":
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(o.writer))
	case "otlp":
		if err := endpoint("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	case "jaeger":
		if err := endpoint("OTEL_EXPORTER_JAEGER_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	}
	return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, name)
}

// NewMetricsReader returns the metric reader for name: stdout, otlp,
// prometheus or none. The prometheus reader is pull-based; the others
// export periodically.
func NewMetricsReader(ctx context.Context, name string, opts ...Option) (sdkmetric.Reader, error) {
	o := apply(opts)

	var (
		exp sdkmetric.Exporter
		err error
	)
	switch name {
	case "", "none":
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
	case "stdout":
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
	case "otlp":
		if err := endpoint("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err = otlpmetricgrpc.New(ctx)
	case "prometheus":
		var promOpts []prometheus.Option
		if o.registerer != nil {
			promOpts = append(promOpts, prometheus.WithRegisterer(o.registerer))
		}
		reader, err := prometheus.New(promOpts...)
		if err != nil {
			return nil, fmt.Errorf("exporters: prometheus: %w", err)
		}
		return reader, nil
	default:
		return nil, fmt.Errorf("%w: metrics exporter %q", ErrUnknownExporter, name)
	}
	if err != nil {
		return nil, fmt.Errorf("exporters: %s metrics: %w", name, err)
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
