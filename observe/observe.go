package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/healthops/observe/exporters"
)

// Config selects the telemetry backends for one service.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig configures spans around probe runs and HTTP requests.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|jaeger|stdout|none
	SamplePct float64 // ratio of root spans kept, 0 to 1
}

// MetricsConfig configures probe and aggregate metrics.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none

	// Registerer receives the Prometheus collector when Exporter is
	// "prometheus". Default: prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Enabled bool
	Level   string // debug|info|warn|error

	// File, when set, receives a rotated copy of every log line.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Validate reports the first invalid setting. Disabled sections are
// not checked.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}
	if c.Tracing.Enabled {
		if err := c.Tracing.validate(); err != nil {
			return err
		}
	}
	if c.Metrics.Enabled {
		switch c.Metrics.Exporter {
		case "", "none", "otlp", "prometheus", "stdout":
		default:
			return fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter)
		}
	}
	if c.Logging.Enabled {
		return c.Logging.validate()
	}
	return nil
}

func (t TracingConfig) validate() error {
	switch t.Exporter {
	case "", "none", "otlp", "jaeger", "stdout":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTracingExporter, t.Exporter)
	}
	if t.SamplePct < 0 || t.SamplePct > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSamplePct, t.SamplePct)
	}
	return nil
}

func (l LoggingConfig) validate() error {
	switch l.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return ErrInvalidLogRotation
	}
	return nil
}

// Observer provides access to telemetry primitives.
//
// Implementations are safe for concurrent use. Shutdown flushes the
// providers once; later calls return the first result.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Shutdown flushes exporters within ctx's deadline.
	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver builds the providers named by cfg and installs them as the
// otel globals so that otelhttp handlers and transports report through
// them. Disabled sections get no-op implementations.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
		meter:  noop.NewMeterProvider().Meter(cfg.ServiceName),
		logger: newConfiguredLogger(cfg.Logging).With(Field{Key: "service", Value: cfg.ServiceName}),
	}

	if cfg.Tracing.Enabled {
		exp, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter)
		if err != nil {
			return nil, fmt.Errorf("observe: tracing: %w", err)
		}
		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.Tracing.SamplePct))),
		}
		if exp != nil {
			opts = append(opts, sdktrace.WithBatcher(exp))
		}
		o.tp = sdktrace.NewTracerProvider(opts...)
		o.tracer = o.tp.Tracer(cfg.ServiceName)
		otel.SetTracerProvider(o.tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	if cfg.Metrics.Enabled {
		var readerOpts []exporters.Option
		if cfg.Metrics.Registerer != nil {
			readerOpts = append(readerOpts, exporters.WithRegisterer(cfg.Metrics.Registerer))
		}
		reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter, readerOpts...)
		if err != nil {
			_ = o.Shutdown(ctx)
			return nil, fmt.Errorf("observe: metrics: %w", err)
		}
		opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		if reader != nil {
			opts = append(opts, sdkmetric.WithReader(reader))
		}
		o.mp = sdkmetric.NewMeterProvider(opts...)
		o.meter = o.mp.Meter(cfg.ServiceName)
		otel.SetMeterProvider(o.mp)
	}

	return o, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newConfiguredLogger(cfg LoggingConfig) Logger {
	switch {
	case !cfg.Enabled:
		return NopLogger()
	case cfg.File != "":
		return NewFileLogger(cfg)
	default:
		return NewLogger(cfg.Level)
	}
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		var errs []error
		if o.tp != nil {
			if err := o.tp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider: %w", err))
			}
		}
		if o.mp != nil {
			if err := o.mp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter provider: %w", err))
			}
		}
		if err := o.logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("logger: %w", err))
		}
		o.shutdownErr = errors.Join(errs...)
	})
	return o.shutdownErr
}
