package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

// TestLogger_IncludesProbeFields verifies probe-scoped loggers attach probe metadata.
func TestLogger_IncludesProbeFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithProbe(ProbeMeta{Name: "queue", Critical: true, Kind: "checker"})

	logger.Info(context.Background(), "probe down", Field{Key: "latency_ms", Value: 12})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["probe.name"] != "queue" || e["probe.critical"] != true || e["probe.kind"] != "checker" {
		t.Errorf("entry missing probe fields: %v", e)
	}
	if e["msg"] != "probe down" || e["level"] != "info" {
		t.Errorf("msg/level = %v/%v", e["msg"], e["level"])
	}
	if _, ok := e["timestamp"].(string); !ok {
		t.Errorf("timestamp = %v, want string", e["timestamp"])
	}
}

// TestLogger_LevelFiltering verifies entries below the level are dropped.
func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"debug", []string{"debug", "info", "warn", "error"}},
		{"info", []string{"info", "warn", "error"}},
		{"warn", []string{"warn", "error"}},
		{"error", []string{"error"}},
		{"bogus", []string{"info", "warn", "error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()

			logger.Debug(ctx, "debug")
			logger.Info(ctx, "info")
			logger.Warn(ctx, "warn")
			logger.Error(ctx, "error")

			entries := decodeLines(t, &buf)
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e["msg"] != tt.want[i] {
					t.Errorf("entry %d msg = %v, want %v", i, e["msg"], tt.want[i])
				}
			}
		})
	}
}

// TestLogger_SensitiveFieldsRedacted verifies credentials never reach the sink.
func TestLogger_SensitiveFieldsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "config loaded",
		Field{Key: "password", Value: "hunter2"},
		Field{Key: "apiKey", Value: "cg-123"},
		Field{Key: "addr", Value: "redis:6379"},
	)

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "cg-123") {
		t.Errorf("secret leaked into log: %s", out)
	}
	e := decodeLines(t, &buf)[0]
	if e["password"] != "[REDACTED]" || e["addr"] != "redis:6379" {
		t.Errorf("entry = %v", e)
	}
}

// TestLogger_WithComponentAndFields verifies scoped fields persist.
func TestLogger_WithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).
		With(Field{Key: "service", Value: "healthd"}).
		WithComponent("scheduler")

	logger.Warn(context.Background(), "status changed")

	e := decodeLines(t, &buf)[0]
	if e["service"] != "healthd" || e["component"] != "scheduler" {
		t.Errorf("entry = %v, want service and component", e)
	}
}

// TestLogger_TraceCorrelation verifies span ids are attached from the context.
func TestLogger_TraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.Info(ctx, "inside span")

	e := decodeLines(t, &buf)[0]
	if e["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, want %v", e["trace_id"], span.SpanContext().TraceID())
	}
	if _, ok := e["span_id"]; !ok {
		t.Error("span_id missing")
	}
}

// TestNopLogger verifies the no-op logger is safe to use.
func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Error(context.Background(), "ignored", Field{Key: "k", Value: 1})
	if l.WithComponent("x").WithProbe(ProbeMeta{Name: "p"}) == nil {
		t.Fatal("scoped nop logger is nil")
	}
	if err := l.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}

// TestParseLogLevel verifies level parsing and its fallback.
func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
