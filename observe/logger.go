package observe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: the span in ctx, if any, is attached to the entry.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger

	// WithComponent returns a logger scoped to a named component.
	WithComponent(name string) Logger

	// WithProbe returns a logger scoped to a probe.
	WithProbe(meta ProbeMeta) Logger

	// Sync flushes buffered entries.
	Sync() error
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// zapLogger adapts a zap.Logger to Logger.
type zapLogger struct {
	z *zap.Logger
}

// NewLogger creates a JSON logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger with a custom writer.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return newZapLogger(zapcore.AddSync(writerOnly{w}), ParseLogLevel(level))
}

// NewFileLogger creates a JSON logger that writes to stderr and to a
// size-rotated file.
func NewFileLogger(cfg LoggingConfig) Logger {
	_ = os.MkdirAll(filepath.Dir(cfg.File), 0o755)
	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 14),
		Compress:   true,
	}
	sink := zapcore.NewMultiWriteSyncer(
		zapcore.AddSync(writerOnly{os.Stderr}),
		zapcore.AddSync(rotating),
	)
	return newZapLogger(sink, ParseLogLevel(cfg.Level))
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func newZapLogger(sink zapcore.WriteSyncer, level LogLevel) Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "msg"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), sink, level.zapLevel())
	return &zapLogger{z: zap.New(core)}
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(toZap(fields)...)}
}

func (l *zapLogger) WithComponent(name string) Logger {
	return &zapLogger{z: l.z.With(zap.String("component", name))}
}

func (l *zapLogger) WithProbe(meta ProbeMeta) Logger {
	fields := []zap.Field{
		zap.String("probe.name", meta.Name),
		zap.Bool("probe.critical", meta.Critical),
	}
	if meta.Kind != "" {
		fields = append(fields, zap.String("probe.kind", meta.Kind))
	}
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.z.Info(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.z.Warn(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.z.Error(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.z.Debug(msg, withTrace(ctx, fields)...)
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

func withTrace(ctx context.Context, fields []Field) []zap.Field {
	out := toZap(fields)
	if ctx == nil {
		return out
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return out
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	for _, f := range fields {
		if isRedactedField(f.Key) {
			out = append(out, zap.String(f.Key, "[REDACTED]"))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func isRedactedField(key string) bool {
	for _, k := range RedactedFields {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// writerOnly hides Sync so terminal and pipe writers do not report EINVAL.
type writerOnly struct {
	io.Writer
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
