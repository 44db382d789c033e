package observe

import "errors"

var (
	ErrMissingServiceName     = errors.New("observe: service name required")
	ErrInvalidSamplePct       = errors.New("observe: sample ratio outside [0, 1]")
	ErrInvalidTracingExporter = errors.New("observe: unknown trace exporter")
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: unknown log level")

	// ErrInvalidLogRotation is returned for negative rotation limits.
	ErrInvalidLogRotation = errors.New("observe: log rotation limits must not be negative")
)

// RedactedFields are log field keys whose values are replaced before
// encoding. Matching is case-insensitive.
var RedactedFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apiKey",
	"credential",
	"dsn",
	"authorization",
}
