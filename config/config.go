// Package config loads healthd configuration from the environment and the
// probe manifest from YAML.
//
// Environment variables use the HEALTHD_ prefix and may be seeded from a
// .env file. Credential fields accept secret references such as
// secretref:env:NAME or secretref:file:/run/secrets/name.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/observe"
	"github.com/jonwraymond/healthops/secret"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "HEALTHD"

// Config is the service configuration.
type Config struct {
	Server    ServerConfig
	Health    HealthConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Postgres  PostgresConfig
	PriceFeed PriceFeedConfig `envconfig:"PRICEFEED"`
	Manifest  ManifestConfig

	// SecretsDir is the base directory for relative secretref:file paths.
	SecretsDir string `split_words:"true" default:"/run/secrets"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `default:":8080" validate:"required"`
	ReadTimeout     time.Duration `split_words:"true" default:"5s" validate:"gt=0"`
	WriteTimeout    time.Duration `split_words:"true" default:"30s" validate:"gt=0"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s" validate:"gt=0"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`

	// RequestsPerMinute is the per-client-IP limit across all routes.
	// Zero disables it.
	RequestsPerMinute int `split_words:"true" default:"600" validate:"gte=0"`

	// DetailedRate and DetailedBurst bound fresh runs of /health/detailed.
	DetailedRate  float64 `split_words:"true" default:"2" validate:"gt=0"`
	DetailedBurst int     `split_words:"true" default:"5" validate:"gt=0"`
}

// HealthConfig configures aggregation, caching and endpoint deadlines.
type HealthConfig struct {
	Policy         string        `default:"strict" validate:"oneof=strict ratio"`
	RatioThreshold float64       `split_words:"true" default:"0.8" validate:"gt=0,lte=1"`
	Interval       time.Duration `default:"15s" validate:"gte=0"`
	FreshFor       time.Duration `split_words:"true" default:"30s" validate:"gt=0"`
	ProbeTimeout   time.Duration `split_words:"true" default:"2s" validate:"gt=0"`
	MaxConcurrency int           `split_words:"true" default:"16" validate:"gte=0"`

	// Endpoint bounds may not undercut the default probe timeout. Manifest
	// entries with longer timeouts raise the bound at request time.
	BasicTimeout     time.Duration `split_words:"true" default:"3s" validate:"gt=0,gtefield=ProbeTimeout"`
	ReadinessTimeout time.Duration `split_words:"true" default:"3s" validate:"gt=0,gtefield=ProbeTimeout"`
	DetailedTimeout  time.Duration `split_words:"true" default:"10s" validate:"gt=0,gtefield=ProbeTimeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `default:"info" validate:"oneof=debug info warn error"`
	File       string
	MaxSizeMB  int `split_words:"true" default:"100" validate:"gte=0"`
	MaxBackups int `split_words:"true" default:"5" validate:"gte=0"`
	MaxAgeDays int `split_words:"true" default:"14" validate:"gte=0"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName     string  `split_words:"true" default:"healthd" validate:"required"`
	TracesExporter  string  `split_words:"true" default:"none" validate:"oneof=otlp jaeger stdout none"`
	MetricsExporter string  `split_words:"true" default:"prometheus" validate:"oneof=otlp prometheus stdout none"`
	SampleRatio     float64 `split_words:"true" default:"1" validate:"gte=0,lte=1"`
}

// RedisConfig configures the Redis cache. An empty Addr disables Redis and
// the service falls back to an in-memory cache.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int           `default:"0" validate:"gte=0"`
	Prefix        string        `default:"healthd:"`
	SlowThreshold time.Duration `split_words:"true" default:"100ms" validate:"gt=0"`
}

// QueueConfig configures the Redis job queue. It requires Redis.
//
// Status transitions are published to a separate capped list at
// TransitionsKey so they never count towards the job backlog.
type QueueConfig struct {
	Key        string `default:"healthd:jobs" validate:"required"`
	MaxBacklog int64  `split_words:"true" default:"1000" validate:"gt=0"`

	TransitionsKey    string `split_words:"true" default:"healthd:transitions" validate:"required,nefield=Key"`
	TransitionsMaxLen int64  `split_words:"true" default:"100" validate:"gt=0"`
}

// PostgresConfig configures the database. An empty DSN disables it.
type PostgresConfig struct {
	DSN        string
	MaxConns   int32   `split_words:"true" default:"0" validate:"gte=0"`
	Saturation float64 `default:"0.9" validate:"gt=0,lte=1"`
}

// PriceFeedConfig configures the upstream price API.
type PriceFeedConfig struct {
	// Enabled registers the pricefeed, pricefeed-breaker and
	// pricefeed-limiter checkers. A manifest that targets them fails with
	// probes.ErrUnknownChecker when this is false. configs/probes.yaml
	// does not target them; configs/probes.pricefeed.yaml and
	// configs/probes.production.yaml do.
	Enabled bool          `default:"true"`
	BaseURL string        `envconfig:"BASE_URL" default:"https://api.coingecko.com/api/v3" validate:"required,url"`
	APIKey  string        `envconfig:"API_KEY"`
	Timeout time.Duration `default:"5s" validate:"gt=0"`
}

// ManifestConfig locates the probe manifest.
type ManifestConfig struct {
	Path     string        `default:"configs/probes.yaml" validate:"required"`
	Watch    bool          `default:"true"`
	Debounce time.Duration `default:"500ms" validate:"gt=0"`
}

// LoadOptions customizes Load.
type LoadOptions struct {
	// EnvFile is loaded before the environment is read. Variables already
	// set in the environment win. A missing file is ignored.
	EnvFile string

	// Resolver resolves secret references. Default: a strict resolver
	// built from secret.DefaultRegistry with SecretsDir as base.
	Resolver *secret.Resolver
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, resolves and validates the configuration.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", opts.EnvFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	resolver := opts.Resolver
	if resolver == nil {
		r, err := secret.DefaultRegistry.NewResolverFrom(true, map[string]any{"baseDir": cfg.SecretsDir})
		if err != nil {
			return nil, fmt.Errorf("config: secret resolver: %w", err)
		}
		defer func() { _ = r.Close() }()
		resolver = r
	}
	if err := resolver.ResolveInPlace(ctx,
		&cfg.Redis.Password,
		&cfg.Postgres.DSN,
		&cfg.PriceFeed.APIKey,
	); err != nil {
		return nil, fmt.Errorf("config: resolve secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// HealthPolicy returns the configured reduction policy.
func (c *Config) HealthPolicy() health.Policy {
	if c.Health.Policy == "ratio" {
		return health.RatioPolicy{Threshold: c.Health.RatioThreshold}
	}
	return health.StrictPolicy{}
}

// Observe maps the configuration onto the telemetry stack.
func (c *Config) Observe(version string) observe.Config {
	return observe.Config{
		ServiceName: c.Telemetry.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Telemetry.TracesExporter != "none",
			Exporter:  c.Telemetry.TracesExporter,
			SamplePct: c.Telemetry.SampleRatio,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Telemetry.MetricsExporter != "none",
			Exporter: c.Telemetry.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled:    true,
			Level:      c.Log.Level,
			File:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
		},
	}
}
