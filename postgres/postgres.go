// Package postgres wraps a pgx connection pool as a health-checked
// collaborator and records overall-status transitions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonwraymond/healthops/health"
)

// DefaultSaturation is the acquired/max connection ratio at which the pool
// reports degraded.
const DefaultSaturation = 0.9

// ErrNoDSN is returned by New when Config.DSN is empty.
var ErrNoDSN = errors.New("postgres: DSN is required")

// Config configures a Pool.
type Config struct {
	// Name identifies the database in health reports. Default: "postgres".
	Name string

	// DSN is a postgres:// URL or keyword/value connection string.
	DSN string

	// MaxConns overrides the pool size when > 0.
	MaxConns int32

	// Saturation marks the pool degraded at or above this ratio.
	// Default: DefaultSaturation
	Saturation float64
}

// Pool is a pgx pool that implements health.Checker.
type Pool struct {
	pool   *pgxpool.Pool
	config Config
}

var _ health.Checker = (*Pool)(nil)

// New creates a pool. Connections are opened lazily; reachability is
// reported by Check.
func New(ctx context.Context, config Config) (*Pool, error) {
	if config.DSN == "" {
		return nil, ErrNoDSN
	}
	if config.Name == "" {
		config.Name = "postgres"
	}
	if config.Saturation <= 0 || config.Saturation > 1 {
		config.Saturation = DefaultSaturation
	}

	cfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if config.MaxConns > 0 {
		cfg.MaxConns = config.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	return &Pool{pool: p, config: config}, nil
}

// Name implements health.Checker.
func (p *Pool) Name() string {
	return p.config.Name
}

// Check implements health.Checker: a failed ping is unhealthy, a pool at
// or above the saturation ratio is degraded.
func (p *Pool) Check(ctx context.Context) health.Result {
	start := time.Now()
	err := p.pool.Ping(ctx)
	latency := time.Since(start)

	st := p.pool.Stat()
	details := map[string]any{
		"latencyMs":     latency.Milliseconds(),
		"acquiredConns": st.AcquiredConns(),
		"idleConns":     st.IdleConns(),
		"totalConns":    st.TotalConns(),
		"maxConns":      st.MaxConns(),
	}
	if err != nil {
		return health.Unhealthy("postgres ping failed", fmt.Errorf("postgres: ping: %w", err)).WithDetails(details)
	}

	ratio := saturation(st.AcquiredConns(), st.MaxConns())
	details["saturation"] = ratio
	if ratio >= p.config.Saturation {
		return health.Degraded(fmt.Sprintf("connection pool %.0f%% in use", ratio*100)).WithDetails(details)
	}
	return health.Healthy("postgres reachable").WithDetails(details)
}

func saturation(acquired, max int32) float64 {
	if max <= 0 {
		return 0
	}
	return float64(acquired) / float64(max)
}

// Pgx returns the underlying pool.
func (p *Pool) Pgx() *pgxpool.Pool {
	return p.pool
}

// Close closes every connection.
func (p *Pool) Close() {
	p.pool.Close()
}
