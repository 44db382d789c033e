package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/healthops/health"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS health_transitions (
  id          BIGSERIAL PRIMARY KEY,
  from_status TEXT NOT NULL,
  to_status   TEXT NOT NULL,
  failing     TEXT[] NOT NULL DEFAULT '{}',
  changed_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_health_transitions_changed_at ON health_transitions (changed_at DESC);
`

// Transition is one recorded change of overall status.
type Transition struct {
	ID        int64
	From      health.Status
	To        health.Status
	Failing   []string
	ChangedAt time.Time
}

// EnsureSchema creates the transition table if it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// RecordTransition stores a change of overall status. failing lists the
// probes that were not up in the new result.
func (p *Pool) RecordTransition(ctx context.Context, from health.Status, to health.AggregateResult) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO health_transitions (from_status, to_status, failing, changed_at)
		 VALUES ($1, $2, $3, $4)`,
		from.String(), to.Overall.String(), failingProbes(to), to.ComputedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert transition: %w", err)
	}
	return nil
}

// RecentTransitions returns up to limit transitions, newest first.
func (p *Pool) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, from_status, to_status, failing, changed_at
		   FROM health_transitions
		  ORDER BY changed_at DESC, id DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t        Transition
			from, to string
		)
		if err := rows.Scan(&t.ID, &from, &to, &t.Failing, &t.ChangedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transition: %w", err)
		}
		t.From = parseStatus(from)
		t.To = parseStatus(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

func failingProbes(r health.AggregateResult) []string {
	failing := make([]string, 0)
	for _, name := range r.Names() {
		if r.PerProbe[name].Status != health.ProbeUp {
			failing = append(failing, name)
		}
	}
	return failing
}

func parseStatus(s string) health.Status {
	switch s {
	case "healthy":
		return health.StatusHealthy
	case "degraded":
		return health.StatusDegraded
	default:
		return health.StatusUnhealthy
	}
}
