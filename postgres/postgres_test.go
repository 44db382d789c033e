package postgres

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/jonwraymond/healthops/health"
)

func TestNew_RequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), Config{}); !errors.Is(err, ErrNoDSN) {
		t.Errorf("New() error = %v, want ErrNoDSN", err)
	}
	if _, err := New(context.Background(), Config{DSN: "postgres://%zz"}); err == nil {
		t.Error("New(bad dsn) expected error")
	}
}

func TestSaturation(t *testing.T) {
	tests := []struct {
		acquired, max int32
		want          float64
	}{
		{0, 10, 0},
		{9, 10, 0.9},
		{4, 4, 1},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := saturation(tt.acquired, tt.max); got != tt.want {
			t.Errorf("saturation(%d, %d) = %v, want %v", tt.acquired, tt.max, got, tt.want)
		}
	}
}

func TestFailingProbes(t *testing.T) {
	r := health.AggregateResult{PerProbe: map[string]health.ProbeResult{
		"redis":     {Outcome: health.UpOutcome(nil)},
		"queue":     {Outcome: health.DegradedOutcome("backlog pressure", nil)},
		"pricefeed": {Outcome: health.DownOutcome(nil, nil)},
	}}
	if got, want := failingProbes(r), []string{"pricefeed", "queue"}; !reflect.DeepEqual(got, want) {
		t.Errorf("failingProbes() = %v, want %v", got, want)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []health.Status{health.StatusHealthy, health.StatusDegraded, health.StatusUnhealthy} {
		if got := parseStatus(s.String()); got != s {
			t.Errorf("parseStatus(%q) = %v", s.String(), got)
		}
	}
}

func TestPool_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := New(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	if res := p.Check(ctx); res.Status != health.StatusHealthy {
		t.Fatalf("Check() = %v %q (%v)", res.Status, res.Message, res.Error)
	}
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	to := health.AggregateResult{
		Overall:    health.StatusDegraded,
		ComputedAt: time.Now(),
		PerProbe: map[string]health.ProbeResult{
			"queue": {Outcome: health.DegradedOutcome("backlog pressure", nil)},
		},
	}
	if err := p.RecordTransition(ctx, health.StatusHealthy, to); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}
	got, err := p.RecentTransitions(ctx, 1)
	if err != nil {
		t.Fatalf("RecentTransitions() error = %v", err)
	}
	if len(got) != 1 || got[0].To != health.StatusDegraded || !reflect.DeepEqual(got[0].Failing, []string{"queue"}) {
		t.Errorf("RecentTransitions() = %+v", got)
	}
}

func TestPool_CheckUnreachable(t *testing.T) {
	p, err := New(context.Background(), Config{DSN: "postgres://u:p@127.0.0.1:1/db?connect_timeout=1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if res := p.Check(ctx); res.Status != health.StatusUnhealthy {
		t.Errorf("Check() = %v, want unhealthy", res.Status)
	}
}
