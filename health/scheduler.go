package health

import (
	"context"
	"time"
)

// SchedulerConfig configures periodic background runs.
type SchedulerConfig struct {
	// Interval between runs. Zero or negative disables the scheduler.
	Interval time.Duration

	// Timeout bounds each run. Default: Interval. It is raised to cover the
	// longest registered probe timeout.
	Timeout time.Duration

	// OnResult is called after every run with the previous result, which is
	// nil on the first run.
	OnResult func(prev *AggregateResult, next AggregateResult)
}

// Scheduler keeps the status cache warm by running the aggregator on a
// fixed interval.
type Scheduler struct {
	agg    *Aggregator
	config SchedulerConfig
	last   *AggregateResult
}

// NewScheduler creates a scheduler for agg.
func NewScheduler(agg *Aggregator, config SchedulerConfig) *Scheduler {
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	return &Scheduler{agg: agg, config: config}
}

// Run performs one pass immediately and then one per interval until ctx is
// done. It returns at once when the scheduler is disabled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.config.Interval <= 0 {
		return
	}

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single bounded pass. It must not be called
// concurrently with Run.
func (s *Scheduler) RunOnce(ctx context.Context) AggregateResult {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runBound(s.agg.Registry(), s.config.Timeout))
		defer cancel()
	}

	next := s.agg.RunAll(ctx)
	if s.config.OnResult != nil {
		s.config.OnResult(s.last, next)
	}
	s.last = &next
	return next
}
