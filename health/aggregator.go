package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Hook observes probe and run lifecycle events.
type Hook interface {
	// ProbeStarted is called before a probe is dispatched. The returned
	// context is passed to the probe and to ProbeFinished.
	ProbeStarted(ctx context.Context, d Descriptor) context.Context

	// ProbeFinished is called with the normalized outcome.
	ProbeFinished(ctx context.Context, d Descriptor, o Outcome)

	// RunFinished is called once per run after reduction.
	RunFinished(ctx context.Context, r AggregateResult)
}

type nopHook struct{}

func (nopHook) ProbeStarted(ctx context.Context, _ Descriptor) context.Context { return ctx }
func (nopHook) ProbeFinished(context.Context, Descriptor, Outcome)             {}
func (nopHook) RunFinished(context.Context, AggregateResult)                   {}

// AggregatorConfig configures the aggregator.
type AggregatorConfig struct {
	// MaxConcurrency limits how many probes run at once. Zero means unlimited.
	// A probe's timeout starts when it is dispatched, not when it is queued.
	MaxConcurrency int

	// Policy reduces per-probe results. Default: StrictPolicy.
	Policy Policy

	// Cache receives every full run. Default: a new empty StatusCache.
	Cache *StatusCache

	// Hook observes probe runs. Default: no-op.
	Hook Hook
}

// Aggregator runs every registered probe concurrently and reduces the
// outcomes to an overall status.
type Aggregator struct {
	registry *Registry
	config   AggregatorConfig
}

// NewAggregator creates an aggregator over the given registry.
func NewAggregator(registry *Registry, config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Policy == nil {
		cfg.Policy = StrictPolicy{}
	}
	if cfg.Cache == nil {
		cfg.Cache = NewStatusCache()
	}
	if cfg.Hook == nil {
		cfg.Hook = nopHook{}
	}
	if cfg.MaxConcurrency < 0 {
		cfg.MaxConcurrency = 0
	}
	return &Aggregator{registry: registry, config: cfg}
}

// Registry returns the registry this aggregator reads from.
func (a *Aggregator) Registry() *Registry {
	return a.registry
}

// Cache returns the status cache that full runs are written to.
func (a *Aggregator) Cache() *StatusCache {
	return a.config.Cache
}

// RunAll runs every probe in the current registry snapshot, reduces the
// outcomes and replaces the status cache. It always returns a result with
// one entry per probe; probe failures, panics and timeouts become down
// outcomes.
//
// A run that ctx ends before every probe has settled or reached its own
// timeout is returned but not cached. Those probes report ErrRunDeadline
// or ErrProbeCancelled, which describe the caller and not the dependency.
func (a *Aggregator) RunAll(ctx context.Context) AggregateResult {
	result, cut := a.run(ctx, a.registry.snapshot())
	if !cut {
		a.config.Cache.Set(result)
	}
	a.config.Hook.RunFinished(ctx, result)
	return result
}

// RunCritical runs only the critical probes. The result covers a subset of
// the registry and is therefore not written to the status cache.
func (a *Aggregator) RunCritical(ctx context.Context) AggregateResult {
	all := a.registry.snapshot()
	critical := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.Critical {
			critical = append(critical, d)
		}
	}
	result, _ := a.run(ctx, critical)
	a.config.Hook.RunFinished(ctx, result)
	return result
}

// Check runs a single named probe.
func (a *Aggregator) Check(ctx context.Context, name string) (ProbeResult, error) {
	d, ok := a.registry.Lookup(name)
	if !ok {
		return ProbeResult{}, fmt.Errorf("%w: %q", ErrProbeNotFound, name)
	}
	out, _ := a.runProbe(ctx, d)
	return ProbeResult{Outcome: out, Critical: d.Critical}, nil
}

// run settles every descriptor. cut reports whether ctx ended before at
// least one probe settled or hit its own timeout.
func (a *Aggregator) run(ctx context.Context, descs []Descriptor) (_ AggregateResult, cut bool) {
	start := time.Now()
	outcomes := make([]Outcome, len(descs))
	interrupted := make([]bool, len(descs))

	// Probe goroutines never return errors, so the group never cancels
	// siblings; it is used for its concurrency limit only.
	var g errgroup.Group
	if a.config.MaxConcurrency > 0 {
		g.SetLimit(a.config.MaxConcurrency)
	}
	for i, d := range descs {
		g.Go(func() error {
			outcomes[i], interrupted[i] = a.runProbe(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	perProbe := make(map[string]ProbeResult, len(descs))
	for i, d := range descs {
		perProbe[d.Name] = ProbeResult{Outcome: outcomes[i], Critical: d.Critical}
		cut = cut || interrupted[i]
	}

	end := time.Now()
	return AggregateResult{
		Overall:    a.config.Policy.Reduce(perProbe),
		PerProbe:   perProbe,
		ComputedAt: end,
		Duration:   end.Sub(start),
	}, cut
}

// runProbe reports interrupted when ctx, rather than the probe or its own
// timeout, decided the outcome.
func (a *Aggregator) runProbe(ctx context.Context, d Descriptor) (_ Outcome, interrupted bool) {
	ctx = a.config.Hook.ProbeStarted(ctx, d)
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	// Buffered so a probe that settles after its deadline does not block.
	resultCh := make(chan Outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				resultCh <- DownOutcome(fmt.Errorf("%w: %v", ErrProbePanic, v), nil)
			}
		}()
		resultCh <- d.Probe.Run(probeCtx)
	}()

	var out Outcome
	settled := false
	select {
	case out = <-resultCh:
		settled = true
	case <-probeCtx.Done():
	}

	// A probe that honours its context may settle with its own error at the
	// same instant the caller's deadline fires. Only an up outcome is kept
	// once ctx has ended.
	if !settled || (out.Status != ProbeUp && ctx.Err() != nil) {
		switch err := ctx.Err(); {
		case err == nil:
			out = DownOutcome(ErrProbeTimeout, map[string]any{"timeoutMs": d.Timeout.Milliseconds()})
		case errors.Is(err, context.DeadlineExceeded):
			out = DownOutcome(ErrRunDeadline, nil)
			interrupted = true
		default:
			out = DownOutcome(ErrProbeCancelled, nil)
			interrupted = true
		}
	}

	out = normalize(out, start, time.Now())
	a.config.Hook.ProbeFinished(ctx, d, out)
	return out, interrupted
}

// normalize stamps timing and normalizes the outcome: up outcomes
// carry no error and down outcomes always carry an error or detail.
func normalize(o Outcome, start, end time.Time) Outcome {
	o.Latency = end.Sub(start)
	if o.CheckedAt.IsZero() {
		o.CheckedAt = start
	}
	switch o.Status {
	case ProbeUp:
		o.Error = ""
	case ProbeDegraded:
	case ProbeDown:
		if o.Error == "" && len(o.Detail) == 0 {
			o.Error = ErrProbeDown.Error()
		}
	default:
		o.Error = fmt.Sprintf("%s: %d", ErrInvalidStatus, int(o.Status))
		o.Status = ProbeDown
	}
	return o
}
