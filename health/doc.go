// Package health aggregates the health of many independent dependencies
// into one system status.
//
// # Core Concepts
//
// A Probe checks one dependency and returns an Outcome: up, degraded or
// down. Probes are registered in a Registry through a Descriptor that names
// them, marks them critical or not, and bounds their run time.
//
// The Aggregator runs every probe in a registry snapshot concurrently. A
// probe that panics or overruns its timeout is recorded as down; one slow or
// broken dependency never prevents the others from being reported. The
// outcomes are reduced by a Policy:
//
//   - healthy when every probe is up;
//   - unhealthy when any critical probe is down;
//   - degraded otherwise.
//
// Each full run replaces the StatusCache, which serves cheap endpoints.
//
// # Basic Usage
//
//	reg := health.NewRegistry(2 * time.Second)
//	_ = reg.Register(health.Descriptor{Name: "queue", Critical: true, Probe: health.FromChecker(q)})
//	_ = reg.Register(health.Descriptor{Name: "memory", Probe: health.NewMemoryProbe(health.MemoryProbeConfig{})})
//
//	agg := health.NewAggregator(reg)
//	result := agg.RunAll(ctx)
//	fmt.Println(result.Overall)
//
// Collaborators that already report their own health through Checker are
// adapted with FromChecker.
//
// # HTTP Endpoints
//
// Handler serves four views of the same data:
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, health.NewHandler(agg))
//
//	GET /health/live      process is running, no probing
//	GET /health/ready     critical probes only
//	GET /health           overall status, cached when fresh
//	GET /health/detailed  fresh run with per-probe breakdown
//
// A Scheduler keeps the cache warm in the background.
package health
