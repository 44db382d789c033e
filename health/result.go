package health

import (
	"sort"
	"sync/atomic"
	"time"
)

// ProbeResult is an outcome together with the criticality it was run under.
type ProbeResult struct {
	Outcome
	Critical bool
}

// AggregateResult is the reduction of one run over every probe in a
// registry snapshot.
type AggregateResult struct {
	// Overall is the reduced status.
	Overall Status

	// PerProbe holds exactly one entry per probe in the run's snapshot.
	PerProbe map[string]ProbeResult

	// ComputedAt is when the run settled.
	ComputedAt time.Time

	// Duration is the wall time from dispatch to the last settlement.
	Duration time.Duration
}

// Ready reports whether no critical probe is down.
func (r AggregateResult) Ready() bool {
	for _, p := range r.PerProbe {
		if p.Critical && p.Status == ProbeDown {
			return false
		}
	}
	return true
}

// Names returns the probe names in sorted order.
func (r AggregateResult) Names() []string {
	names := make([]string, 0, len(r.PerProbe))
	for name := range r.PerProbe {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns how many probes reported the given status.
func (r AggregateResult) Count(s ProbeStatus) int {
	n := 0
	for _, p := range r.PerProbe {
		if p.Status == s {
			n++
		}
	}
	return n
}

// StatusCache holds the most recent full aggregate result.
//
// The zero value is an empty cache. Replacement is a single atomic swap, so
// readers observe either the previous result or the new one, never a mix.
type StatusCache struct {
	p atomic.Pointer[AggregateResult]
}

// NewStatusCache creates an empty cache.
func NewStatusCache() *StatusCache {
	return &StatusCache{}
}

// Set replaces the cached result.
func (c *StatusCache) Set(r AggregateResult) {
	c.p.Store(&r)
}

// Get returns the cached result, or false if nothing has been computed yet.
// The returned PerProbe map is shared and must not be modified.
func (c *StatusCache) Get() (AggregateResult, bool) {
	r := c.p.Load()
	if r == nil {
		return AggregateResult{}, false
	}
	return *r, true
}

// Age returns how long ago the cached result was computed.
func (c *StatusCache) Age(now time.Time) (time.Duration, bool) {
	r := c.p.Load()
	if r == nil {
		return 0, false
	}
	return now.Sub(r.ComputedAt), true
}

// Fresh returns the cached result if it is no older than maxAge.
func (c *StatusCache) Fresh(now time.Time, maxAge time.Duration) (AggregateResult, bool) {
	r := c.p.Load()
	if r == nil || now.Sub(r.ComputedAt) > maxAge {
		return AggregateResult{}, false
	}
	return *r, true
}
