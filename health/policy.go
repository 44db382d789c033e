package health

// Policy reduces per-probe results to an overall status.
// Implementations must be pure functions of the (critical, status) pairs.
type Policy interface {
	Reduce(results map[string]ProbeResult) Status
}

// PolicyFunc adapts an ordinary function to the Policy interface.
type PolicyFunc func(results map[string]ProbeResult) Status

// Reduce calls f(results).
func (f PolicyFunc) Reduce(results map[string]ProbeResult) Status {
	return f(results)
}

// StrictPolicy is the default reduction:
//
//   - healthy when every probe is up, including when there are no probes;
//   - unhealthy when any critical probe is down;
//   - degraded otherwise.
type StrictPolicy struct{}

// Reduce implements Policy.
func (StrictPolicy) Reduce(results map[string]ProbeResult) Status {
	allUp := true
	for _, r := range results {
		if r.Critical && r.Status == ProbeDown {
			return StatusUnhealthy
		}
		if r.Status != ProbeUp {
			allUp = false
		}
	}
	if allUp {
		return StatusHealthy
	}
	return StatusDegraded
}

// Reduce applies StrictPolicy.
func Reduce(results map[string]ProbeResult) Status {
	return StrictPolicy{}.Reduce(results)
}

// DefaultRatioThreshold is the share of critical probes that must be
// available for RatioPolicy to report anything better than unhealthy.
const DefaultRatioThreshold = 0.8

// RatioPolicy tolerates a minority of critical failures. It reports
// unhealthy only when the share of critical probes that are not down falls
// below Threshold. It is not equivalent to StrictPolicy: with ten critical
// probes and one down it reports degraded.
type RatioPolicy struct {
	// Threshold is in (0, 1]. Zero means DefaultRatioThreshold.
	Threshold float64
}

// Reduce implements Policy.
func (p RatioPolicy) Reduce(results map[string]ProbeResult) Status {
	threshold := p.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultRatioThreshold
	}

	allUp := true
	critical, available := 0, 0
	for _, r := range results {
		if r.Status != ProbeUp {
			allUp = false
		}
		if r.Critical {
			critical++
			if r.Status != ProbeDown {
				available++
			}
		}
	}
	if allUp {
		return StatusHealthy
	}
	if critical > 0 && float64(available)/float64(critical) < threshold {
		return StatusUnhealthy
	}
	return StatusDegraded
}
