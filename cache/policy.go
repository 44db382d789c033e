package cache

import "time"

// Policy decides how long loaded values are kept.
type Policy struct {
	// DefaultTTL applies when a caller passes no TTL. Zero disables caching.
	DefaultTTL time.Duration

	// MaxTTL clamps caller TTLs. Zero means no cap.
	MaxTTL time.Duration
}

// DefaultPolicy keeps values for 5 minutes and never longer than 1 hour.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: 5 * time.Minute, MaxTTL: time.Hour}
}

// NoCachePolicy disables caching.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache reports whether the policy caches anything.
func (p Policy) ShouldCache() bool {
	return p.DefaultTTL > 0
}

// EffectiveTTL returns override, or DefaultTTL when override <= 0, clamped
// to MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}
