package health

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProbeTimeout is used for descriptors registered without a timeout.
const DefaultProbeTimeout = 5 * time.Second

// Registry holds the set of probe descriptors.
//
// Reads load an immutable snapshot without locking. Writers serialize on a
// mutex and publish a fresh slice, so a run that has already taken its
// snapshot is never affected by a concurrent registration.
type Registry struct {
	defaultTimeout time.Duration

	mu   sync.Mutex
	snap atomic.Pointer[[]Descriptor]
}

// NewRegistry creates an empty registry. Descriptors registered with a zero
// timeout receive defaultTimeout, or DefaultProbeTimeout if that is not positive.
func NewRegistry(defaultTimeout time.Duration) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultProbeTimeout
	}
	r := &Registry{defaultTimeout: defaultTimeout}
	empty := []Descriptor{}
	r.snap.Store(&empty)
	return r
}

// Register adds a descriptor. Names must be unique.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.Timeout == 0 {
		d.Timeout = r.defaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	for _, existing := range cur {
		if existing.Name == d.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateProbe, d.Name)
		}
	}

	next := make([]Descriptor, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, d)
	r.snap.Store(&next)
	return nil
}

// Unregister removes the named descriptor and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	next := make([]Descriptor, 0, len(cur))
	for _, d := range cur {
		if d.Name != name {
			next = append(next, d)
		}
	}
	if len(next) == len(cur) {
		return false
	}
	r.snap.Store(&next)
	return true
}

// Replace swaps the whole descriptor set. Either every descriptor is
// accepted or the registry is left unchanged.
func (r *Registry) Replace(descs []Descriptor) error {
	next := make([]Descriptor, 0, len(descs))
	seen := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if err := d.validate(); err != nil {
			return err
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateProbe, d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.Timeout == 0 {
			d.Timeout = r.defaultTimeout
		}
		next = append(next, d)
	}

	r.mu.Lock()
	r.snap.Store(&next)
	r.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current descriptors in registration order.
func (r *Registry) Snapshot() []Descriptor {
	cur := r.snapshot()
	out := make([]Descriptor, len(cur))
	copy(out, cur)
	return out
}

// Lookup returns the named descriptor.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	for _, d := range r.snapshot() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Names returns the registered probe names in registration order.
func (r *Registry) Names() []string {
	cur := r.snapshot()
	names := make([]string, len(cur))
	for i, d := range cur {
		names[i] = d.Name
	}
	return names
}

// MaxTimeout returns the longest timeout among the registered probes, or
// zero for an empty registry.
func (r *Registry) MaxTimeout() time.Duration {
	var max time.Duration
	for _, d := range r.snapshot() {
		if d.Timeout > max {
			max = d.Timeout
		}
	}
	return max
}

// runGrace separates a probe's own timeout from the deadline of the run
// that contains it.
const runGrace = 250 * time.Millisecond

// runBound returns base, or the longest registered timeout plus runGrace
// when that is later.
func runBound(reg *Registry, base time.Duration) time.Duration {
	if longest := reg.MaxTimeout(); longest > 0 && longest+runGrace > base {
		return longest + runGrace
	}
	return base
}

// Len returns the number of registered probes.
func (r *Registry) Len() int {
	return len(r.snapshot())
}

// snapshot returns the published slice. Callers must not modify it.
func (r *Registry) snapshot() []Descriptor {
	return *r.snap.Load()
}
