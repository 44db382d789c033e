package probes

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/resilience"
)

var (
	// ErrUnknownKind is returned when no builder is registered for a kind.
	ErrUnknownKind = errors.New("probes: unknown kind")

	// ErrUnknownChecker is returned when a checker entry names a
	// collaborator that was not registered.
	ErrUnknownChecker = errors.New("probes: unknown checker")

	// ErrInvalidDefinition is returned for entries a builder cannot use.
	ErrInvalidDefinition = errors.New("probes: invalid definition")
)

// Builder creates a probe from a manifest entry.
type Builder func(def Definition) (health.Probe, error)

// Builders maps probe kinds to builders and holds the named collaborators
// that "checker" entries refer to.
type Builders struct {
	mu       sync.RWMutex
	builders map[string]Builder
	checkers map[string]health.Checker

	httpClient *http.Client
	retryDelay time.Duration
}

// NewBuilders creates a registry with the built-in kinds.
func NewBuilders() *Builders {
	b := &Builders{
		builders:   make(map[string]Builder),
		checkers:   make(map[string]health.Checker),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		retryDelay: 100 * time.Millisecond,
	}
	_ = b.Register("checker", b.buildChecker)
	_ = b.Register("http", b.buildHTTP)
	_ = b.Register("dns", buildDNS)
	_ = b.Register("memory", buildMemory)
	return b
}

// Register adds a builder for kind.
func (b *Builders) Register(kind string, builder Builder) error {
	kind = strings.TrimSpace(kind)
	if kind == "" || builder == nil {
		return fmt.Errorf("%w: empty kind or nil builder", ErrInvalidDefinition)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.builders[kind]; exists {
		return fmt.Errorf("%w: kind %q already registered", ErrInvalidDefinition, kind)
	}
	b.builders[kind] = builder
	return nil
}

// RegisterChecker makes c available to "checker" entries under c.Name().
func (b *Builders) RegisterChecker(c health.Checker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkers[c.Name()] = c
}

// Kinds returns the registered kinds in sorted order.
func (b *Builders) Kinds() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	kinds := make([]string, 0, len(b.builders))
	for k := range b.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build turns def into a descriptor.
func (b *Builders) Build(def Definition) (health.Descriptor, error) {
	b.mu.RLock()
	builder, ok := b.builders[def.Kind]
	b.mu.RUnlock()
	if !ok {
		return health.Descriptor{}, fmt.Errorf("%w: %q (probe %q)", ErrUnknownKind, def.Kind, def.Name)
	}

	probe, err := builder(def)
	if err != nil {
		return health.Descriptor{}, fmt.Errorf("probe %q: %w", def.Name, err)
	}
	if def.Retries > 0 {
		probe = NewRetryProbe(probe, resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  def.Retries + 1,
			InitialDelay: b.retryDelay,
			MaxDelay:     time.Second,
		}))
	}
	return health.Descriptor{
		Name:     def.Name,
		Critical: def.Critical,
		Timeout:  def.Timeout,
		Probe:    probe,
		Kind:     def.Kind,
	}, nil
}

// BuildAll builds every definition, stopping at the first error.
func (b *Builders) BuildAll(defs []Definition) ([]health.Descriptor, error) {
	out := make([]health.Descriptor, 0, len(defs))
	for _, s := range defs {
		d, err := b.Build(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (b *Builders) buildChecker(def Definition) (health.Probe, error) {
	name := def.Target
	if name == "" {
		name = def.Name
	}
	b.mu.RLock()
	c, ok := b.checkers[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChecker, name)
	}
	return health.FromChecker(c), nil
}

func (b *Builders) buildHTTP(def Definition) (health.Probe, error) {
	if def.Target == "" {
		return nil, fmt.Errorf("%w: http probe needs a target", ErrInvalidDefinition)
	}
	slow, err := def.optDuration("slowThreshold", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &HTTPProbe{
		Target:        def.Target,
		Method:        strings.ToUpper(def.optString("method", http.MethodGet)),
		Client:        b.httpClient,
		SlowThreshold: slow,
	}, nil
}

func buildDNS(def Definition) (health.Probe, error) {
	if def.Target == "" {
		return nil, fmt.Errorf("%w: dns probe needs a target", ErrInvalidDefinition)
	}
	return &DNSProbe{Target: def.Target}, nil
}

func buildMemory(def Definition) (health.Probe, error) {
	warn, err := def.optFloat("warningThreshold", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	crit, err := def.optFloat("criticalThreshold", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	maxAlloc, err := def.optFloat("maxAllocBytes", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return health.NewMemoryProbe(health.MemoryProbeConfig{
		WarningThreshold:  warn,
		CriticalThreshold: crit,
		MaxAlloc:          uint64(maxAlloc),
	}), nil
}
