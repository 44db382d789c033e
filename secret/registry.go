package secret

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderFactory creates a Provider from configuration.
type ProviderFactory func(cfg map[string]any) (Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q already registered", ErrInvalidRegistration, name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates the named provider.
func (r *Registry) Create(name string, cfg map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}

// List returns registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewResolverFrom creates a resolver with one provider per registered
// factory. cfg is passed to every factory.
func (r *Registry) NewResolverFrom(strict bool, cfg map[string]any) (*Resolver, error) {
	res := NewResolver(strict)
	for _, name := range r.List() {
		p, err := r.Create(name, cfg)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("secret: create provider %q: %w", name, err)
		}
		res.Register(p)
	}
	return res, nil
}

// DefaultRegistry holds the built-in env and file providers.
var DefaultRegistry = NewRegistry()
