package secret

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const refPrefix = "secretref:"

// Resolver expands environment variables and secret references in
// configuration values.
//
// A value that is exactly "secretref:<provider>:<ref>" is replaced by the
// secret; references embedded in a longer value ("Bearer secretref:env:X")
// are replaced in place.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a resolver. In strict mode an empty secret is an error.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Resolver) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// Close closes every provider and joins their errors.
func (r *Resolver) Close() error {
	var errs []error
	for _, p := range r.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// ResolveValue expands environment variables in value, then resolves any
// secret references.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if r == nil {
		return expanded, nil
	}
	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.resolve(ctx, provider, ref)
	}
	return r.resolveInline(ctx, expanded)
}

// ResolveInPlace resolves each string pointed to. Empty strings are left alone.
func (r *Resolver) ResolveInPlace(ctx context.Context, fields ...*string) error {
	for _, f := range fields {
		if f == nil || *f == "" {
			continue
		}
		v, err := r.ResolveValue(ctx, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// ResolveMap resolves every string value of input, recursing into nested
// maps and slices. Non-string values are copied unchanged.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]any) (map[string]any, error) {
	if input == nil {
		return nil, nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		resolved, err := r.resolveAny(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (r *Resolver) resolveAny(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.ResolveValue(ctx, val)
	case map[string]any:
		return r.ResolveMap(ctx, val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.resolveAny(ctx, item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// ParseSecretRef splits "secretref:<provider>:<ref>".
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) resolve(ctx context.Context, providerName, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("%w: empty ref for %q", ErrInvalidRef, providerName)
	}
	p, ok := r.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProviderNotRegistered, providerName)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && v == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrEmptySecret, providerName, ref)
	}
	return v, nil
}

var inlineRefPattern = regexp.MustCompile(`secretref:([A-Za-z0-9_-]+):([A-Za-z0-9_./-]+)`)

func (r *Resolver) resolveInline(ctx context.Context, value string) (string, error) {
	matches := inlineRefPattern.FindAllStringSubmatchIndex(value, -1)
	// Replace from the end so earlier indexes stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		v, err := r.resolve(ctx, value[m[2]:m[3]], value[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		value = value[:m[0]] + v + value[m[1]:]
	}
	return value, nil
}
