package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a cache miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Loader is a read-through cache. Concurrent misses for the same key share
// one load, and load errors are never cached.
type Loader struct {
	cache  Cache
	keyer  Keyer
	policy Policy
	group  singleflight.Group
}

// NewLoader creates a read-through loader. A nil keyer uses DefaultKeyer.
func NewLoader(cache Cache, keyer Keyer, policy Policy) (*Loader, error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	return &Loader{cache: cache, keyer: keyer, policy: policy}, nil
}

// GetOrLoad returns the cached value for (namespace, input) or calls load
// and caches its result. The second return value reports a cache hit.
func (l *Loader) GetOrLoad(ctx context.Context, namespace string, input any, load LoadFunc) ([]byte, bool, error) {
	if !l.policy.ShouldCache() {
		v, err := load(ctx)
		return v, false, err
	}

	key, err := l.keyer.Key(namespace, input)
	if err != nil {
		v, err := load(ctx)
		return v, false, err
	}
	if v, ok := l.cache.Get(ctx, key); ok {
		return v, true, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		// A failed write only costs a future miss.
		_ = l.cache.Set(ctx, key, v, l.policy.EffectiveTTL(0))
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Cache returns the backing cache.
func (l *Loader) Cache() Cache {
	return l.cache
}

// GetOrLoadJSON is GetOrLoad for JSON-encoded values.
func GetOrLoadJSON[T any](ctx context.Context, l *Loader, namespace string, input any, load func(context.Context) (T, error)) (T, bool, error) {
	var out T
	raw, hit, err := l.GetOrLoad(ctx, namespace, input, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("cache: decode %s value: %w", namespace, err)
	}
	return out, hit, nil
}
