package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Keyer derives cache keys from a namespace and request parameters.
//
// Contract:
// - Determinism: equal inputs produce equal keys regardless of map order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(namespace string, input any) (string, error)
}

// DefaultKeyer hashes canonical JSON with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key returns "<namespace>:<first 16 hex chars of sha256(canonical json)>".
func (k *DefaultKeyer) Key(namespace string, input any) (string, error) {
	canonical, err := canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("cache: canonicalize input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return namespace + ":" + hex.EncodeToString(sum[:8]), nil
}

func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := canonicalize(val[k])
			if err != nil {
				return nil, err
			}
			out = append(append(append(out, kb...), ':'), vb...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			b, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return append(out, ']'), nil
	default:
		// encoding/json already sorts map[string]T keys for concrete T.
		return json.Marshal(v)
	}
}

var _ Keyer = (*DefaultKeyer)(nil)
