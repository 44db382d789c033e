package probes

import (
	"fmt"
	"strconv"
	"time"
)

// Definition is one probe entry of a manifest.
type Definition struct {
	Name     string         `yaml:"name" json:"name" validate:"required,max=64"`
	Kind     string         `yaml:"kind" json:"kind" validate:"required"`
	Critical bool           `yaml:"critical" json:"critical"`
	Timeout  time.Duration  `yaml:"timeout" json:"timeout" validate:"gte=0"`
	Target   string         `yaml:"target" json:"target"`
	Retries  int            `yaml:"retries" json:"retries" validate:"gte=0,lte=10"`
	Options  map[string]any `yaml:"options" json:"options,omitempty"`
}

func (s Definition) optString(key, def string) string {
	if v, ok := s.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

func (s Definition) optFloat(key string, def float64) (float64, error) {
	v, ok := s.Options[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("option %q: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("option %q: unsupported type %T", key, v)
	}
}

// optDuration accepts a Go duration string ("250ms") or a number of
// milliseconds.
func (s Definition) optDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := s.Options[key]
	if !ok {
		return def, nil
	}
	switch d := v.(type) {
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("option %q: %w", key, err)
		}
		return parsed, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("option %q: unsupported type %T", key, v)
	}
}
