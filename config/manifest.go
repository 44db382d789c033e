package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/healthops/probes"
	"github.com/jonwraymond/healthops/secret"
)

// Manifest lists the probes to register.
//
//	probes:
//	  - name: redis
//	    kind: checker
//	    target: redis-cache
//	    critical: true
//	    timeout: 2s
type Manifest struct {
	Probes []probes.Definition `yaml:"probes" validate:"dive"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a manifest. Unknown fields are
// rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks field constraints and name uniqueness.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, formatValidationError(err))
	}
	seen := make(map[string]bool, len(m.Probes))
	for _, p := range m.Probes {
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate probe name %q", ErrInvalidManifest, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// ResolveSecrets resolves environment and secret references in every
// target and option value.
func (m *Manifest) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	for i := range m.Probes {
		p := &m.Probes[i]
		if err := r.ResolveInPlace(ctx, &p.Target); err != nil {
			return fmt.Errorf("probe %q target: %w", p.Name, err)
		}
		opts, err := r.ResolveMap(ctx, p.Options)
		if err != nil {
			return fmt.Errorf("probe %q options: %w", p.Name, err)
		}
		p.Options = opts
	}
	return nil
}
