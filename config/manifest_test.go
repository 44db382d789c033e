package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/healthops/secret"
)

const sampleManifest = `
probes:
  - name: redis
    kind: checker
    target: redis-cache
    critical: true
    timeout: 2s
  - name: coingecko
    kind: http
    target: https://api.coingecko.com/api/v3/ping
    retries: 2
    options:
      slowThreshold: 750ms
  - name: heap
    kind: memory
    options:
      warningThreshold: 0.8
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, m.Probes, 3)

	redis := m.Probes[0]
	assert.Equal(t, "redis", redis.Name)
	assert.Equal(t, "checker", redis.Kind)
	assert.True(t, redis.Critical)
	assert.Equal(t, 2*time.Second, redis.Timeout)

	assert.Equal(t, 2, m.Probes[1].Retries)
	assert.Equal(t, "750ms", m.Probes[1].Options["slowThreshold"])
	assert.Equal(t, 0.8, m.Probes[2].Options["warningThreshold"])
}

func TestParseManifest_Empty(t *testing.T) {
	m, err := ParseManifest(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Probes)
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "probes:\n  - kind: http\n"},
		{"missing kind", "probes:\n  - name: a\n"},
		{"duplicate", "probes:\n  - {name: a, kind: memory}\n  - {name: a, kind: memory}\n"},
		{"unknown field", "probes:\n  - {name: a, kind: memory, critcal: true}\n"},
		{"bad timeout", "probes:\n  - {name: a, kind: memory, timeout: fast}\n"},
		{"negative retries", "probes:\n  - {name: a, kind: memory, retries: -1}\n"},
		{"not yaml", "probes: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "probes.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManifest_ResolveSecrets(t *testing.T) {
	t.Setenv("STATUS_HOST", "status.internal")
	t.Setenv("STATUS_TOKEN", "tok")

	m, err := ParseManifest([]byte(`
probes:
  - name: status
    kind: http
    target: https://${STATUS_HOST}/health
    options:
      token: secretref:env:STATUS_TOKEN
      slowThreshold: 500
`))
	require.NoError(t, err)

	r := secret.NewResolver(true, secret.EnvProvider{})
	require.NoError(t, m.ResolveSecrets(context.Background(), r))
	assert.Equal(t, "https://status.internal/health", m.Probes[0].Target)
	assert.Equal(t, "tok", m.Probes[0].Options["token"])
	assert.Equal(t, 500, m.Probes[0].Options["slowThreshold"])
}
