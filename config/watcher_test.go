package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type applied struct {
	mu    sync.Mutex
	names [][]string
}

func (a *applied) apply(_ context.Context, m *Manifest) error {
	names := make([]string, 0, len(m.Probes))
	for _, p := range m.Probes {
		names = append(names, p.Name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, names)
	return nil
}

func (a *applied) last() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.names) == 0 {
		return nil
	}
	return a.names[len(a.names)-1]
}

func writeManifest(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
}

func TestManifestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probes.yaml")
	writeManifest(t, path, "probes:\n  - {name: a, kind: memory}\n")

	var got applied
	w := NewManifestWatcher(path, time.Millisecond, nil, got.apply)
	require.True(t, w.Reload(context.Background()))
	assert.Equal(t, []string{"a"}, got.last())

	writeManifest(t, path, "probes:\n  - {name: a, kind: memory}\n  - {name: a, kind: memory}\n")
	assert.False(t, w.Reload(context.Background()), "duplicate names must be rejected")
	assert.Equal(t, []string{"a"}, got.last())
	assert.Equal(t, 1, w.Reloads())
}

func TestManifestWatcher_ApplyRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probes.yaml")
	writeManifest(t, path, "probes:\n  - {name: a, kind: grpc}\n")

	w := NewManifestWatcher(path, time.Millisecond, nil, func(context.Context, *Manifest) error {
		return errors.New("unknown kind")
	})
	assert.False(t, w.Reload(context.Background()))
	assert.Zero(t, w.Reloads())
}

func TestManifestWatcher_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probes.yaml")
	writeManifest(t, path, "probes:\n  - {name: a, kind: memory}\n")

	var got applied
	w := NewManifestWatcher(path, 20*time.Millisecond, nil, got.apply)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeManifest(t, path, "probes:\n  - {name: a, kind: memory}\n  - {name: b, kind: memory}\n")

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"a", "b"}, got.last())
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManifestWatcher_RunMissingDir(t *testing.T) {
	w := NewManifestWatcher(filepath.Join(t.TempDir(), "nope", "probes.yaml"), 0, nil, func(context.Context, *Manifest) error { return nil })
	assert.Error(t, w.Run(context.Background()))
}
