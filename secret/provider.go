package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves "secretref:env:NAME" from the process environment.
type EnvProvider struct{}

// Name implements Provider.
func (EnvProvider) Name() string { return "env" }

// Resolve returns the value of the environment variable ref.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, ref)
	}
	return v, nil
}

// Close implements Provider.
func (EnvProvider) Close() error { return nil }

// FileProvider resolves "secretref:file:PATH" by reading a mounted secret
// file, e.g. a Docker or Kubernetes secret. Relative paths are joined to
// BaseDir. Trailing whitespace is trimmed.
type FileProvider struct {
	BaseDir string
}

// Name implements Provider.
func (FileProvider) Name() string { return "file" }

// Resolve reads the secret file.
func (p FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path := ref
	if !filepath.IsAbs(path) && p.BaseDir != "" {
		path = filepath.Join(p.BaseDir, path)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

// Close implements Provider.
func (FileProvider) Close() error { return nil }

func init() {
	_ = DefaultRegistry.Register("env", func(map[string]any) (Provider, error) {
		return EnvProvider{}, nil
	})
	_ = DefaultRegistry.Register("file", func(cfg map[string]any) (Provider, error) {
		base, _ := cfg["baseDir"].(string)
		return FileProvider{BaseDir: base}, nil
	})
}
