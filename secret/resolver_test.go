package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type mapProvider struct {
	name   string
	values map[string]string
	closed bool
}

func (p *mapProvider) Name() string { return p.name }

func (p *mapProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.values[ref]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (p *mapProvider) Close() error {
	p.closed = true
	return nil
}

func TestParseSecretRef(t *testing.T) {
	tests := []struct {
		in       string
		provider string
		ref      string
		ok       bool
	}{
		{"secretref:env:REDIS_PASSWORD", "env", "REDIS_PASSWORD", true},
		{"secretref:file:/run/secrets/api:key", "file", "/run/secrets/api:key", true},
		{"secretref:env:", "", "", false},
		{"secretref::X", "", "", false},
		{"plain", "", "", false},
	}
	for _, tt := range tests {
		p, r, ok := ParseSecretRef(tt.in)
		if p != tt.provider || r != tt.ref || ok != tt.ok {
			t.Errorf("ParseSecretRef(%q) = %q, %q, %v", tt.in, p, r, ok)
		}
	}
}

func TestResolver_ResolveValue(t *testing.T) {
	t.Setenv("FEED_HOST", "feed.internal")
	vault := &mapProvider{name: "vault", values: map[string]string{"api": "s3cr3t", "empty": ""}}
	r := NewResolver(true, vault)
	ctx := context.Background()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "localhost:6379", "localhost:6379"},
		{"env", "https://${FEED_HOST}/v1", "https://feed.internal/v1"},
		{"whole ref", "secretref:vault:api", "s3cr3t"},
		{"inline ref", "Bearer secretref:vault:api", "Bearer s3cr3t"},
		{"escaped dollar", "cost$$5", "cost$5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveValue(ctx, tt.in)
			if err != nil {
				t.Fatalf("ResolveValue(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ResolveValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := r.ResolveValue(ctx, "secretref:vault:empty"); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("empty secret error = %v, want ErrEmptySecret", err)
	}
	if _, err := r.ResolveValue(ctx, "secretref:aws:x"); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("unknown provider error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.ResolveValue(ctx, "${HEALTHD_TEST_UNSET_VAR}"); !errors.Is(err, ErrMissingEnv) {
		t.Errorf("unset env error = %v, want ErrMissingEnv", err)
	}
}

func TestResolver_NonStrictAllowsEmpty(t *testing.T) {
	r := NewResolver(false, &mapProvider{name: "vault", values: map[string]string{"empty": ""}})
	got, err := r.ResolveValue(context.Background(), "secretref:vault:empty")
	if err != nil || got != "" {
		t.Errorf("ResolveValue() = %q, %v", got, err)
	}
}

func TestResolver_ResolveInPlace(t *testing.T) {
	t.Setenv("PG_PASS", "pw")
	r := NewResolver(true, EnvProvider{})

	dsn := "postgres://app:secretref:env:PG_PASS@db/health"
	empty := ""
	if err := r.ResolveInPlace(context.Background(), &dsn, &empty, nil); err != nil {
		t.Fatalf("ResolveInPlace() error = %v", err)
	}
	if dsn != "postgres://app:pw@db/health" {
		t.Errorf("dsn = %q", dsn)
	}
}

func TestResolver_ResolveMap(t *testing.T) {
	t.Setenv("FEED_TOKEN", "tok")
	r := NewResolver(true, EnvProvider{})

	in := map[string]any{
		"url":     "https://feed",
		"timeout": 3,
		"headers": map[string]any{"Authorization": "Bearer secretref:env:FEED_TOKEN"},
		"tags":    []any{"secretref:env:FEED_TOKEN", 7},
	}
	out, err := r.ResolveMap(context.Background(), in)
	if err != nil {
		t.Fatalf("ResolveMap() error = %v", err)
	}
	want := map[string]any{
		"url":     "https://feed",
		"timeout": 3,
		"headers": map[string]any{"Authorization": "Bearer tok"},
		"tags":    []any{"tok", 7},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("ResolveMap() mismatch (-want +got):\n%s", diff)
	}
	if in["headers"].(map[string]any)["Authorization"] != "Bearer secretref:env:FEED_TOKEN" {
		t.Error("input map was modified")
	}
}

func TestResolver_Close(t *testing.T) {
	p := &mapProvider{name: "vault"}
	if err := NewResolver(false, p).Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.closed {
		t.Error("provider not closed")
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "redis_password"), []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := FileProvider{BaseDir: dir}
	ctx := context.Background()

	got, err := p.Resolve(ctx, "redis_password")
	if err != nil || got != "hunter2" {
		t.Errorf("Resolve(relative) = %q, %v", got, err)
	}
	got, err = p.Resolve(ctx, filepath.Join(dir, "redis_password"))
	if err != nil || got != "hunter2" {
		t.Errorf("Resolve(absolute) = %q, %v", got, err)
	}
	if _, err := p.Resolve(ctx, "missing"); err == nil {
		t.Error("Resolve(missing) expected error")
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("HEALTHD_TEST_SECRET", "v")
	if got, err := (EnvProvider{}).Resolve(context.Background(), "HEALTHD_TEST_SECRET"); err != nil || got != "v" {
		t.Errorf("Resolve() = %q, %v", got, err)
	}
	if _, err := (EnvProvider{}).Resolve(context.Background(), "HEALTHD_TEST_UNSET_VAR"); !errors.Is(err, ErrMissingEnv) {
		t.Errorf("Resolve(unset) error = %v", err)
	}
}
