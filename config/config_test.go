package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipfed/navigator/cache"
	"github.com/shipfed/navigator/internal/core"
)

const sample = `
warehouses:
  shop:
    url: https://cdn.example.com/shop
    version: "^1.2.0"
  checkout:
    url: https://cdn.example.com/checkout
    alias: checkout-service
cache:
  strategy: memory
  maxEntries: 128
load:
  timeout: 10s
  manifestTTL: 2m
  retry:
    attempts: 5
    baseDelay: 250ms
    backoff: 1.5
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(cfg.Warehouses) != 2 {
		t.Fatalf("warehouses = %d, want 2", len(cfg.Warehouses))
	}
	if cfg.Warehouses["shop"].Version != "^1.2.0" {
		t.Errorf("shop version = %q", cfg.Warehouses["shop"].Version)
	}
	if cfg.Warehouses["checkout"].Alias != "checkout-service" {
		t.Errorf("checkout alias = %q", cfg.Warehouses["checkout"].Alias)
	}

	if cfg.Load.TimeoutDur != 10*time.Second {
		t.Errorf("timeout = %v", cfg.Load.TimeoutDur)
	}
	if cfg.Load.ManifestTTLDur != 2*time.Minute {
		t.Errorf("manifestTTL = %v", cfg.Load.ManifestTTLDur)
	}
	if cfg.Load.CargoTTLDur != 0 {
		t.Errorf("cargoTTL default = %v, want 0", cfg.Load.CargoTTLDur)
	}

	policy := cfg.RetryPolicy()
	if policy.Attempts != 5 || policy.BaseDelay != 250*time.Millisecond || policy.Backoff != 1.5 {
		t.Errorf("retry policy = %+v", policy)
	}

	cc := cfg.CacheConfig()
	if cc.Strategy != cache.Memory || cc.MaxEntries != 128 {
		t.Errorf("cache config = %+v", cc)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`warehouses: {}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Cache.Strategy != string(cache.Memory) {
		t.Errorf("default strategy = %q", cfg.Cache.Strategy)
	}
	if cfg.Load.TimeoutDur != 30*time.Second {
		t.Errorf("default timeout = %v", cfg.Load.TimeoutDur)
	}
	if cfg.Load.ManifestTTLDur != 5*time.Minute {
		t.Errorf("default manifestTTL = %v", cfg.Load.ManifestTTLDur)
	}
	if cfg.Load.Retry.Attempts != 3 || cfg.Load.Retry.BaseDelayDur != 500*time.Millisecond || cfg.Load.Retry.Backoff != 2.0 {
		t.Errorf("default retry = %+v", cfg.Load.Retry)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing warehouse url", "warehouses:\n  shop:\n    version: \"1.0\"\n"},
		{"unknown cache strategy", "cache:\n  strategy: redis\n"},
		{"bad duration", "load:\n  timeout: soon\n"},
		{"not yaml", "warehouses: [a, b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			var ce *core.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navigator.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	refs := cfg.References()
	if refs["shop"].URL != "https://cdn.example.com/shop" {
		t.Errorf("references = %+v", refs)
	}
	if refs["shop"].Name != "shop" {
		t.Errorf("reference name = %q", refs["shop"].Name)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile on a missing file succeeded")
	}
}
