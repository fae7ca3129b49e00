// Package config loads and validates host configuration: the warehouses a
// host may load cargo from, the cache strategy, and default load policy.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shipfed/navigator/cache"
	"github.com/shipfed/navigator/internal/core"
)

// Config is the validated host configuration.
type Config struct {
	Warehouses map[string]Warehouse `yaml:"warehouses"`
	Cache      Cache                `yaml:"cache"`
	Load       Load                 `yaml:"load"`
}

// Warehouse configures one remote source.
type Warehouse struct {
	URL     string `yaml:"url"`
	Version string `yaml:"version"`
	Alias   string `yaml:"alias"`
}

// Cache selects and sizes the cache backend.
type Cache struct {
	Strategy   string `yaml:"strategy"`
	MaxEntries int    `yaml:"maxEntries"`
	Path       string `yaml:"path"`
	Namespace  string `yaml:"namespace"`
}

// Load sets default per-call policy, overridable per invocation.
type Load struct {
	Timeout     string `yaml:"timeout"`
	ManifestTTL string `yaml:"manifestTTL"`
	CargoTTL    string `yaml:"cargoTTL"`
	Retry       Retry  `yaml:"retry"`

	// compiled
	TimeoutDur     time.Duration `yaml:"-"`
	ManifestTTLDur time.Duration `yaml:"-"`
	CargoTTLDur    time.Duration `yaml:"-"`
}

// Retry bounds the retry schedule.
type Retry struct {
	Attempts  int     `yaml:"attempts"`
	BaseDelay string  `yaml:"baseDelay"`
	Backoff   float64 `yaml:"backoff"`

	BaseDelayDur time.Duration `yaml:"-"`
}

// LoadFile reads, parses and validates a YAML configuration file.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse validates raw YAML configuration bytes.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, &core.ConfigurationError{Detail: err.Error()}
	}
	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration defaults with no warehouses.
func Default() Config {
	cfg := Config{}
	_ = cfg.compile()
	return cfg
}

func (c *Config) compile() error {
	for name, w := range c.Warehouses {
		if w.URL == "" {
			return &core.ConfigurationError{
				Field:  fmt.Sprintf("warehouses.%s", name),
				Detail: "url is required",
			}
		}
	}

	if c.Cache.Strategy == "" {
		c.Cache.Strategy = string(cache.Memory)
	}
	switch cache.Strategy(c.Cache.Strategy) {
	case cache.Memory, cache.LevelDB, cache.None:
	default:
		return &core.ConfigurationError{
			Field:  "cache.strategy",
			Detail: fmt.Sprintf("unknown strategy %q", c.Cache.Strategy),
		}
	}

	var err error
	if c.Load.TimeoutDur, err = durationOr(c.Load.Timeout, 30*time.Second); err != nil {
		return &core.ConfigurationError{Field: "load.timeout", Detail: err.Error()}
	}
	if c.Load.ManifestTTLDur, err = durationOr(c.Load.ManifestTTL, 5*time.Minute); err != nil {
		return &core.ConfigurationError{Field: "load.manifestTTL", Detail: err.Error()}
	}
	if c.Load.CargoTTLDur, err = durationOr(c.Load.CargoTTL, 0); err != nil {
		return &core.ConfigurationError{Field: "load.cargoTTL", Detail: err.Error()}
	}

	if c.Load.Retry.Attempts <= 0 {
		c.Load.Retry.Attempts = 3
	}
	if c.Load.Retry.BaseDelayDur, err = durationOr(c.Load.Retry.BaseDelay, 500*time.Millisecond); err != nil {
		return &core.ConfigurationError{Field: "load.retry.baseDelay", Detail: err.Error()}
	}
	if c.Load.Retry.Backoff <= 0 {
		c.Load.Retry.Backoff = 2.0
	}

	return nil
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// References converts the warehouse table into immutable references.
func (c Config) References() map[string]core.WarehouseReference {
	out := make(map[string]core.WarehouseReference, len(c.Warehouses))
	for name, w := range c.Warehouses {
		out[name] = core.WarehouseReference{
			Name:    name,
			URL:     w.URL,
			Version: w.Version,
			Alias:   w.Alias,
		}
	}
	return out
}

// CacheConfig converts the cache section for the cache factory.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		Strategy:   cache.Strategy(c.Cache.Strategy),
		MaxEntries: c.Cache.MaxEntries,
		Path:       c.Cache.Path,
		Namespace:  c.Cache.Namespace,
	}
}

// RetryPolicy converts the retry defaults.
func (c Config) RetryPolicy() core.RetryPolicy {
	return core.RetryPolicy{
		Attempts:  c.Load.Retry.Attempts,
		BaseDelay: c.Load.Retry.BaseDelayDur,
		Backoff:   c.Load.Retry.Backoff,
	}
}
