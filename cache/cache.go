// Package cache provides the key/value store backing loaded-cargo and
// inventory reuse: per-entry expiry checked lazily on access, a bounded
// memory backend with insertion-order eviction, a persistent leveldb
// backend, and a no-op backend for disabled caching.
package cache

import (
	"fmt"
	"time"

	"github.com/shipfed/navigator/internal/core"
)

// Cache is the contract every backend implements. An expired entry is
// deleted on access and reported absent; there is no background sweep.
type Cache interface {
	Get(key string) (any, bool, error)
	Set(key string, value any, ttl time.Duration) error
	Has(key string) (bool, error)
	Delete(key string) error
	Clear() error
	Size() (int, error)
}

// Strategy selects a backend implementation.
type Strategy string

const (
	Memory  Strategy = "memory"
	LevelDB Strategy = "leveldb"
	None    Strategy = "none"
)

// Config selects and sizes a backend.
type Config struct {
	Strategy   Strategy
	MaxEntries int    // memory backend bound, <= 0 for the default
	Path       string // leveldb directory
	Namespace  string // key prefix for persistent backends
}

const defaultMaxEntries = 256

// New builds a cache for the configured strategy. Unknown strategy tags
// fail fast with a ConfigurationError.
func New(cfg Config) (Cache, error) {
	switch cfg.Strategy {
	case Memory, "":
		max := cfg.MaxEntries
		if max <= 0 {
			max = defaultMaxEntries
		}
		return NewMemory(max), nil
	case LevelDB:
		return OpenLevelDB(cfg.Path, cfg.Namespace)
	case None:
		return Noop{}, nil
	default:
		return nil, &core.ConfigurationError{
			Field:  "cache.strategy",
			Detail: fmt.Sprintf("unknown strategy %q", cfg.Strategy),
		}
	}
}

// Key derives the deterministic composite cache key for a loaded cargo.
// Format is part of the key so that two formats of the same cargo never
// collide. The format component is the requested format negotiated from
// URL shape and environment; an ambiguous payload may execute as a
// content-detected format without changing the key.
func Key(warehouse, cargo, format string) string {
	return warehouse + "::" + cargo + "::" + format
}

// ManifestKey derives the cache key for a warehouse inventory.
func ManifestKey(warehouse string) string {
	return "manifest::" + warehouse
}

// entry is the internal cache record. Expires is an absolute unix-nano
// instant; zero means no expiry.
type entry struct {
	Value   any   `json:"value"`
	Expires int64 `json:"expires"`
}

func (e entry) expired(now time.Time) bool {
	return e.Expires != 0 && now.UnixNano() >= e.Expires
}

func expiryFor(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixNano()
}
