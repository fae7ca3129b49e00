// Package core provides shared types and the error taxonomy.
package core

import (
	"time"

	"github.com/shipfed/navigator/format"
)

// WarehouseReference identifies a configured remote source. Built from host
// configuration at startup and never mutated afterwards.
type WarehouseReference struct {
	Name    string
	URL     string
	Version string // accepted version range, empty for any
	Alias   string
}

// RetryPolicy bounds the retry schedule for one load. Attempt 1 runs
// immediately; attempt n waits BaseDelay × Backoff^(n-2).
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Backoff   float64 // <= 0 means fixed delay
}

// LoadOptions carries per-call policy. Supplied by the caller per
// invocation, never persisted.
type LoadOptions struct {
	Format          format.Format // explicit override, Unknown to negotiate
	Timeout         time.Duration
	TotalTimeout    time.Duration // bounds the whole attempt sequence
	Retry           RetryPolicy
	NoCache         bool
	TTL             time.Duration // cache TTL for the loaded result
	Fallback        func() map[string]any
	ExpectedExports []string
	GlobalName      string // global the bundle assigns to, for iife bundles
}
