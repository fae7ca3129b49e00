// Package navigator resolves and executes cargo published by remote
// warehouses: it discovers a warehouse's inventory manifest, negotiates a
// wire module format, fetches and executes the module, caches results and
// retries transient failures with bounded backoff.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.Warehouses = map[string]config.Warehouse{
//		"shop": {URL: "https://cdn.example.com/shop"},
//	}
//
//	nav, err := navigator.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cargo, err := nav.LoadCargo(context.Background(), "shop", "./Button", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cargo.Descriptor.Version, cargo.Module["Button"])
package navigator

import (
	"github.com/shipfed/navigator/cache"
	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/internal/core"
	"github.com/shipfed/navigator/manifest"
	"github.com/shipfed/navigator/transport"
)

// Re-export types from internal/core
type (
	// WarehouseReference identifies a configured remote source.
	WarehouseReference = core.WarehouseReference

	// LoadOptions carries per-call policy.
	LoadOptions = core.LoadOptions

	// RetryPolicy bounds the retry schedule for one load.
	RetryPolicy = core.RetryPolicy
)

// Re-export the error taxonomy
type (
	ConfigurationError = core.ConfigurationError
	ValidationError    = core.ValidationError
	CargoNotFoundError = core.CargoNotFoundError
	NetworkError       = core.NetworkError
	LoadTimeoutError   = core.LoadTimeoutError
	CacheError         = core.CacheError
)

// Re-export sentinels for errors.Is checks
var (
	ErrCargoNotFound   = core.ErrCargoNotFound
	ErrManifestInvalid = core.ErrManifestInvalid
)

// Re-export manifest and transport surface types
type (
	// Inventory is a warehouse's published catalog.
	Inventory = manifest.Inventory

	// CargoDescriptor describes one loadable module.
	CargoDescriptor = manifest.CargoDescriptor

	// Exports is an executed module's export surface.
	Exports = transport.Exports

	// Loader fetches and evaluates module references.
	Loader = transport.Loader

	// Cache is the cache subsystem contract.
	Cache = cache.Cache

	// Client is the HTTP client used for manifest and module fetches.
	Client = client.Client
)

// DefaultClient returns an HTTP client with sensible defaults:
// - 30s timeout
// - 3 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates an HTTP client with the given options.
var NewClient = client.NewClient

// Client option re-exports.
var (
	WithTimeout    = client.WithTimeout
	WithMaxRetries = client.WithMaxRetries
	WithUserAgent  = client.WithUserAgent
)
