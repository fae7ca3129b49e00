package navigator

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/shipfed/navigator/cache"
	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/config"
	"github.com/shipfed/navigator/format"
	"github.com/shipfed/navigator/internal/core"
	"github.com/shipfed/navigator/manifest"
	"github.com/shipfed/navigator/retry"
	"github.com/shipfed/navigator/transport"
)

// LoadedCargo is the result of a successful load: the executed module's
// export surface and the descriptor it came from.
type LoadedCargo struct {
	Module     Exports
	Descriptor *CargoDescriptor
}

// Navigator is the public entry point. It owns the registry of loaded
// warehouses and cargo and composes manifest resolution, format
// negotiation, transport loading, caching and retry. Construct one at the
// composition root and share it; there is no package-level instance.
type Navigator struct {
	refs     map[string]core.WarehouseReference
	cfg      config.Config
	client   *client.Client
	cache    cache.Cache
	loader   transport.Loader
	resolver *manifest.Resolver
	env      format.Environment
	logger   *log.Logger

	// collapses concurrent loads of the same composite key onto one
	// in-flight attempt
	group singleflight.Group

	mu          sync.RWMutex
	inventories map[string]*manifest.Inventory
	loaded      map[string]*LoadedCargo
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithClient sets the HTTP client used for manifests and modules.
func WithClient(c *client.Client) Option {
	return func(n *Navigator) { n.client = c }
}

// WithCache overrides the configured cache backend.
func WithCache(c cache.Cache) Option {
	return func(n *Navigator) { n.cache = c }
}

// WithLoader overrides the transport loader.
func WithLoader(l transport.Loader) Option {
	return func(n *Navigator) { n.loader = l }
}

// WithEnvironment sets the execution-environment capabilities used for
// format negotiation and loader selection.
func WithEnvironment(env format.Environment) Option {
	return func(n *Navigator) { n.env = env }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// New creates a Navigator from validated host configuration.
func New(cfg config.Config, opts ...Option) (*Navigator, error) {
	n := &Navigator{
		refs:        cfg.References(),
		cfg:         cfg,
		env:         format.DefaultEnvironment(),
		inventories: make(map[string]*manifest.Inventory),
		loaded:      make(map[string]*LoadedCargo),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.logger == nil {
		n.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "navigator"})
	}
	if n.client == nil {
		n.client = client.DefaultClient()
	}
	if n.cache == nil {
		c, err := cache.New(cfg.CacheConfig())
		if err != nil {
			return nil, err
		}
		n.cache = c
	}
	if n.loader == nil {
		n.loader = transport.NewCircuitLoader(transport.New(n.env, n.client, n.logger))
	}
	n.resolver = manifest.NewResolver(n.client)

	return n, nil
}

// LoadCargo loads the named cargo from the named warehouse. Concurrent
// calls for the same (warehouse, cargo, format) share one in-flight
// transport load and resolve together; failures are never cached.
func (n *Navigator) LoadCargo(ctx context.Context, warehouseName, cargoName string, opts *LoadOptions) (*LoadedCargo, error) {
	o := n.effectiveOptions(opts)

	ref, ok := n.refs[warehouseName]
	if !ok {
		return nil, &core.ConfigurationError{Field: "warehouse", Detail: "unknown warehouse " + warehouseName}
	}

	inv, err := n.inventory(ctx, ref)
	if err != nil {
		return nil, err
	}

	desc, ok := manifest.FindCargo(inv, cargoName)
	if !ok {
		return nil, &core.CargoNotFoundError{Warehouse: warehouseName, Cargo: cargoName}
	}

	moduleURL, err := manifest.EntryURL(ref, desc)
	if err != nil {
		return nil, &core.ValidationError{Subject: desc.Name, Detail: err.Error()}
	}

	f := n.negotiate(o, moduleURL)
	desc.Format = f
	n.checkVersion(ref, desc)

	key := cache.Key(warehouseName, desc.Name, string(f))

	if !o.NoCache {
		if lc, ok := n.lookupLoaded(key, desc); ok {
			return lc, nil
		}
	}

	v, err, _ := n.group.Do(key, func() (any, error) {
		return n.loadOnce(ctx, key, moduleURL, desc, o)
	})
	if err != nil {
		return nil, err
	}
	return v.(*LoadedCargo), nil
}

// loadOnce performs one bounded attempt sequence and records the result.
// Runs at most once concurrently per composite key.
func (n *Navigator) loadOnce(ctx context.Context, key, moduleURL string, desc *CargoDescriptor, o LoadOptions) (*LoadedCargo, error) {
	// A waiter may have queued behind the call that just populated the
	// registry.
	if !o.NoCache {
		if lc, ok := n.lookupLoaded(key, desc); ok {
			return lc, nil
		}
	}

	loadOpts := o
	loadOpts.Format = desc.Format

	attempt := func(ctx context.Context) (transport.Exports, error) {
		return retry.WithTimeout(ctx, o.Timeout, moduleURL, func(ctx context.Context) (transport.Exports, error) {
			return n.loader.Load(ctx, moduleURL, loadOpts)
		})
	}

	sequence := func(ctx context.Context) (transport.Exports, error) {
		return retry.Do(ctx, o.Retry, attempt)
	}

	// The whole attempt sequence is bounded by one overall deadline in
	// addition to the per-attempt one.
	exports, err := retry.WithTimeout(ctx, o.TotalTimeout, moduleURL, sequence)
	if err != nil {
		// Failures the loader never observed (an attempt abandoned at its
		// deadline, an open circuit) still honor the caller's fallback.
		// The placeholder surface is not cached or registered, so a later
		// call retries the real load.
		if o.Fallback != nil {
			n.logger.Warn("load failed, serving fallback", "url", moduleURL, "cargo", desc.Name, "error", err)
			return &LoadedCargo{Module: transport.Exports(o.Fallback()), Descriptor: desc}, nil
		}
		n.logger.Warn("load failed", "url", moduleURL, "cargo", desc.Name, "error", err)
		return nil, err
	}

	if err := verifyExports(exports, o.ExpectedExports, desc); err != nil {
		return nil, err
	}

	lc := &LoadedCargo{Module: exports, Descriptor: desc}

	if !o.NoCache {
		if err := n.cache.Set(key, map[string]any(exports), o.TTL); err != nil {
			n.logger.Debug("cache set degraded to no-op", "key", key, "error", err)
		}
	}
	n.mu.Lock()
	n.loaded[key] = lc
	n.mu.Unlock()

	return lc, nil
}

// lookupLoaded consults the in-memory registry first, then the cache
// subsystem. A cache failure degrades to a miss.
func (n *Navigator) lookupLoaded(key string, desc *CargoDescriptor) (*LoadedCargo, bool) {
	n.mu.RLock()
	lc, ok := n.loaded[key]
	n.mu.RUnlock()
	if ok {
		return lc, true
	}

	v, ok, err := n.cache.Get(key)
	if err != nil {
		n.logger.Debug("cache get degraded to miss", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	lc = &LoadedCargo{Module: Exports(m), Descriptor: desc}
	n.mu.Lock()
	n.loaded[key] = lc
	n.mu.Unlock()
	return lc, true
}

// GetInventory returns the warehouse's inventory, from cache or fetched.
func (n *Navigator) GetInventory(ctx context.Context, warehouseName string) (*Inventory, error) {
	ref, ok := n.refs[warehouseName]
	if !ok {
		return nil, &core.ConfigurationError{Field: "warehouse", Detail: "unknown warehouse " + warehouseName}
	}
	return n.inventory(ctx, ref)
}

// inventory resolves a warehouse's manifest with the centralized freshness
// policy: the resolver itself never caches.
func (n *Navigator) inventory(ctx context.Context, ref core.WarehouseReference) (*manifest.Inventory, error) {
	key := cache.ManifestKey(ref.Name)

	n.mu.RLock()
	inv, ok := n.inventories[ref.Name]
	n.mu.RUnlock()
	if ok {
		if fresh, err := n.cache.Has(key); err == nil && fresh {
			return inv, nil
		}
	}

	inv, err := n.resolver.FetchInventory(ctx, ref)
	if err != nil {
		return nil, err
	}

	// The manifest must identify the warehouse we asked for.
	if inv.Warehouse.Name != ref.Name && inv.Warehouse.Name != ref.Alias {
		return nil, &core.ValidationError{
			Subject: ref.Name,
			Detail:  "manifest identifies warehouse " + inv.Warehouse.Name,
		}
	}

	if err := n.cache.Set(key, inv.Checksum, n.cfg.Load.ManifestTTLDur); err != nil {
		n.logger.Debug("cache set degraded to no-op", "key", key, "error", err)
	}
	n.mu.Lock()
	n.inventories[ref.Name] = inv
	n.mu.Unlock()

	return inv, nil
}

const preloadConcurrency = 4

// Preload warms the registry for the named cargo (or the warehouse's whole
// inventory). Individual load errors are logged and skipped.
func (n *Navigator) Preload(ctx context.Context, warehouseName string, cargoNames ...string) error {
	inv, err := n.GetInventory(ctx, warehouseName)
	if err != nil {
		return err
	}

	names := cargoNames
	if len(names) == 0 {
		names = make([]string, 0, len(inv.Cargo))
		for name := range inv.Cargo {
			names = append(names, name)
		}
	}

	sem := make(chan struct{}, preloadConcurrency)
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(cargo string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if _, err := n.LoadCargo(ctx, warehouseName, cargo, nil); err != nil {
				n.logger.Debug("preload skipped", "warehouse", warehouseName, "cargo", cargo, "error", err)
			}
		}(name)
	}
	wg.Wait()
	return nil
}

// Cache exposes the cache subsystem.
func (n *Navigator) Cache() cache.Cache {
	return n.cache
}

// LoadedWarehouses lists warehouses whose inventories have been resolved.
func (n *Navigator) LoadedWarehouses() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.inventories))
	for name := range n.inventories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LoadedCargoMap returns a snapshot of the loaded-cargo registry keyed by
// composite cache key.
func (n *Navigator) LoadedCargoMap() map[string]*LoadedCargo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]*LoadedCargo, len(n.loaded))
	for k, v := range n.loaded {
		out[k] = v
	}
	return out
}

// Reset clears the cache and both registries. Already-executed module code
// is not un-executed.
func (n *Navigator) Reset() {
	n.mu.Lock()
	n.inventories = make(map[string]*manifest.Inventory)
	n.loaded = make(map[string]*LoadedCargo)
	n.mu.Unlock()

	if err := n.cache.Clear(); err != nil {
		n.logger.Debug("cache clear degraded to no-op", "error", err)
	}
	n.loader.ClearCache()
}

// effectiveOptions merges per-call options over configured defaults.
func (n *Navigator) effectiveOptions(opts *LoadOptions) LoadOptions {
	o := LoadOptions{
		Timeout: n.cfg.Load.TimeoutDur,
		TTL:     n.cfg.Load.CargoTTLDur,
		Retry:   n.cfg.RetryPolicy(),
	}
	if opts == nil {
		return o
	}
	merged := *opts
	if merged.Timeout == 0 {
		merged.Timeout = o.Timeout
	}
	if merged.TTL == 0 {
		merged.TTL = o.TTL
	}
	if merged.Retry.Attempts == 0 {
		merged.Retry = o.Retry
	}
	return merged
}

// negotiate picks the requested format: explicit override, URL shape,
// environment capability. Content inspection happens inside the loader
// once the payload is available, so for an ambiguous URL the executed
// format may differ; the descriptor and cache key record the request.
func (n *Navigator) negotiate(o LoadOptions, moduleURL string) format.Format {
	if o.Format != format.Unknown {
		return o.Format
	}
	if f := format.DetectURL(moduleURL); f != format.Unknown {
		return f
	}
	return format.EnvFallback(n.env)
}

// checkVersion warns when a descriptor version falls outside the accepted
// range. Mismatch is tolerated, not fatal.
func (n *Navigator) checkVersion(ref core.WarehouseReference, desc *CargoDescriptor) {
	if ref.Version == "" || desc.Version == "" {
		return
	}
	want := ref.Version
	for _, prefix := range []string{"^", "~", ">=", "v"} {
		want = strings.TrimPrefix(want, prefix)
	}
	if !versionSatisfies(desc.Version, want) {
		n.logger.Warn("cargo version outside accepted range",
			"warehouse", ref.Name, "cargo", desc.Name,
			"version", desc.Version, "accepted", ref.Version)
	}
}

// versionSatisfies implements the simple major-component rule: the
// descriptor version must share the accepted range's major component.
func versionSatisfies(have, want string) bool {
	return majorOf(have) == majorOf(want)
}

func majorOf(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			return v[:i]
		}
	}
	return v
}

// verifyExports checks the executed surface against the expected export
// names: the caller's expectation first, then the descriptor's declared
// exports.
func verifyExports(exports transport.Exports, expected []string, desc *CargoDescriptor) error {
	names := expected
	if len(names) == 0 {
		names = desc.Exports
	}
	for _, name := range names {
		if _, ok := exports[name]; !ok {
			return &core.ValidationError{
				Subject: desc.Name,
				Detail:  "executed module is missing declared export " + name,
			}
		}
	}
	return nil
}
