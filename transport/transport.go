// Package transport fetches and executes module references and returns
// their exported surface. Two strategies sit behind one interface: a
// DOM-emulating loader for UI-like environments and a headless loader that
// falls back to a synchronous require-style wrapper and, for remote
// global-object bundles, an isolated sandbox.
package transport

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/format"
	"github.com/shipfed/navigator/internal/core"
)

// Exports is the executed module's export surface.
type Exports map[string]any

// Loader fetches and evaluates a module reference.
type Loader interface {
	Load(ctx context.Context, url string, opts core.LoadOptions) (Exports, error)
	IsLoaded(url string) bool
	Preload(ctx context.Context, url string) error
	ClearCache()
	SupportedFormats() []format.Format
}

// New selects the loader strategy for the environment, once per process.
// The probe is explicit: callers pass the environment in rather than the
// loaders sniffing globals mid-call.
func New(env format.Environment, c *client.Client, logger *log.Logger) Loader {
	if c == nil {
		c = client.DefaultClient()
	}
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "transport"})
	}
	if env.DOM {
		return newDOMLoader(env, c, logger)
	}
	return newServerLoader(env, c, logger)
}

// loadCache is the per-loader completed-load cache, keyed by URL. It only
// short-circuits IsLoaded and repeat loads within one loader instance; the
// orchestrator's cache stays authoritative for cross-call reuse and TTL.
type loadCache struct {
	mu   sync.RWMutex
	done map[string]Exports
}

func newLoadCache() *loadCache {
	return &loadCache{done: make(map[string]Exports)}
}

func (lc *loadCache) get(url string) (Exports, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	e, ok := lc.done[url]
	return e, ok
}

func (lc *loadCache) put(url string, e Exports) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.done[url] = e
}

func (lc *loadCache) has(url string) bool {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	_, ok := lc.done[url]
	return ok
}

func (lc *loadCache) clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.done = make(map[string]Exports)
}

// mapFailure applies the loader failure contract: deadline exceeded becomes
// LoadTimeoutError, everything else NetworkError; a supplied fallback
// producer is invoked instead of raising.
func mapFailure(url string, opts core.LoadOptions, err error) (Exports, error) {
	if opts.Fallback != nil {
		return Exports(opts.Fallback()), nil
	}
	var te *core.LoadTimeoutError
	if errors.As(err, &te) {
		return nil, err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, &core.LoadTimeoutError{URL: url, Duration: opts.Timeout}
	}
	return nil, &core.NetworkError{URL: url, Cause: err}
}

func isJSONURL(url string) bool {
	u := url
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(strings.ToLower(u), ".json")
}

// negotiate picks the execution format for a fetched payload when the
// caller supplied no override: URL shape first, then payload inspection,
// then environment capability.
func negotiate(url, src string, opts core.LoadOptions, env format.Environment) format.Format {
	if opts.Format != format.Unknown {
		return opts.Format
	}
	if f := format.DetectURL(url); f != format.Unknown {
		return f
	}
	if f := format.DetectContent(src); f != format.Unknown {
		return f
	}
	return format.EnvFallback(env)
}
