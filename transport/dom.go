package transport

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"

	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/format"
	"github.com/shipfed/navigator/internal/core"
)

// domLoader executes modules in a persistent runtime with UI-document-like
// globals installed up front, the way a page-embedded host would.
type domLoader struct {
	env    format.Environment
	client *client.Client
	logger *log.Logger

	mu     sync.Mutex // goja runtimes are single-threaded
	engine *engine

	cache *loadCache
}

func newDOMLoader(env format.Environment, c *client.Client, logger *log.Logger) *domLoader {
	eng := newEngine()
	installDOMGlobals(eng.rt, "")
	return &domLoader{
		env:    env,
		client: c,
		logger: logger,
		engine: eng,
		cache:  newLoadCache(),
	}
}

func (l *domLoader) Load(ctx context.Context, url string, opts core.LoadOptions) (Exports, error) {
	if e, ok := l.cache.get(url); ok {
		return e, nil
	}

	// JSON payloads take a plain network fetch, no evaluation.
	if isJSONURL(url) {
		var payload map[string]any
		if err := l.client.GetJSON(ctx, url, &payload); err != nil {
			return mapFailure(url, opts, err)
		}
		e := Exports(payload)
		l.cache.put(url, e)
		return e, nil
	}

	src, err := l.client.GetText(ctx, url)
	if err != nil {
		return mapFailure(url, opts, err)
	}
	if err := ctx.Err(); err != nil {
		return mapFailure(url, opts, err)
	}

	f := negotiate(url, src, opts, l.env)
	l.logger.Debug("executing module", "url", url, "format", f)

	l.mu.Lock()
	exports, err := l.engine.Execute(url, src, f, opts.GlobalName)
	if err == nil && ctx.Err() == nil {
		l.engine.register(url, exports)
	}
	l.mu.Unlock()
	if err != nil {
		return mapFailure(url, opts, err)
	}
	// An attempt abandoned at its deadline is discarded, never cached.
	if cerr := ctx.Err(); cerr != nil {
		return mapFailure(url, opts, cerr)
	}

	l.cache.put(url, exports)
	return exports, nil
}

func (l *domLoader) IsLoaded(url string) bool {
	return l.cache.has(url)
}

func (l *domLoader) Preload(ctx context.Context, url string) error {
	_, err := l.Load(ctx, url, core.LoadOptions{})
	return err
}

func (l *domLoader) ClearCache() {
	l.cache.clear()
}

func (l *domLoader) SupportedFormats() []format.Format {
	return []format.Format{format.ESM, format.UMD, format.AMD, format.IIFE, format.System}
}

// installDOMGlobals populates a runtime with inert stand-ins for the
// UI-environment globals bundles commonly touch: an event-target-shaped
// window/self, a location derived from pageURL, and a document whose DOM
// methods are no-ops.
func installDOMGlobals(rt *goja.Runtime, pageURL string) {
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }

	global := rt.GlobalObject()
	_ = global.Set("window", global)
	_ = global.Set("self", global)
	_ = global.Set("global", global)
	_ = global.Set("addEventListener", noop)
	_ = global.Set("removeEventListener", noop)
	_ = global.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(true)
	})

	_ = global.Set("location", locationObject(rt, pageURL))
	_ = global.Set("document", documentObject(rt))

	navigator := rt.NewObject()
	_ = navigator.Set("userAgent", "shipfed-navigator")
	_ = global.Set("navigator", navigator)
}
