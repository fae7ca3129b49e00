package transport

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/format"
	"github.com/shipfed/navigator/internal/core"
)

// serverLoader executes modules in headless environments. ESM and CJS
// evaluate in a fresh runtime per module; remote global-object bundles
// (UMD/IIFE/AMD/System) need the sandbox path, since a script engine with
// no UI globals cannot run them directly.
type serverLoader struct {
	env    format.Environment
	client *client.Client
	logger *log.Logger

	cache *loadCache
}

func newServerLoader(env format.Environment, c *client.Client, logger *log.Logger) *serverLoader {
	return &serverLoader{
		env:    env,
		client: c,
		logger: logger,
		cache:  newLoadCache(),
	}
}

func (l *serverLoader) Load(ctx context.Context, url string, opts core.LoadOptions) (Exports, error) {
	if e, ok := l.cache.get(url); ok {
		return e, nil
	}

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

	var exports Exports
	switch f {
	case format.ESM:
		exports, err = l.execDirect(url, src, format.ESM, opts)
	case format.CJS:
		exports, err = l.execDirect(url, src, format.CJS, opts)
	default:
		// Global-object bundle fetched over the network: isolated,
		// revocable sandbox rather than evaluation in our own context.
		l.logger.Debug("sandboxing bundle", "url", url, "format", f)
		exports, err = l.execSandboxed(url, src, opts)
	}
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

// execDirect prefers the module path and falls back to a synchronous
// require-style evaluation when module lowering fails.
func (l *serverLoader) execDirect(url, src string, f format.Format, opts core.LoadOptions) (Exports, error) {
	eng := newEngine()
	exports, err := eng.Execute(url, src, f, opts.GlobalName)
	if err == nil || f != format.ESM {
		return exports, err
	}
	l.logger.Debug("module execution failed, retrying as require-style", "url", url, "error", err)
	return newEngine().Execute(url, src, format.CJS, opts.GlobalName)
}

func (l *serverLoader) execSandboxed(url, src string, opts core.LoadOptions) (Exports, error) {
	sb := NewSandbox(url)
	defer sb.Revoke()
	return sb.Execute(url, src, opts.GlobalName)
}

func (l *serverLoader) IsLoaded(url string) bool {
	return l.cache.has(url)
}

func (l *serverLoader) Preload(ctx context.Context, url string) error {
	_, err := l.Load(ctx, url, core.LoadOptions{})
	return err
}

func (l *serverLoader) ClearCache() {
	l.cache.clear()
}

func (l *serverLoader) SupportedFormats() []format.Format {
	return []format.Format{format.ESM, format.CJS, format.UMD}
}
