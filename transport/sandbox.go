package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dop251/goja"

	"github.com/shipfed/navigator/format"
)

// Sandbox is an isolated, revocable execution context for bundle text
// published without a module wrapper. The runtime is pre-populated with
// inert stand-ins for UI-environment globals so that incidental UI-only
// code paths inside the bundle do not crash evaluation. Nothing else is
// reachable from sandboxed code: no filesystem, no process, no network.
type Sandbox struct {
	engine  *engine
	revoked bool
}

var errSandboxRevoked = errors.New("sandbox revoked")

// NewSandbox builds a sandbox whose location-shaped global derives from
// bundleURL.
func NewSandbox(bundleURL string) *Sandbox {
	eng := newEngine()
	installDOMGlobals(eng.rt, bundleURL)
	return &Sandbox{engine: eng}
}

// Execute evaluates bundle source inside the sandbox and extracts the
// module-exports object. Errors whose message references UI-only APIs are
// swallowed best-effort, since the bundle's module surface is usually
// intact even when its DOM wiring failed; every other error re-raises.
func (s *Sandbox) Execute(name, src, globalName string) (Exports, error) {
	if s.revoked {
		return nil, errSandboxRevoked
	}

	exports, err := s.engine.Execute(name, src, format.CJS, globalName)
	if err != nil {
		if !isUIOnlyError(err) {
			return nil, err
		}
		// Partial evaluation: take whatever landed on module.exports,
		// or the declared global.
		if globalName != "" {
			if v := s.engine.rt.GlobalObject().Get(globalName); v != nil && !goja.IsUndefined(v) {
				if obj, ok := v.(*goja.Object); ok {
					return exportMap(obj), nil
				}
				return Exports{"default": v.Export()}, nil
			}
		}
		return nil, fmt.Errorf("bundle %s: evaluation produced no exports: %w", name, err)
	}
	return exports, nil
}

// Revoke tears the sandbox down; subsequent Execute calls fail and any
// still-running script is interrupted.
func (s *Sandbox) Revoke() {
	if s.revoked {
		return
	}
	s.revoked = true
	s.engine.rt.Interrupt(errSandboxRevoked)
}

// isUIOnlyError classifies evaluation failures caused by bundles touching
// UI-only APIs the stand-ins do not model.
func isUIOnlyError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"addeventlistener",
		"removeeventlistener",
		"document",
		"window",
		"matchmedia",
		"queryselector",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// locationObject builds a location-shaped stand-in from a URL.
func locationObject(rt *goja.Runtime, rawURL string) *goja.Object {
	loc := rt.NewObject()
	if rawURL == "" {
		_ = loc.Set("href", "about:blank")
		return loc
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		_ = loc.Set("href", rawURL)
		return loc
	}
	_ = loc.Set("href", u.String())
	_ = loc.Set("protocol", u.Scheme+":")
	_ = loc.Set("host", u.Host)
	_ = loc.Set("hostname", u.Hostname())
	_ = loc.Set("port", u.Port())
	_ = loc.Set("pathname", u.Path)
	_ = loc.Set("search", u.RawQuery)
	_ = loc.Set("hash", u.Fragment)
	_ = loc.Set("origin", u.Scheme+"://"+u.Host)
	return loc
}

// documentObject builds a document-shaped stand-in with no-op DOM methods.
func documentObject(rt *goja.Runtime) *goja.Object {
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	null := func(call goja.FunctionCall) goja.Value { return goja.Null() }

	element := func(call goja.FunctionCall) goja.Value {
		el := rt.NewObject()
		_ = el.Set("setAttribute", noop)
		_ = el.Set("appendChild", noop)
		_ = el.Set("removeChild", noop)
		_ = el.Set("addEventListener", noop)
		_ = el.Set("style", rt.NewObject())
		return el
	}

	doc := rt.NewObject()
	_ = doc.Set("createElement", element)
	_ = doc.Set("createTextNode", element)
	_ = doc.Set("getElementById", null)
	_ = doc.Set("querySelector", null)
	_ = doc.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue([]any{})
	})
	_ = doc.Set("addEventListener", noop)
	_ = doc.Set("removeEventListener", noop)

	head := element(goja.FunctionCall{})
	body := element(goja.FunctionCall{})
	_ = doc.Set("head", head)
	_ = doc.Set("body", body)
	_ = doc.Set("documentElement", element(goja.FunctionCall{}))
	return doc
}
