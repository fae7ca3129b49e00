package transport

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/shipfed/navigator/format"
)

// engine evaluates module source in a goja runtime. One engine wraps one
// runtime; goja runtimes are not goroutine-safe, so callers serialize
// access (the DOM loader holds a mutex, the headless loader uses a fresh
// engine per load).
type engine struct {
	rt *goja.Runtime

	// modules loaded so far in this runtime, by specifier, for the
	// synchronous require / import shims.
	modules map[string]Exports
}

func newEngine() *engine {
	return &engine{
		rt:      goja.New(),
		modules: make(map[string]Exports),
	}
}

// register makes an already-loaded module available to require/import
// shims under the given specifier.
func (e *engine) register(specifier string, exports Exports) {
	e.modules[specifier] = exports
}

func (e *engine) resolve(specifier string) (Exports, bool) {
	m, ok := e.modules[specifier]
	return m, ok
}

// requireFunc is the synchronous module-require shim handed to CJS/UMD/AMD
// code. Unresolvable specifiers throw inside the script.
func (e *engine) requireFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if m, ok := e.resolve(name); ok {
			return e.rt.ToValue(map[string]any(m))
		}
		panic(e.rt.NewGoError(fmt.Errorf("module %q is not available in this context", name)))
	}
}

// importFunc backs the lowered ESM import shim. binding "*" returns the
// namespace, "default" prefers the default export.
func (e *engine) importFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		binding := call.Argument(1).String()
		m, ok := e.resolve(name)
		if !ok {
			panic(e.rt.NewGoError(fmt.Errorf("import %q cannot be resolved", name)))
		}
		if binding == "default" {
			if d, ok := m["default"]; ok {
				return e.rt.ToValue(d)
			}
		}
		return e.rt.ToValue(map[string]any(m))
	}
}

// Execute evaluates src as the given format and returns its export surface.
func (e *engine) Execute(name, src string, f format.Format, globalName string) (Exports, error) {
	switch f {
	case format.ESM:
		return e.execESM(name, src)
	case format.CJS, format.UMD:
		return e.execCJS(name, src)
	case format.AMD:
		return e.execAMD(name, src)
	case format.IIFE:
		return e.execIIFE(name, src, globalName)
	case format.System:
		return e.execSystem(name, src)
	case format.Unknown:
		return nil, fmt.Errorf("cannot execute module %s: unknown format", name)
	}
	return nil, fmt.Errorf("cannot execute module %s: unsupported format %q", name, f)
}

// execESM lowers top-level import/export syntax to shim calls, then runs
// the result as a script. goja executes scripts, not ES module records.
func (e *engine) execESM(name, src string) (Exports, error) {
	lowered, err := lowerESM(src)
	if err != nil {
		return nil, fmt.Errorf("lowering module %s: %w", name, err)
	}

	exportsObj := e.rt.NewObject()
	if err := e.rt.Set("__shipfed_exports__", exportsObj); err != nil {
		return nil, err
	}
	if err := e.rt.Set("__shipfed_import__", e.importFunc()); err != nil {
		return nil, err
	}
	if _, err := e.rt.RunScript(name, lowered); err != nil {
		return nil, fmt.Errorf("evaluating module %s: %w", name, err)
	}
	return exportMap(exportsObj), nil
}

// execCJS wraps src in a function scope with module/exports/require bound.
// UMD bundles take the same path: their wrapper detects the exports object
// and uses the CJS branch.
func (e *engine) execCJS(name, src string) (Exports, error) {
	moduleObj := e.rt.NewObject()
	exportsObj := e.rt.NewObject()
	if err := moduleObj.Set("exports", exportsObj); err != nil {
		return nil, err
	}
	if err := e.rt.Set("__shipfed_module__", moduleObj); err != nil {
		return nil, err
	}
	if err := e.rt.Set("__shipfed_require__", e.requireFunc()); err != nil {
		return nil, err
	}

	wrapped := "(function(module, exports, require) {\n" + src +
		"\n})(__shipfed_module__, __shipfed_module__.exports, __shipfed_require__);"
	if _, err := e.rt.RunScript(name, wrapped); err != nil {
		return nil, fmt.Errorf("evaluating module %s: %w", name, err)
	}

	return surfaceOf(moduleObj.Get("exports")), nil
}

// surfaceOf converts an exports value to the Go surface. A callable export
// (module.exports = function) keeps the function under "default" alongside
// any properties hung off it.
func surfaceOf(v goja.Value) Exports {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return Exports{}
	}
	if obj, ok := v.(*goja.Object); ok {
		out := exportMap(obj)
		if _, callable := goja.AssertFunction(v); callable {
			out["default"] = v.Export()
		}
		return out
	}
	return Exports{"default": v.Export()}
}

// execAMD installs a one-shot define() implementation, runs the bundle and
// returns what the factory produced.
func (e *engine) execAMD(name, src string) (Exports, error) {
	var result goja.Value
	exportsObj := e.rt.NewObject()
	moduleObj := e.rt.NewObject()
	if err := moduleObj.Set("exports", exportsObj); err != nil {
		return nil, err
	}

	define := func(call goja.FunctionCall) goja.Value {
		// define(id?, deps?, factory)
		args := call.Arguments
		var deps []string
		var factory goja.Value
		for _, a := range args {
			switch v := a.Export().(type) {
			case string:
				// module id, ignored
			case []any:
				deps = deps[:0]
				for _, d := range v {
					if s, ok := d.(string); ok {
						deps = append(deps, s)
					}
				}
			default:
				factory = a
			}
		}
		if factory == nil {
			return goja.Undefined()
		}

		fn, ok := goja.AssertFunction(factory)
		if !ok {
			// define(obj) form: the object is the module.
			result = factory
			return goja.Undefined()
		}

		if len(deps) == 0 {
			deps = []string{"require", "exports", "module"}
		}
		callArgs := make([]goja.Value, 0, len(deps))
		for _, d := range deps {
			switch d {
			case "require":
				callArgs = append(callArgs, e.rt.ToValue(e.requireFunc()))
			case "exports":
				callArgs = append(callArgs, exportsObj)
			case "module":
				callArgs = append(callArgs, moduleObj)
			default:
				m, ok := e.resolve(d)
				if !ok {
					panic(e.rt.NewGoError(fmt.Errorf("amd dependency %q is not available", d)))
				}
				callArgs = append(callArgs, e.rt.ToValue(map[string]any(m)))
			}
		}
		ret, err := fn(goja.Undefined(), callArgs...)
		if err != nil {
			panic(e.rt.NewGoError(err))
		}
		if ret != nil && !goja.IsUndefined(ret) {
			result = ret
		}
		return goja.Undefined()
	}

	defineVal := e.rt.ToValue(define)
	if defineObj, ok := defineVal.(*goja.Object); ok {
		_ = defineObj.Set("amd", e.rt.NewObject())
	}
	if err := e.rt.Set("define", defineVal); err != nil {
		return nil, err
	}
	if _, err := e.rt.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("evaluating module %s: %w", name, err)
	}

	if result != nil {
		return surfaceOf(result), nil
	}
	return exportMap(exportsObj), nil
}

// execIIFE runs a self-invoking bundle and extracts the global it
// assigned: the configured global name when known, otherwise the single
// global the evaluation added.
func (e *engine) execIIFE(name, src, globalName string) (Exports, error) {
	before := make(map[string]struct{})
	for _, k := range e.rt.GlobalObject().Keys() {
		before[k] = struct{}{}
	}

	if _, err := e.rt.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("evaluating module %s: %w", name, err)
	}

	global := e.rt.GlobalObject()
	if globalName != "" {
		v := global.Get(globalName)
		if v == nil || goja.IsUndefined(v) {
			return nil, fmt.Errorf("module %s did not assign global %q", name, globalName)
		}
		return surfaceOf(v), nil
	}

	var added []string
	for _, k := range global.Keys() {
		if _, ok := before[k]; !ok {
			added = append(added, k)
		}
	}
	if len(added) != 1 {
		return nil, fmt.Errorf("module %s: cannot determine iife global (added %d globals)", name, len(added))
	}
	return surfaceOf(global.Get(added[0])), nil
}

// execSystem installs a minimal System.register and collects what the
// declared module exported.
func (e *engine) execSystem(name, src string) (Exports, error) {
	collected := e.rt.NewObject()

	register := func(call goja.FunctionCall) goja.Value {
		// System.register(deps?, declare)
		declare := call.Argument(len(call.Arguments) - 1)
		fn, ok := goja.AssertFunction(declare)
		if !ok {
			panic(e.rt.NewGoError(fmt.Errorf("System.register: declare is not a function")))
		}

		exportFn := e.rt.ToValue(func(call goja.FunctionCall) goja.Value {
			first := call.Argument(0)
			if obj, ok := first.(*goja.Object); ok && len(call.Arguments) == 1 {
				for _, k := range obj.Keys() {
					_ = collected.Set(k, obj.Get(k))
				}
				return first
			}
			_ = collected.Set(first.String(), call.Argument(1))
			return call.Argument(1)
		})

		decl, err := fn(goja.Undefined(), exportFn, e.rt.NewObject())
		if err != nil {
			panic(e.rt.NewGoError(err))
		}
		declObj, ok := decl.(*goja.Object)
		if !ok {
			return goja.Undefined()
		}
		if execute, ok := goja.AssertFunction(declObj.Get("execute")); ok {
			if _, err := execute(goja.Undefined()); err != nil {
				panic(e.rt.NewGoError(err))
			}
		}
		return goja.Undefined()
	}

	system := e.rt.NewObject()
	if err := system.Set("register", register); err != nil {
		return nil, err
	}
	if err := e.rt.Set("System", system); err != nil {
		return nil, err
	}
	if _, err := e.rt.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("evaluating module %s: %w", name, err)
	}
	return exportMap(collected), nil
}

// exportMap flattens a JS object's own keys into the Go export surface.
func exportMap(obj *goja.Object) Exports {
	out := make(Exports)
	for _, k := range obj.Keys() {
		v := obj.Get(k)
		if v == nil {
			continue
		}
		out[k] = v.Export()
	}
	return out
}
