// Package format decides which wire module format to use for a cargo
// reference: from explicit configuration, URL shape, or payload
// inspection, falling back to environment capability.
package format

import (
	"regexp"
	"strings"
)

// Format is the wire/execution convention of a published module.
type Format string

const (
	Unknown Format = ""
	ESM     Format = "esm"
	UMD     Format = "umd"
	CJS     Format = "cjs"
	AMD     Format = "amd"
	IIFE    Format = "iife"
	System  Format = "system"
)

// Priority is the order in which formats are preferred when several are
// viable.
var Priority = []Format{ESM, UMD, CJS, AMD, IIFE, System}

// Environment describes the capabilities of the execution environment the
// host runs in. Probed once at the composition root, not per call.
type Environment struct {
	ESM bool // native module execution available
	DOM bool // UI-document-like globals available
}

// DefaultEnvironment is an ESM-capable headless environment.
func DefaultEnvironment() Environment {
	return Environment{ESM: true}
}

var (
	// Top-level import/export, not inside a string or comment (best effort).
	esmRe = regexp.MustCompile(`(?m)^\s*(import\s+[\w{*'"]|import\s*\(|export\s+(default|const|let|var|function|class|\{))`)
	// Assignment to module.exports / exports.x, or a synchronous require call.
	cjsRe = regexp.MustCompile(`module\.exports\s*=|exports\.\w+\s*=|require\s*\(`)
	// Bare define(...) call.
	amdRe = regexp.MustCompile(`\bdefine\s*\(`)
	// Self-invoking function expression at the top of the payload.
	iifeRe = regexp.MustCompile(`^\s*[!;]?\s*\(\s*function|^\s*\(\s*\(\s*\)\s*=>`)
)

// Detect classifies a module reference. A single-line argument containing a
// path separator or URL scheme is treated as a URL and matched on filename
// conventions first; anything else is inspected as payload content.
func Detect(urlOrContent string) Format {
	if looksLikeURL(urlOrContent) {
		if f := DetectURL(urlOrContent); f != Unknown {
			return f
		}
		return Unknown
	}
	return DetectContent(urlOrContent)
}

func looksLikeURL(s string) bool {
	if strings.ContainsAny(s, "\n\r") {
		return false
	}
	return strings.Contains(s, "://") || strings.Contains(s, "/") || strings.Contains(s, ".")
}

// DetectURL matches filename conventions. Returns Unknown when the URL
// shape is ambiguous, in which case callers fall back to content
// inspection of the fetched payload.
func DetectURL(url string) Format {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".mjs"), strings.Contains(lower, ".esm."), strings.Contains(lower, "-esm."):
		return ESM
	case strings.Contains(lower, ".umd."), strings.Contains(lower, "-umd."):
		return UMD
	case strings.HasSuffix(lower, ".cjs"), strings.Contains(lower, ".cjs."):
		return CJS
	case strings.Contains(lower, ".amd."), strings.Contains(lower, "-amd."):
		return AMD
	case strings.Contains(lower, ".iife."), strings.Contains(lower, "-iife."):
		return IIFE
	case strings.Contains(lower, ".system."), strings.Contains(lower, ".systemjs."):
		return System
	}
	return Unknown
}

// DetectContent inspects payload source. The UMD guard is checked before
// AMD because AMD's defining construct is a subset of UMD's.
func DetectContent(src string) Format {
	switch {
	case esmRe.MatchString(src):
		return ESM
	case isUMD(src):
		return UMD
	case cjsRe.MatchString(src):
		return CJS
	case amdRe.MatchString(src):
		return AMD
	case iifeRe.MatchString(src):
		return IIFE
	}
	return Unknown
}

// isUMD looks for the three-way wrapper guard that probes for an
// exports-shaped object, a define function, and the define.amd marker.
func isUMD(src string) bool {
	return strings.Contains(src, "typeof exports") &&
		strings.Contains(src, "typeof define") &&
		strings.Contains(src, "define.amd")
}

// IsSupported reports whether the environment can execute the format.
func IsSupported(f Format, env Environment) bool {
	switch f {
	case ESM:
		return env.ESM
	case UMD:
		// Executable everywhere: as a global-object bundle with DOM
		// globals present, or through the headless sandbox path.
		return true
	case CJS:
		return !env.DOM
	case AMD, IIFE, System:
		return env.DOM
	case Unknown:
		return false
	}
	return false
}

// PickBest walks the priority order and returns the first candidate that is
// both offered and supported. If none match it returns the first offered
// candidate rather than failing; surfacing an unsupported-format error is
// the caller's job.
func PickBest(candidates []Format, env Environment) Format {
	if len(candidates) == 0 {
		return EnvFallback(env)
	}
	for _, p := range Priority {
		for _, c := range candidates {
			if c == p && IsSupported(c, env) {
				return c
			}
		}
	}
	return candidates[0]
}

// EnvFallback returns the format to assume when nothing else decides:
// native modules when available, a global-object format in UI-like
// environments, a synchronous-require format headless.
func EnvFallback(env Environment) Format {
	switch {
	case env.ESM:
		return ESM
	case env.DOM:
		return UMD
	default:
		return CJS
	}
}
