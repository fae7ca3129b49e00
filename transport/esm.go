package transport

import (
	"fmt"
	"regexp"
	"strings"
)

// lowerESM rewrites top-level import/export syntax into calls against the
// __shipfed_import__ / __shipfed_exports__ shims so that a script engine
// can execute module source. This is a syntactic lowering of the common
// publish shapes, not a full ES module implementation: declarations stay
// live-bound within the module body only.
//
// The result is wrapped in an IIFE so repeated loads in one runtime do not
// collide on top-level const declarations.

var (
	importDefaultRe   = regexp.MustCompile(`^import\s+([A-Za-z_$][\w$]*)\s+from\s+['"]([^'"]+)['"];?\s*$`)
	importNamespaceRe = regexp.MustCompile(`^import\s+\*\s+as\s+([A-Za-z_$][\w$]*)\s+from\s+['"]([^'"]+)['"];?\s*$`)
	importNamedRe     = regexp.MustCompile(`^import\s+\{([^}]*)\}\s+from\s+['"]([^'"]+)['"];?\s*$`)
	importMixedRe     = regexp.MustCompile(`^import\s+([A-Za-z_$][\w$]*)\s*,\s*\{([^}]*)\}\s+from\s+['"]([^'"]+)['"];?\s*$`)
	importBareRe      = regexp.MustCompile(`^import\s+['"]([^'"]+)['"];?\s*$`)

	exportDeclRe    = regexp.MustCompile(`^export\s+(const|let|var)\s+([A-Za-z_$][\w$]*)`)
	exportFnClassRe = regexp.MustCompile(`^export\s+(async\s+function|function|class)\s+([A-Za-z_$][\w$]*)`)
	exportDefaultRe = regexp.MustCompile(`^export\s+default\s+`)
	exportListRe    = regexp.MustCompile(`^export\s+\{([^}]*)\}(?:\s+from\s+['"]([^'"]+)['"])?;?\s*$`)
)

func lowerESM(src string) (string, error) {
	var out strings.Builder
	var tail []string

	out.WriteString("(function() {\n")

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case importNamespaceRe.MatchString(trimmed):
			m := importNamespaceRe.FindStringSubmatch(trimmed)
			fmt.Fprintf(&out, "const %s = __shipfed_import__(%q, '*');\n", m[1], m[2])

		case importMixedRe.MatchString(trimmed):
			m := importMixedRe.FindStringSubmatch(trimmed)
			fmt.Fprintf(&out, "const %s = __shipfed_import__(%q, 'default');\n", m[1], m[3])
			fmt.Fprintf(&out, "const {%s} = __shipfed_import__(%q, '*');\n", destructure(m[2]), m[3])

		case importNamedRe.MatchString(trimmed):
			m := importNamedRe.FindStringSubmatch(trimmed)
			fmt.Fprintf(&out, "const {%s} = __shipfed_import__(%q, '*');\n", destructure(m[1]), m[2])

		case importDefaultRe.MatchString(trimmed):
			m := importDefaultRe.FindStringSubmatch(trimmed)
			fmt.Fprintf(&out, "const %s = __shipfed_import__(%q, 'default');\n", m[1], m[2])

		case importBareRe.MatchString(trimmed):
			m := importBareRe.FindStringSubmatch(trimmed)
			fmt.Fprintf(&out, "__shipfed_import__(%q, '*');\n", m[1])

		case exportListRe.MatchString(trimmed):
			m := exportListRe.FindStringSubmatch(trimmed)
			if m[2] != "" {
				// re-export: export {a, b as c} from 'mod'
				for _, pair := range exportPairs(m[1]) {
					tail = append(tail, fmt.Sprintf("__shipfed_exports__.%s = __shipfed_import__(%q, '*').%s;", pair[1], m[2], pair[0]))
				}
			} else {
				for _, pair := range exportPairs(m[1]) {
					tail = append(tail, fmt.Sprintf("__shipfed_exports__.%s = %s;", pair[1], pair[0]))
				}
			}

		case exportDefaultRe.MatchString(trimmed):
			rest := exportDefaultRe.ReplaceAllString(trimmed, "")
			fmt.Fprintf(&out, "__shipfed_exports__.default = %s\n", rest)

		case exportDeclRe.MatchString(trimmed):
			m := exportDeclRe.FindStringSubmatch(trimmed)
			out.WriteString(strings.TrimPrefix(strings.TrimSpace(line), "export ") + "\n")
			tail = append(tail, fmt.Sprintf("__shipfed_exports__.%s = %s;", m[2], m[2]))

		case exportFnClassRe.MatchString(trimmed):
			m := exportFnClassRe.FindStringSubmatch(trimmed)
			out.WriteString(strings.TrimPrefix(strings.TrimSpace(line), "export ") + "\n")
			tail = append(tail, fmt.Sprintf("__shipfed_exports__.%s = %s;", m[2], m[2]))

		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "export "):
			return "", fmt.Errorf("unsupported module syntax: %q", trimmed)

		default:
			out.WriteString(line + "\n")
		}
	}

	for _, t := range tail {
		out.WriteString(t + "\n")
	}
	out.WriteString("})();")
	return out.String(), nil
}

// destructure converts an import binding list ("a, b as c") into a JS
// destructuring pattern ("a, b: c").
func destructure(list string) string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i := strings.Index(p, " as "); i >= 0 {
			out = append(out, strings.TrimSpace(p[:i])+": "+strings.TrimSpace(p[i+4:]))
		} else {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// exportPairs parses an export binding list ("a, b as c") into
// (local, exported) name pairs.
func exportPairs(list string) [][2]string {
	parts := strings.Split(list, ",")
	out := make([][2]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i := strings.Index(p, " as "); i >= 0 {
			out = append(out, [2]string{strings.TrimSpace(p[:i]), strings.TrimSpace(p[i+4:])})
		} else {
			out = append(out, [2]string{p, p})
		}
	}
	return out
}
