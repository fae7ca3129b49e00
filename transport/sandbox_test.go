package transport

import (
	"strings"
	"testing"
)

func TestSandboxExecute(t *testing.T) {
	src := `
document.addEventListener("load", function () {});
window.addEventListener("resize", function () {});
module.exports = { mount: function () { return "mounted"; }, ready: true };
`
	sb := NewSandbox("https://cdn.example.com/shop/widget.js")
	defer sb.Revoke()

	exports, err := sb.Execute("widget.js", src, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exports["ready"] != true {
		t.Errorf("ready = %v", exports["ready"])
	}
	if _, ok := exports["mount"]; !ok {
		t.Error("missing mount export")
	}
}

func TestSandboxLocation(t *testing.T) {
	sb := NewSandbox("https://cdn.example.com:8443/shop/widget.js?v=2")
	defer sb.Revoke()

	exports, err := sb.Execute("widget.js", `
module.exports = {
	host: location.host,
	pathname: location.pathname,
	origin: location.origin
};
`, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exports["host"] != "cdn.example.com:8443" {
		t.Errorf("host = %v", exports["host"])
	}
	if exports["pathname"] != "/shop/widget.js" {
		t.Errorf("pathname = %v", exports["pathname"])
	}
	if exports["origin"] != "https://cdn.example.com:8443" {
		t.Errorf("origin = %v", exports["origin"])
	}
}

func TestSandboxPartialEvaluationOnUIOnlyFailure(t *testing.T) {
	// The bundle publishes its surface before touching an API the
	// stand-ins do not model; the surface must survive.
	src := `
window.ShopWidget = { render: function () { return "ok"; } };
window.matchMedia("(min-width: 600px)");
`
	sb := NewSandbox("")
	defer sb.Revoke()

	exports, err := sb.Execute("widget.js", src, "ShopWidget")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := exports["render"]; !ok {
		t.Errorf("render missing from partial surface: %v", exports)
	}
}

func TestSandboxNonUIErrorsPropagate(t *testing.T) {
	sb := NewSandbox("")
	defer sb.Revoke()

	_, err := sb.Execute("broken.js", `throw new Error("corrupted bundle");`, "")
	if err == nil || !strings.Contains(err.Error(), "corrupted bundle") {
		t.Fatalf("err = %v, want the bundle's own error", err)
	}
}

func TestSandboxRevoke(t *testing.T) {
	sb := NewSandbox("")
	sb.Revoke()

	if _, err := sb.Execute("late.js", `module.exports = {};`, ""); err == nil {
		t.Fatal("Execute after Revoke succeeded")
	}

	// Revoke is idempotent.
	sb.Revoke()
}
