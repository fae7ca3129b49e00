package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/internal/core"
)

const validManifest = `{
	"warehouse": {"name": "shop", "version": "1.2.0", "url": "https://cdn.example.com/shop"},
	"cargo": {
		"./Button": {"name": "Button", "version": "1.2.0", "entry": "./Button.mjs", "exports": ["Button"]},
		"Cart": {"name": "Cart", "version": "1.2.0", "entry": "./cart/index.js"}
	},
	"dependencies": {"react": "^18.0.0"},
	"timestamp": 1721900000,
	"checksum": "sha256-abc123"
}`

func manifestServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+client.ManifestFilename {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testResolver() *Resolver {
	return NewResolver(client.NewClient(client.WithMaxRetries(0), client.WithBaseDelay(time.Millisecond)))
}

func TestFetchInventory(t *testing.T) {
	srv := manifestServer(t, validManifest)

	inv, err := testResolver().FetchInventory(context.Background(), core.WarehouseReference{Name: "shop", URL: srv.URL})
	if err != nil {
		t.Fatalf("FetchInventory: %v", err)
	}

	if inv.Warehouse.Name != "shop" {
		t.Errorf("warehouse name = %q", inv.Warehouse.Name)
	}
	if inv.Checksum != "sha256-abc123" {
		t.Errorf("checksum = %q", inv.Checksum)
	}
	if len(inv.Cargo) != 2 {
		t.Errorf("cargo count = %d, want 2", len(inv.Cargo))
	}
	if d := inv.Cargo["./Button"]; d.Entry != "./Button.mjs" {
		t.Errorf("Button entry = %q", d.Entry)
	}
}

func TestFetchInventoryInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing warehouse name", `{"cargo": {}, "checksum": "x"}`},
		{"missing cargo mapping", `{"warehouse": {"name": "shop"}, "checksum": "x"}`},
		{"missing checksum", `{"warehouse": {"name": "shop"}, "cargo": {}}`},
		{"malformed json", `{"warehouse":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := manifestServer(t, tt.body)

			_, err := testResolver().FetchInventory(context.Background(), core.WarehouseReference{Name: "shop", URL: srv.URL})
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if !errors.Is(err, core.ErrManifestInvalid) {
				t.Errorf("err does not unwrap to ErrManifestInvalid")
			}
		})
	}
}

func TestFetchInventoryNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testResolver().FetchInventory(context.Background(), core.WarehouseReference{Name: "shop", URL: srv.URL})
	var ne *core.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if !core.Retryable(err) {
		t.Error("network failure not classified retryable")
	}
}

func TestFindCargo(t *testing.T) {
	inv := &Inventory{Cargo: map[string]CargoDescriptor{
		"./Button": {Name: "Button"},
		"Cart":     {Name: "Cart"},
	}}

	tests := []struct {
		lookup string
		want   string
		found  bool
	}{
		{"./Button", "Button", true},
		{"Button", "Button", true},
		{"Cart", "Cart", true},
		{"./Cart", "Cart", true},
		{"Checkout", "", false},
	}

	for _, tt := range tests {
		d, ok := FindCargo(inv, tt.lookup)
		if ok != tt.found {
			t.Errorf("FindCargo(%q) found = %v, want %v", tt.lookup, ok, tt.found)
			continue
		}
		if ok && d.Name != tt.want {
			t.Errorf("FindCargo(%q) = %q, want %q", tt.lookup, d.Name, tt.want)
		}
	}
}

func TestEntryURL(t *testing.T) {
	ref := core.WarehouseReference{Name: "shop", URL: "https://cdn.example.com/shop"}

	u, err := EntryURL(ref, &CargoDescriptor{Name: "Button", Entry: "./Button.mjs"})
	if err != nil {
		t.Fatalf("EntryURL: %v", err)
	}
	if u != "https://cdn.example.com/shop/Button.mjs" {
		t.Errorf("EntryURL = %q", u)
	}

	u, err = EntryURL(ref, &CargoDescriptor{Name: "Remote", Entry: "https://other.example.com/r.js"})
	if err != nil {
		t.Fatalf("EntryURL absolute: %v", err)
	}
	if u != "https://other.example.com/r.js" {
		t.Errorf("EntryURL absolute = %q", u)
	}
}
