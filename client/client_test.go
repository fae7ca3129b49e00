package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(opts ...Option) *Client {
	base := []Option{WithMaxRetries(3), WithBaseDelay(time.Millisecond)}
	return NewClient(append(base, opts...)...)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		fmt.Fprint(w, `{"name":"shop","version":"1.2.0"}`)
	}))
	defer srv.Close()

	var out struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := testClient().GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "shop" || out.Version != "1.2.0" {
		t.Errorf("decoded = %+v", out)
	}
}

func TestGetJSONMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":`)
	}))
	defer srv.Close()

	var out map[string]any
	err := testClient().GetJSON(context.Background(), srv.URL, &out)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestGetTextNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testClient().GetText(context.Background(), srv.URL+"/missing.js")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetRetriesOnUpstreamErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "module.exports = {};")
	}))
	defer srv.Close()

	body, err := testClient().GetText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if body != "module.exports = {};" {
		t.Errorf("body = %q", body)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGetRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient().GetText(context.Background(), srv.URL)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if n := calls.Load(); n != 4 {
		t.Errorf("calls = %d, want 1 + 3 retries", n)
	}
}

func TestGetNoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient().GetText(context.Background(), srv.URL)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGetHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "denied")
	}))
	defer srv.Close()

	_, err := testClient().GetText(context.Background(), srv.URL)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want HTTPError", err)
	}
	if he.StatusCode != http.StatusForbidden || he.Body != "denied" {
		t.Errorf("HTTPError = %+v", he)
	}
	if he.IsNotFound() {
		t.Error("403 reported as not found")
	}
}

func TestHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Content-Length", "1234")
	}))
	defer srv.Close()

	size, ct, err := testClient().Head(context.Background(), srv.URL+"/m.js")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if size != 1234 || ct != "application/javascript" {
		t.Errorf("Head = (%d, %q)", size, ct)
	}
}

func TestManifestURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://cdn.example.com/shop", "https://cdn.example.com/shop/shipfed.manifest.json"},
		{"https://cdn.example.com/shop/", "https://cdn.example.com/shop/shipfed.manifest.json"},
	}
	for _, tt := range tests {
		if got := ManifestURL(tt.base); got != tt.want {
			t.Errorf("ManifestURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestResolveEntry(t *testing.T) {
	tests := []struct {
		base  string
		entry string
		want  string
	}{
		{"https://cdn.example.com/shop", "./Button.mjs", "https://cdn.example.com/shop/Button.mjs"},
		{"https://cdn.example.com/shop/", "dist/Button.mjs", "https://cdn.example.com/shop/dist/Button.mjs"},
		{"https://cdn.example.com/shop", "https://other.example.com/Button.mjs", "https://other.example.com/Button.mjs"},
	}
	for _, tt := range tests {
		got, err := ResolveEntry(tt.base, tt.entry)
		if err != nil {
			t.Errorf("ResolveEntry(%q, %q): %v", tt.base, tt.entry, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveEntry(%q, %q) = %q, want %q", tt.base, tt.entry, got, tt.want)
		}
	}
}

func TestHost(t *testing.T) {
	if got := Host("https://cdn.example.com:8443/shop/m.js"); got != "cdn.example.com:8443" {
		t.Errorf("Host = %q", got)
	}
	if got := Host("not a url"); got != "not a url" {
		t.Errorf("Host fallback = %q", got)
	}
}
