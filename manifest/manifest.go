// Package manifest fetches and validates warehouse inventory manifests and
// resolves named cargo lookups against them.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shipfed/navigator/client"
	"github.com/shipfed/navigator/format"
	"github.com/shipfed/navigator/internal/core"
)

// Inventory is a warehouse's published catalog. Fetched wholesale and never
// mutated in place; a re-fetch replaces the whole document.
type Inventory struct {
	Warehouse    WarehouseInfo              `json:"warehouse"`
	Cargo        map[string]CargoDescriptor `json:"cargo"`
	Dependencies map[string]string          `json:"dependencies"`
	Timestamp    int64                      `json:"timestamp"`
	Checksum     string                     `json:"checksum"`
}

// WarehouseInfo is the manifest's embedded identity block.
type WarehouseInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
}

// CargoDescriptor describes one loadable module. Immutable once its
// Inventory is fetched; Format is filled at resolution time, not publish
// time, and records the requested format (an ambiguous payload may still
// execute as a content-detected one).
type CargoDescriptor struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Entry        string            `json:"entry"`
	Exports      []string          `json:"exports,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
	Metadata     map[string]any    `json:"metadata"`

	Format format.Format `json:"-"`
}

// Resolver fetches inventories. It holds no cross-call manifest cache:
// freshness policy is centralized in the orchestrator.
type Resolver struct {
	client *client.Client
}

// NewResolver creates a resolver using the given HTTP client.
func NewResolver(c *client.Client) *Resolver {
	if c == nil {
		c = client.DefaultClient()
	}
	return &Resolver{client: c}
}

// FetchInventory fetches and validates the manifest published under the
// warehouse base URL. A transport failure is a NetworkError; a structurally
// invalid document is a ValidationError, never silently defaulted.
func (r *Resolver) FetchInventory(ctx context.Context, ref core.WarehouseReference) (*Inventory, error) {
	url := client.ManifestURL(ref.URL)

	var inv Inventory
	if err := r.client.GetJSON(ctx, url, &inv); err != nil {
		if errors.Is(err, client.ErrMalformed) {
			return nil, &core.ValidationError{Subject: url, Detail: err.Error()}
		}
		return nil, &core.NetworkError{URL: url, Cause: err}
	}

	if err := validate(&inv, url); err != nil {
		return nil, err
	}
	return &inv, nil
}

func validate(inv *Inventory, url string) error {
	switch {
	case inv.Warehouse.Name == "":
		return &core.ValidationError{Subject: url, Detail: "manifest missing warehouse name"}
	case inv.Cargo == nil:
		return &core.ValidationError{Subject: url, Detail: "manifest missing cargo mapping"}
	case inv.Checksum == "":
		return &core.ValidationError{Subject: url, Detail: "manifest missing checksum"}
	}
	return nil
}

// FindCargo looks a cargo up by name. Publishers and consumers may
// reference the same cargo with or without the conventional "./" prefix,
// so the marker is stripped from both sides before comparing.
func FindCargo(inv *Inventory, name string) (*CargoDescriptor, bool) {
	want := strings.TrimPrefix(name, "./")
	if d, ok := inv.Cargo[want]; ok {
		return &d, true
	}
	for key, d := range inv.Cargo {
		if strings.TrimPrefix(key, "./") == want {
			return &d, true
		}
	}
	return nil, false
}

// EntryURL resolves a descriptor's entry path against its warehouse base.
func EntryURL(ref core.WarehouseReference, d *CargoDescriptor) (string, error) {
	u, err := client.ResolveEntry(ref.URL, d.Entry)
	if err != nil {
		return "", fmt.Errorf("resolving entry for %s: %w", d.Name, err)
	}
	return u, nil
}
