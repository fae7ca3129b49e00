package navigator

import (
	"context"
	"fmt"

	"github.com/git-pkgs/purl"

	"github.com/shipfed/navigator/internal/core"
)

// RefType is the PURL type for cargo references.
const RefType = "shipfed"

// CargoRef is a parsed cargo reference.
type CargoRef struct {
	Warehouse string
	Cargo     string
	Version   string // empty when the reference carries no version pin
}

// ParseRef parses a compact cargo reference of the form
// pkg:shipfed/<warehouse>/<cargo>[@version].
func ParseRef(ref string) (*CargoRef, error) {
	p, err := purl.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parsing cargo reference %q: %w", ref, err)
	}
	if p.Type != RefType {
		return nil, &core.ConfigurationError{
			Field:  "ref",
			Detail: fmt.Sprintf("unsupported reference type %q, want %q", p.Type, RefType),
		}
	}
	if p.Namespace == "" {
		return nil, &core.ConfigurationError{
			Field:  "ref",
			Detail: "reference is missing the warehouse component",
		}
	}
	return &CargoRef{
		Warehouse: p.Namespace,
		Cargo:     p.Name,
		Version:   p.Version,
	}, nil
}

// LoadRef loads cargo addressed by a pkg:shipfed reference. A version pin
// that the resolved descriptor does not match is a warning, not a failure.
func (n *Navigator) LoadRef(ctx context.Context, ref string, opts *LoadOptions) (*LoadedCargo, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	lc, err := n.LoadCargo(ctx, r.Warehouse, r.Cargo, opts)
	if err != nil {
		return nil, err
	}
	if r.Version != "" && lc.Descriptor.Version != r.Version {
		n.logger.Warn("reference version pin does not match published cargo",
			"ref", ref, "published", lc.Descriptor.Version)
	}
	return lc, nil
}
