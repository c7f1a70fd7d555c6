package resolver

import (
	"context"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/pnr"
)

// Internal resolves against a fixed, in-memory mapping. It is used in
// testing and for facility/provider categories whose enterprise identifier
// is a deterministic function of the source identifier rather than a live
// MPI lookup.
type Internal struct {
	// Mappings is keyed by the source identifier's value; a miss yields
	// NotFound, matching a live MPI's behaviour for an unknown identifier.
	Mappings map[string]identifiers.Identifier
}

// NewInternal constructs an Internal resolver with the given mapping table.
func NewInternal(mappings map[string]identifiers.Identifier) *Internal {
	if mappings == nil {
		mappings = map[string]identifiers.Identifier{}
	}
	return &Internal{Mappings: mappings}
}

// Resolve implements Resolver.
func (r *Internal) Resolve(ctx context.Context, category pnr.Category, id identifiers.Identifier, target identifiers.AssigningAuthority) Result {
	select {
	case <-ctx.Done():
		return Result{Status: Error, Err: ctx.Err()}
	default:
	}
	resolved, ok := r.Mappings[id.Value]
	if !ok {
		return Result{Status: NotFound}
	}
	return Result{Status: Resolved, Identifier: resolved}
}
