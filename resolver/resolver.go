// Package resolver implements the resolver client: a polymorphic lookup
// of an Enterprise identifier for a given category/identifier pair, against
// a PIX/PDQ HL7v2 service, a FHIR Patient search endpoint, or an internal
// deterministic mapping used in tests and for facility/provider lookups
// that have no live MPI behind them.
package resolver

import (
	"context"
	"time"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/pnr"
)

// Status is the outcome of a single resolve call.
type Status int

const (
	// Resolved means the category/identifier pair mapped to an Enterprise
	// identifier.
	Resolved Status = iota
	// NotFound means the MPI/CR was reached successfully but holds no
	// matching record.
	NotFound
	// Error means the call could not be completed (transport failure,
	// protocol error, or timeout).
	Error
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case NotFound:
		return "not-found"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the outcome of a resolve call.
type Result struct {
	Status     Status
	Identifier identifiers.Identifier // populated only when Status == Resolved
	Err        error                  // populated only when Status == Error
}

// DefaultCallTimeout is the per-call deadline applied when the caller's
// context carries no deadline of its own.
const DefaultCallTimeout = 60 * time.Second

// Resolver issues a single resolve query for one identifier occurrence and
// reports whether it resolved to an Enterprise identifier, was not found,
// or failed. Implementations must return promptly when ctx is done.
type Resolver interface {
	Resolve(ctx context.Context, category pnr.Category, id identifiers.Identifier, target identifiers.AssigningAuthority) Result
}

// TargetAuthority returns the configured enterprise authority a category
// resolves into, falling back to the package defaults.
func TargetAuthority(category pnr.Category, configured map[pnr.Category]identifiers.AssigningAuthority) identifiers.AssigningAuthority {
	if a, ok := configured[category]; ok {
		return a
	}
	switch category {
	case pnr.Provider:
		return identifiers.DefaultEPID
	case pnr.Facility:
		return identifiers.DefaultELID
	default:
		return identifiers.DefaultECID
	}
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultCallTimeout)
}
