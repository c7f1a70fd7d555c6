package resolver

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/pnr"
)

// ResolveMany fans out one resolve call per occurrence concurrently and
// collects every result keyed by occurrence key. Since pnr.Extract already
// collapses duplicate (category, identifier) occurrences into one entry,
// issuing exactly one call per occurrence here is what gives the
// at-most-one-outstanding-per-key guarantee required by the ResolutionMap
// invariant - there is never more than one occurrence, and therefore never
// more than one in-flight call, for a given key.
//
// Ordering of completions does not matter to the caller: ResolveMany only
// returns once every call has completed or ctx is done, at which point
// triage can run against the full map.
func ResolveMany(ctx context.Context, r Resolver, category pnr.Category, occurrences []*pnr.IdentifierOccurrence, target identifiers.AssigningAuthority) map[string]Result {
	results := make(map[string]Result, len(occurrences))
	if len(occurrences) == 0 {
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, occ := range occurrences {
		occ := occ
		g.Go(func() error {
			res := r.Resolve(gctx, category, occ.Identifier, target)
			mu.Lock()
			results[occ.Key()] = res
			mu.Unlock()
			return nil
		})
	}
	// errgroup.Wait's error is always nil here: Resolve never returns a Go
	// error, it reports failure through Result.Status, so a failing call
	// never cancels its siblings - that would violate the "all resolves
	// run to completion" partial-failure aggregation rule.
	_ = g.Wait()
	return results
}
