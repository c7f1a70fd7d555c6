package orchestrator

import (
	"sort"

	"github.com/wardle/xds-mediator/pnr"
	"github.com/wardle/xds-mediator/resolver"
)

// resolution pairs a resolve outcome with the occurrence it answers for.
type resolution struct {
	occurrence *pnr.IdentifierOccurrence
	result     resolver.Result
}

// resolutionMap tracks one resolve outcome per distinct occurrence key:
// insertion establishes the at-most-one-call-per-key invariant, which
// already holds by construction
// here since pnr.Extract deduplicates occurrences before any call is
// issued, and record is called once per category per resolve round (only
// the ReResolving round records patient keys a second time).
type resolutionMap map[string]*resolution

func newResolutionMap() resolutionMap {
	return make(resolutionMap)
}

// record stores the outcome of one round of resolve calls for a category.
// Calling it twice for the same occurrence (the ReResolving round) simply
// overwrites the earlier entry, which is the intended "reissue once" shape.
func (m resolutionMap) record(occurrences []*pnr.IdentifierOccurrence, results map[string]resolver.Result) {
	for _, occ := range occurrences {
		m[occ.Key()] = &resolution{occurrence: occ, result: results[occ.Key()]}
	}
}

func (m resolutionMap) byCategory(cat pnr.Category) []*resolution {
	var out []*resolution
	for _, r := range m {
		if r.occurrence.Category == cat {
			out = append(out, r)
		}
	}
	return sortByKey(out)
}

func (m resolutionMap) unresolved(cat pnr.Category) []*resolution {
	var out []*resolution
	for _, r := range m.byCategory(cat) {
		if r.result.Status != resolver.Resolved {
			out = append(out, r)
		}
	}
	return out
}

func sortByKey(resolutions []*resolution) []*resolution {
	sort.Slice(resolutions, func(i, j int) bool {
		return resolutions[i].occurrence.Key() < resolutions[j].occurrence.Key()
	})
	return resolutions
}
