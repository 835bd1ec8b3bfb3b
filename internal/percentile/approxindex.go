package percentile

import (
	"github.com/fainderql/queryengine/internal/dsl"
	"github.com/fainderql/queryengine/internal/idspace"
)

// approxIndex is a coarsened copy of the raw histograms: each histogram's
// bins are collapsed to resolution buckets, so a percentile's true value
// can only be bounded to the [lo, hi) edge range of whichever bucket the
// target rank falls in, not pinned exactly. This bound is the basis for
// both LOW_MEMORY (rebinning, very coarse) and FULL_PRECISION/FULL_RECALL
// (conversion, finer) per spec.md §4.4.
type approxIndex struct {
	coarse     map[idspace.HistId]*Histogram
	resolution int
}

func buildApproxIndex(hists map[idspace.HistId]*Histogram, resolution int) *approxIndex {
	coarse := make(map[idspace.HistId]*Histogram, len(hists))
	for id, h := range hists {
		coarse[id] = h.coarsen(resolution)
	}
	return &approxIndex{coarse: coarse, resolution: resolution}
}

// bound returns the [lo, hi] edge range bracketing the true percentile
// value, using this index's coarsened bins.
func (ix *approxIndex) bound(id idspace.HistId, pctl float64) (lo, hi float64, ok bool) {
	h, found := ix.coarse[id]
	if !found {
		return 0, 0, false
	}
	total := h.total()
	if total == 0 || len(h.Counts) == 0 {
		return 0, 0, false
	}
	target := pctl * float64(total)
	var cum uint64
	for i, c := range h.Counts {
		next := cum + c
		if float64(next) >= target || i == len(h.Counts)-1 {
			return h.Edges[i], h.Edges[i+1], true
		}
		cum = next
	}
	return h.Edges[len(h.Edges)-1], h.Edges[len(h.Edges)-1], true
}

// precisionSatisfies reports whether the entire bound [lo,hi] satisfies
// cmp against ref, i.e. the predicate holds even in the worst case within
// the bucket. This is the conservative rule: it can only under-report,
// never over-report, so its result set is a subset of the exact one.
func precisionSatisfies(cmp dsl.CmpOp, lo, hi, ref float64) bool {
	switch cmp {
	case dsl.CmpGe:
		return lo >= ref
	case dsl.CmpGt:
		return lo > ref
	case dsl.CmpLe:
		return hi <= ref
	case dsl.CmpLt:
		return hi < ref
	default:
		return false
	}
}

// recallSatisfies reports whether any point of the bound [lo,hi] could
// satisfy cmp against ref, i.e. the predicate holds in the best case
// within the bucket. This over-reports: its result set is a superset of
// the exact one.
func recallSatisfies(cmp dsl.CmpOp, lo, hi, ref float64) bool {
	switch cmp {
	case dsl.CmpGe:
		return hi >= ref
	case dsl.CmpGt:
		return hi > ref
	case dsl.CmpLe:
		return lo <= ref
	case dsl.CmpLt:
		return lo < ref
	default:
		return false
	}
}

// search evaluates a percentile predicate against every histogram in the
// index using the given satisfaction rule, restricted to filter when
// filter is non-nil.
func (ix *approxIndex) search(pctl float64, cmp dsl.CmpOp, ref float64, recall bool, filter *idspace.Set[idspace.HistId]) idspace.Set[idspace.HistId] {
	out := idspace.NewSet[idspace.HistId]()
	for id := range ix.coarse {
		if filter != nil && !filter.Contains(id) {
			continue
		}
		lo, hi, ok := ix.bound(id, pctl)
		if !ok {
			continue
		}
		var satisfies bool
		if recall {
			satisfies = recallSatisfies(cmp, lo, hi, ref)
		} else {
			satisfies = precisionSatisfies(cmp, lo, hi, ref)
		}
		if satisfies {
			out.Add(id)
		}
	}
	return out
}
