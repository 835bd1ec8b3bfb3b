// Package percentile implements the percentile index (C2): a four-mode
// evaluator for comparison predicates over per-column numeric
// distributions (pctl cmp ref), grounded on
// original_source/backend/backend/indices/percentile_op.py's FainderIndex.
//
// Two precomputed artifacts back the approximate modes: a rebinning index
// (very coarse bins, small footprint, used by LOW_MEMORY) and a
// conversion index (finer bins, used by FULL_PRECISION and FULL_RECALL).
// Both are built by collapsing the raw per-histogram bins down to a fixed
// resolution; a query's true percentile value can then only be bounded to
// the edge range of whichever collapsed bucket contains the target rank.
// FULL_PRECISION accepts a histogram only when that entire bound
// satisfies the predicate (no false positives, may miss borderline true
// positives); FULL_RECALL and LOW_MEMORY accept it when any point of the
// bound could satisfy the predicate (no false negatives, may over-admit).
// This construction guarantees the EXACT result is always a superset of
// FULL_PRECISION's and a subset of FULL_RECALL's and LOW_MEMORY's,
// matching spec.md §8's P8 containment property by construction.
package percentile

import (
	"context"
	"strconv"

	"github.com/fainderql/queryengine/internal/dsl"
	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/qerrors"
)

// Mode selects which precomputed artifact (if any) backs a query, per
// spec.md §4.4's mode table.
type Mode int

const (
	LowMemory Mode = iota
	FullPrecision
	FullRecall
	Exact
)

func (m Mode) String() string {
	switch m {
	case LowMemory:
		return "low_memory"
	case FullPrecision:
		return "full_precision"
	case FullRecall:
		return "full_recall"
	case Exact:
		return "exact"
	default:
		return "?"
	}
}

const (
	rebinningResolution  = 8
	conversionResolution = 32
)

// Options configures an Index's worker pool.
type Options struct {
	Workers              int
	ParallelExactEnabled bool

	// ContiguousPartitions selects how histogram ids are divided across
	// workers: contiguous ranges (the default, matching the original's
	// ParallelHistogramProcessor(..., contiguous=True)) or round-robin
	// striping. Both partition schemes are non-overlapping, so results
	// still union cleanly.
	ContiguousPartitions bool
}

// Index is the loaded percentile index: the raw histograms plus the two
// derived approximate indices and, when enabled, a persistent worker pool
// for parallel EXACT-mode evaluation.
type Index struct {
	hists      map[idspace.HistId]*Histogram
	rebinning  *approxIndex
	conversion *approxIndex
	pool       *parallelPool
	parallel   bool
}

// NewIndex builds an Index from a set of raw histograms. The rebinning
// and conversion indices are derived from hists at construction time
// (this reimplementation has no separate on-disk artifact format for
// them, unlike the original's precomputed rebinning_index/
// conversion_index files — see internal/persist for the loader that
// supplies hists).
func NewIndex(hists map[idspace.HistId]*Histogram, opts Options) *Index {
	ix := &Index{
		hists:      hists,
		rebinning:  buildApproxIndex(hists, rebinningResolution),
		conversion: buildApproxIndex(hists, conversionResolution),
		parallel:   opts.ParallelExactEnabled,
	}
	if opts.ParallelExactEnabled && len(hists) > 0 {
		ix.pool = newParallelPool(hists, opts.Workers, opts.ContiguousPartitions)
	}
	return ix
}

// SearchByColumn is a narrower entry point that restricts the search to
// a single column's histogram, generalizing the original's
// _get_matching_histograms identifier pre-filter (see SPEC_FULL.md §5.2)
// into the filter-context model: callers that already know the single
// histogram a NameTerm resolved to can skip building a one-element set.
func (ix *Index) SearchByColumn(ctx context.Context, pctl float64, cmp dsl.CmpOp, ref float64, mode Mode, col idspace.HistId) (idspace.Set[idspace.HistId], error) {
	filter := idspace.SetOf[idspace.HistId](col)
	return ix.Search(ctx, pctl, cmp, ref, mode, &filter)
}

// Close tears down the worker pool, if one was started. Safe to call on
// an Index with no pool.
func (ix *Index) Close() {
	if ix.pool != nil {
		ix.pool.shutdown()
	}
}

// Search evaluates "pctl cmp ref" in the given mode, restricted to filter
// when filter is non-nil, and returns the matching histogram ids.
//
// EXACT mode mirrors percentile_op.py's dispatch: when a filter is
// supplied, or when the parallel pool is unavailable, evaluation runs
// serially over the filtered (or full) histogram set; otherwise it fans
// out across the persistent worker pool and unions the per-partition
// results.
func (ix *Index) Search(ctx context.Context, pctl float64, cmp dsl.CmpOp, ref float64, mode Mode, filter *idspace.Set[idspace.HistId]) (idspace.Set[idspace.HistId], error) {
	if pctl <= 0 || pctl > 1 {
		return idspace.Set[idspace.HistId]{}, qerrors.PercentilePredicate(
			"percentile must satisfy 0 < p <= 1", nil).WithDetail("percentile", strconv.FormatFloat(pctl, 'g', -1, 64))
	}
	if err := ctx.Err(); err != nil {
		return idspace.Set[idspace.HistId]{}, qerrors.PercentilePredicate("query canceled", err)
	}

	switch mode {
	case LowMemory:
		if ix.rebinning == nil {
			return idspace.Set[idspace.HistId]{}, qerrors.PercentilePredicate("rebinning index not loaded for low_memory mode", nil)
		}
		return ix.rebinning.search(pctl, cmp, ref, true, filter), nil

	case FullPrecision:
		if ix.conversion == nil {
			return idspace.Set[idspace.HistId]{}, qerrors.PercentilePredicate("conversion index not loaded for full_precision mode", nil)
		}
		return ix.conversion.search(pctl, cmp, ref, false, filter), nil

	case FullRecall:
		if ix.conversion == nil {
			return idspace.Set[idspace.HistId]{}, qerrors.PercentilePredicate("conversion index not loaded for full_recall mode", nil)
		}
		return ix.conversion.search(pctl, cmp, ref, true, filter), nil

	case Exact:
		if filter != nil || !ix.parallel || ix.pool == nil {
			return ix.searchExactSerial(pctl, cmp, ref, filter), nil
		}
		return ix.pool.search(pctl, cmp, ref), nil

	default:
		return idspace.Set[idspace.HistId]{}, qerrors.PercentilePredicate("unknown percentile mode", nil)
	}
}

func (ix *Index) searchExactSerial(pctl float64, cmp dsl.CmpOp, ref float64, filter *idspace.Set[idspace.HistId]) idspace.Set[idspace.HistId] {
	out := idspace.NewSet[idspace.HistId]()
	ids := ix.hists
	if filter != nil {
		for _, id := range filter.ToSlice() {
			h, ok := ids[id]
			if !ok {
				continue
			}
			if v, ok := h.ExactValue(pctl); ok && satisfiesExact(cmp, v, ref) {
				out.Add(id)
			}
		}
		return out
	}
	for id, h := range ids {
		if v, ok := h.ExactValue(pctl); ok && satisfiesExact(cmp, v, ref) {
			out.Add(id)
		}
	}
	return out
}
