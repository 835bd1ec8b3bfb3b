package percentile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fainderql/queryengine/internal/dsl"
	"github.com/fainderql/queryengine/internal/idspace"
)

// TestParallelPool_SearchCoversEveryPartition guards against a dispatch
// bug where workers shared one task channel: a fast worker could drain
// two generic tasks while a slow worker received none, silently dropping
// that worker's partition from the union. One histogram per worker makes
// a dropped partition immediately visible as a missing id, and running
// search repeatedly gives scheduling many chances to reorder receives.
func TestParallelPool_SearchCoversEveryPartition(t *testing.T) {
	const workers = 8
	hists := make(map[idspace.HistId]*Histogram, workers)
	want := make([]idspace.HistId, 0, workers)
	for i := 0; i < workers; i++ {
		id := idspace.HistId(i + 1)
		hists[id] = uniform(id)
		want = append(want, id)
	}

	pool := newParallelPool(hists, workers, true)
	defer pool.shutdown()

	for i := 0; i < 200; i++ {
		got := pool.search(0.5, dsl.CmpGe, 0)
		assert.ElementsMatch(t, want, got.ToSlice(), "iteration %d dropped a partition", i)
	}
}

// TestParallelPool_StripedPartitionsAllCovered exercises the non-contiguous
// partition path with more histograms than workers, so each worker's
// partition has multiple ids that must all survive the union.
func TestParallelPool_StripedPartitionsAllCovered(t *testing.T) {
	const workers = 4
	const n = 37
	hists := make(map[idspace.HistId]*Histogram, n)
	want := make([]idspace.HistId, 0, n)
	for i := 0; i < n; i++ {
		id := idspace.HistId(i + 1)
		hists[id] = uniform(id)
		want = append(want, id)
	}

	pool := newParallelPool(hists, workers, false)
	defer pool.shutdown()

	for i := 0; i < 50; i++ {
		got := pool.search(0.5, dsl.CmpGe, 0)
		assert.ElementsMatch(t, want, got.ToSlice(), "iteration %d dropped a partition", i)
	}
}
