package percentile

import "github.com/fainderql/queryengine/internal/idspace"

// Histogram is a single column's raw per-bin value distribution, loaded
// from the histogram artifact. Edges has len(Counts)+1 entries: bin i
// covers the half-open range [Edges[i], Edges[i+1]).
type Histogram struct {
	ID     idspace.HistId
	Edges  []float64
	Counts []uint64
}

// total returns the sum of all bin counts.
func (h *Histogram) total() uint64 {
	var n uint64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// ExactValue interpolates the value at the given percentile (0,1] using
// the standard nearest-rank-with-interpolation method: walk bins
// accumulating counts until the target rank falls inside one, then
// linearly interpolate across that bin's edge range.
//
// An empty histogram has no defined percentile value; ExactValue returns
// (0, false).
func (h *Histogram) ExactValue(pctl float64) (float64, bool) {
	total := h.total()
	if total == 0 || len(h.Counts) == 0 {
		return 0, false
	}
	target := pctl * float64(total)

	var cum uint64
	for i, c := range h.Counts {
		next := cum + c
		if float64(next) >= target || i == len(h.Counts)-1 {
			if c == 0 {
				return h.Edges[i], true
			}
			frac := (target - float64(cum)) / float64(c)
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			lo, hi := h.Edges[i], h.Edges[i+1]
			return lo + frac*(hi-lo), true
		}
		cum = next
	}
	return h.Edges[len(h.Edges)-1], true
}

// coarsen rebuilds h with its bins collapsed down to at most n buckets,
// summing counts and widening edges accordingly. It is the construction
// used to build both the rebinning index (very coarse) and the
// conversion index (moderately coarse) from the same raw histograms.
func (h *Histogram) coarsen(n int) *Histogram {
	if n <= 0 || n >= len(h.Counts) {
		edges := append([]float64(nil), h.Edges...)
		counts := append([]uint64(nil), h.Counts...)
		return &Histogram{ID: h.ID, Edges: edges, Counts: counts}
	}

	out := &Histogram{ID: h.ID, Edges: make([]float64, n+1), Counts: make([]uint64, n)}
	binsPerBucket := float64(len(h.Counts)) / float64(n)
	bin := 0
	for i := 0; i < n; i++ {
		upperBound := int(float64(i+1) * binsPerBucket)
		if upperBound > len(h.Counts) {
			upperBound = len(h.Counts)
		}
		var sum uint64
		for ; bin < upperBound; bin++ {
			sum += h.Counts[bin]
		}
		out.Counts[i] = sum
	}
	out.Edges[0] = h.Edges[0]
	for i := 0; i < n; i++ {
		upperBound := int(float64(i+1) * binsPerBucket)
		if upperBound > len(h.Counts) {
			upperBound = len(h.Counts)
		}
		out.Edges[i+1] = h.Edges[upperBound]
	}
	return out
}
