package percentile

import (
	"runtime"
	"sort"
	"sync"

	"github.com/fainderql/queryengine/internal/dsl"
	"github.com/fainderql/queryengine/internal/idspace"
)

// exactTask is one unit of work handed to the pool: evaluate a single
// percentile predicate against every histogram in a worker's partition.
type exactTask struct {
	pctl     float64
	cmp      dsl.CmpOp
	ref      float64
	resultCh chan idspace.Set[idspace.HistId]
}

// parallelPool is the persistent, process-wide worker pool described in
// spec.md §4.4/§5 and grounded on the original's ParallelHistogramProcessor:
// created once when a set of histograms is loaded, torn down on swap or
// shutdown, and reused across every EXACT-mode query that has no filter.
// Each worker owns a fixed partition of histogram ids (a contiguous range,
// or a round-robin stripe when contiguous is false) assigned at
// construction time, so results from distinct workers never overlap
// and can simply be unioned.
//
// Each worker gets its own dedicated, unbuffered task channel rather than
// all workers sharing one: a shared channel only guarantees p.n sends are
// received by p.n workers in aggregate, not that every worker receives
// exactly one, so a fast worker could drain two tasks while a slow one
// receives none and its partition's histograms silently drop out of the
// union. Dedicated channels make dispatch target a specific worker, so
// every partition is evaluated on every search.
type parallelPool struct {
	tasks []chan exactTask
	wg    sync.WaitGroup
	quit  chan struct{}
	n     int
}

func newParallelPool(hists map[idspace.HistId]*Histogram, workers int, contiguous bool) *parallelPool {
	ids := make([]idspace.HistId, 0, len(hists))
	for id := range hists {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(ids) && len(ids) > 0 {
		workers = len(ids)
	}
	if workers == 0 {
		workers = 1
	}

	var partitions [][]idspace.HistId
	if contiguous {
		partitions = partitionContiguous(ids, workers)
	} else {
		partitions = partitionStriped(ids, workers)
	}

	p := &parallelPool{
		tasks: make([]chan exactTask, len(partitions)),
		quit:  make(chan struct{}),
		n:     len(partitions),
	}
	for i, part := range partitions {
		p.tasks[i] = make(chan exactTask)
		p.wg.Add(1)
		go p.worker(p.tasks[i], part, hists)
	}
	return p
}

// partitionContiguous splits ids into at most n contiguous, roughly
// equal-sized slices, preserving ascending order within each.
func partitionContiguous(ids []idspace.HistId, n int) [][]idspace.HistId {
	if len(ids) == 0 {
		return nil
	}
	if n > len(ids) {
		n = len(ids)
	}
	out := make([][]idspace.HistId, 0, n)
	base := len(ids) / n
	rem := len(ids) % n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		if size == 0 {
			continue
		}
		out = append(out, ids[start:start+size])
		start += size
	}
	return out
}

// partitionStriped splits ids round-robin across n workers instead of
// into contiguous ranges, used when PercentileConfig.ContiguousPartitions
// is false.
func partitionStriped(ids []idspace.HistId, n int) [][]idspace.HistId {
	if len(ids) == 0 {
		return nil
	}
	if n > len(ids) {
		n = len(ids)
	}
	out := make([][]idspace.HistId, n)
	for i, id := range ids {
		out[i%n] = append(out[i%n], id)
	}
	nonEmpty := out[:0]
	for _, part := range out {
		if len(part) > 0 {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return nonEmpty
}

func (p *parallelPool) worker(tasks chan exactTask, partition []idspace.HistId, hists map[idspace.HistId]*Histogram) {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			out := idspace.NewSet[idspace.HistId]()
			for _, id := range partition {
				h := hists[id]
				if h == nil {
					continue
				}
				v, ok := h.ExactValue(task.pctl)
				if !ok {
					continue
				}
				if satisfiesExact(task.cmp, v, task.ref) {
					out.Add(id)
				}
			}
			task.resultCh <- out
		case <-p.quit:
			return
		}
	}
}

// search dispatches one task to every worker's own channel and unions the
// results, so every partition is guaranteed to be evaluated exactly once
// regardless of goroutine scheduling. It never filters: callers only use
// the parallel path when no hist_filter was supplied (per
// percentile_op.py's fainder_mode match), since a filtered query would
// waste most of the pool's partitions on ids that are never candidates.
func (p *parallelPool) search(pctl float64, cmp dsl.CmpOp, ref float64) idspace.Set[idspace.HistId] {
	resultCh := make(chan idspace.Set[idspace.HistId], p.n)
	for _, tasks := range p.tasks {
		tasks <- exactTask{pctl: pctl, cmp: cmp, ref: ref, resultCh: resultCh}
	}
	union := idspace.NewSet[idspace.HistId]()
	for i := 0; i < p.n; i++ {
		union = union.Or(<-resultCh)
	}
	return union
}

// shutdown stops every worker goroutine and waits for them to exit. It is
// safe to call at most once per pool.
func (p *parallelPool) shutdown() {
	close(p.quit)
	p.wg.Wait()
}

func satisfiesExact(cmp dsl.CmpOp, v, ref float64) bool {
	switch cmp {
	case dsl.CmpGe:
		return v >= ref
	case dsl.CmpGt:
		return v > ref
	case dsl.CmpLe:
		return v <= ref
	case dsl.CmpLt:
		return v < ref
	default:
		return false
	}
}
