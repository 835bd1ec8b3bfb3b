// Package engine implements the query-engine facade (C10): it owns C2-C4's
// index handles and C5-C9's pipeline stages behind a single Execute call,
// and serializes index swaps against in-flight queries with a
// sync.RWMutex, grounded on the teacher's internal/search/engine.go Engine
// struct. The lock is not reader-preferring: once a swap is waiting for the
// write lock, queries that arrive after it block until the swap completes.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fainderql/queryengine/internal/annotate"
	"github.com/fainderql/queryengine/internal/colindex"
	"github.com/fainderql/queryengine/internal/config"
	"github.com/fainderql/queryengine/internal/dsl"
	"github.com/fainderql/queryengine/internal/exec"
	"github.com/fainderql/queryengine/internal/fulltext"
	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/optimize"
	"github.com/fainderql/queryengine/internal/percentile"
	"github.com/fainderql/queryengine/internal/persist"
	"github.com/fainderql/queryengine/internal/qcache"
)

// ExecuteOptions mirrors spec.md §4.7's execute() flags.
type ExecuteOptions struct {
	Mode               percentile.Mode
	EnableHighlighting bool
	EnableFiltering    bool
	EnableMerge        bool
}

// Ranked is one entry of an execute call's ranked result list.
type Ranked struct {
	Doc   idspace.DocId
	Score float64
}

// Engine is the query-engine facade. Queries acquire the read lock for
// their entire evaluation; UpdateIndices loads the next generation's
// artifacts off-lock and only takes the write lock to swap the handles
// and clear the cache, per spec.md §4.7.
type Engine struct {
	mu sync.RWMutex

	percentile *percentile.Index
	column     *colindex.Index
	fulltext   fulltext.Connector
	maps       *idspace.Maps

	optOpts  optimize.Options
	percOpts percentile.Options
	cache    *qcache.Cache
}

// New builds an Engine from its already-constructed dependencies.
func New(perc *percentile.Index, col *colindex.Index, ft fulltext.Connector, maps *idspace.Maps, optOpts optimize.Options, percOpts percentile.Options, cacheSize int) *Engine {
	return &Engine{
		percentile: perc,
		column:     col,
		fulltext:   ft,
		maps:       maps,
		optOpts:    optOpts,
		percOpts:   percOpts,
		cache:      qcache.New(cacheSize),
	}
}

// Execute runs the full C5-C9 pipeline for queryText: cache lookup, parse,
// optimize, annotate, evaluate, rank, then memoize. A cache hit skips
// every stage after the lookup, matching spec.md §4.6's "execute consults
// the cache before parsing."
func (e *Engine) Execute(ctx context.Context, queryText string, opts ExecuteOptions) ([]Ranked, exec.Highlights, error) {
	key := qcache.Key{
		Query:              qcache.Normalize(queryText),
		Mode:               opts.Mode,
		EnableHighlighting: opts.EnableHighlighting,
		EnableFiltering:    opts.EnableFiltering,
		EnableMerge:        opts.EnableMerge,
	}

	if entry, ok := e.cache.Get(key); ok {
		return entryToRanked(entry), entryToHighlights(entry), nil
	}

	tree, err := dsl.Parse(queryText)
	if err != nil {
		return nil, exec.Highlights{}, err
	}
	optimized := optimize.Optimize(tree, e.optOpts)
	ann := annotate.Annotate(optimized)

	e.mu.RLock()
	defer e.mu.RUnlock()
	ex := exec.New(e.percentile, e.column, e.fulltext, e.maps)
	res, err := ex.Execute(ctx, optimized, ann, exec.Options{
		Mode:               opts.Mode,
		EnableHighlighting: opts.EnableHighlighting,
		EnableFiltering:    opts.EnableFiltering,
		EnableMerge:        opts.EnableMerge,
	})
	if err != nil {
		return nil, exec.Highlights{}, err
	}

	ranked := rank(res.Docs, res.Scores)

	e.cache.Put(key, qcache.Entry{
		Docs:   docsOf(ranked),
		Scores: res.Scores,
		DocHi:  res.Highlights.Doc,
		ColHi:  res.Highlights.Col,
	})

	return ranked, res.Highlights, nil
}

// rank orders docs by descending score, ties broken by ascending DocId. A
// document with no score-accumulator entry (it was only ever matched via
// a column predicate, never a keyword term) sorts below every scored
// document, using -1 as a sentinel since real scores are non-negative.
func rank(docs idspace.Set[idspace.DocId], scores map[idspace.DocId]float64) []Ranked {
	ids := docs.ToSlice()
	out := make([]Ranked, len(ids))
	for i, d := range ids {
		score, ok := scores[d]
		if !ok {
			score = -1
		}
		out[i] = Ranked{Doc: d, Score: score}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Doc < out[j].Doc
	})
	return out
}

func docsOf(ranked []Ranked) []idspace.DocId {
	out := make([]idspace.DocId, len(ranked))
	for i, r := range ranked {
		out[i] = r.Doc
	}
	return out
}

func entryToRanked(entry qcache.Entry) []Ranked {
	out := make([]Ranked, len(entry.Docs))
	for i, d := range entry.Docs {
		score, ok := entry.Scores[d]
		if !ok {
			score = -1
		}
		out[i] = Ranked{Doc: d, Score: score}
	}
	return out
}

func entryToHighlights(entry qcache.Entry) exec.Highlights {
	col := entry.ColHi
	if col.Len() == 0 {
		col = idspace.NewSet[idspace.ColId]()
	}
	return exec.Highlights{Doc: entry.DocHi, Col: col}
}

// CacheInfo reports the result cache's hit/miss counters and occupancy.
func (e *Engine) CacheInfo() qcache.Info {
	return e.cache.Info()
}

// ClearCache empties the result cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// UpdateIndices loads the next generation's percentile histograms and
// column index concurrently, recreates the full-text backend's index,
// then swaps the new percentile and column handles in plus the new
// id-space maps under the write lock and clears the cache, per spec.md
// §4.6's "any atomic index swap MUST clear the cache." The full-text
// connector itself is not replaced; its backend's index is rebuilt in
// place. The three jobs race as an errgroup.Group, the same bounded
// fan-out shape as the teacher's parallelSearch, but over artifact loading
// instead of querying; a failure in any one aborts the swap and leaves the
// engine serving its current percentile and column generation (a
// RecreateIndex that already completed is not undone).
func (e *Engine) UpdateIndices(ctx context.Context, cfg *config.Config, maps *idspace.Maps) error {
	g, gctx := errgroup.WithContext(ctx)

	var hists map[idspace.HistId]*percentile.Histogram
	var col *colindex.Index

	g.Go(func() error {
		h, err := persist.LoadHistograms(cfg.HistogramPath())
		if err != nil {
			return err
		}
		hists = h
		return nil
	})
	g.Go(func() error {
		c, err := persist.LoadColumnIndex(cfg.ColIndexPath())
		if err != nil {
			return err
		}
		col = c
		return nil
	})
	g.Go(func() error {
		return e.fulltext.RecreateIndex(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	newPercentile := percentile.NewIndex(hists, e.percOpts)

	e.mu.Lock()
	oldPercentile := e.percentile
	oldColumn := e.column
	e.percentile = newPercentile
	e.column = col
	e.maps = maps
	e.cache.Clear()
	e.mu.Unlock()

	if oldPercentile != nil {
		oldPercentile.Close()
	}
	_ = oldColumn // no explicit teardown: colindex.Index holds no background resources

	return nil
}

// Close releases the full-text connector and the percentile worker pool.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.percentile != nil {
		e.percentile.Close()
	}
	if e.fulltext != nil {
		if err := e.fulltext.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
