package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fainderql/queryengine/internal/colindex"
	"github.com/fainderql/queryengine/internal/fulltext"
	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/optimize"
	"github.com/fainderql/queryengine/internal/percentile"
)

// stubFullText is a scripted fulltext.Connector standing in for the real
// bleve-backed RPC connector: the engine's integration tests exercise
// real percentile.Index and colindex.Index instances, but full-text is
// always the natural mock boundary since it talks to an external
// process.
type stubFullText struct {
	byQuery map[string]fulltext.EvalResult
}

func (f *stubFullText) Evaluate(ctx context.Context, query string, docFilter *idspace.Set[idspace.DocId], highlight bool) (fulltext.EvalResult, error) {
	return f.byQuery[query], nil
}
func (f *stubFullText) RecreateIndex(ctx context.Context) error { return nil }
func (f *stubFullText) Close() error                            { return nil }

var _ fulltext.Connector = (*stubFullText)(nil)

// newFixtureEngine builds the spec.md §8 3-document fixture: doc 0 has
// columns "Latitude" (col 0, hist 0) and "Longitude" (col 1, hist 1);
// doc 1 has column "Population" (col 2, hist 2); doc 2 has column
// "Area" (col 3, hist 3). Histogram values are built so that, in EXACT
// mode, "pp(0.5;ge;20.0)" admits histograms 0 and 1 and excludes 2 and 3.
func newFixtureEngine(t *testing.T, ft *stubFullText) *Engine {
	t.Helper()

	docToCols := map[idspace.DocId]idspace.Set[idspace.ColId]{
		0: idspace.SetOf[idspace.ColId](0, 1),
		1: idspace.SetOf[idspace.ColId](2),
		2: idspace.SetOf[idspace.ColId](3),
	}
	colToDoc := map[idspace.ColId]idspace.DocId{0: 0, 1: 0, 2: 1, 3: 2}
	colToHist := map[idspace.ColId]idspace.HistId{0: 0, 1: 1, 2: 2, 3: 3}
	histToCol := map[idspace.HistId]idspace.ColId{0: 0, 1: 1, 2: 2, 3: 3}
	maps, err := idspace.NewMaps(docToCols, colToDoc, colToHist, histToCol)
	require.NoError(t, err)

	hists := map[idspace.HistId]*percentile.Histogram{
		0: {ID: 0, Edges: []float64{0, 50, 100}, Counts: []uint64{10, 10}},
		1: {ID: 1, Edges: []float64{0, 50, 100}, Counts: []uint64{10, 10}},
		2: {ID: 2, Edges: []float64{0, 1, 2}, Counts: []uint64{10, 10}},
		3: {ID: 3, Edges: []float64{0, 1, 2}, Counts: []uint64{10, 10}},
	}
	percIdx := percentile.NewIndex(hists, percentile.Options{})

	colIdx := colindex.New(colindex.Config{EfSearch: 32, EfConstruction: 64, M: 16})
	require.NoError(t, colIdx.Add(0, "Latitude", []float32{1, 0, 0, 0}, 1))
	require.NoError(t, colIdx.Add(1, "Longitude", []float32{0, 1, 0, 0}, 1))
	require.NoError(t, colIdx.Add(2, "Population", []float32{0, 0, 1, 0}, 1))
	require.NoError(t, colIdx.Add(3, "Area", []float32{0, 0, 0, 1}, 1))

	return New(percIdx, colIdx, ft, maps, optimize.Options{}, percentile.Options{}, 10)
}

func TestEngine_KeywordQuery(t *testing.T) {
	ft := &stubFullText{byQuery: map[string]fulltext.EvalResult{
		"germany": {Docs: []idspace.DocId{0}, Scores: map[idspace.DocId]float64{0: 1.5}},
	}}
	e := newFixtureEngine(t, ft)

	ranked, _, err := e.Execute(context.Background(), `kw(germany)`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, idspace.DocId(0), ranked[0].Doc)
	assert.Equal(t, 1.5, ranked[0].Score)
}

func TestEngine_ColumnPercentileQuery(t *testing.T) {
	ft := &stubFullText{byQuery: map[string]fulltext.EvalResult{}}
	e := newFixtureEngine(t, ft)

	ranked, _, err := e.Execute(context.Background(), `col(pp(0.5;ge;20.0))`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)

	var docs []idspace.DocId
	for _, r := range ranked {
		docs = append(docs, r.Doc)
	}
	assert.ElementsMatch(t, []idspace.DocId{0}, docs)
}

func TestEngine_InvalidQuery_ReturnsParseError(t *testing.T) {
	ft := &stubFullText{byQuery: map[string]fulltext.EvalResult{}}
	e := newFixtureEngine(t, ft)

	_, _, err := e.Execute(context.Background(), `kw(germany AND`, ExecuteOptions{Mode: percentile.Exact})
	assert.Error(t, err)
}

func TestEngine_CacheHitSkipsReparse(t *testing.T) {
	ft := &stubFullText{byQuery: map[string]fulltext.EvalResult{
		"germany": {Docs: []idspace.DocId{0}, Scores: map[idspace.DocId]float64{0: 1}},
	}}
	e := newFixtureEngine(t, ft)

	_, _, err := e.Execute(context.Background(), `kw(germany)`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)
	info := e.CacheInfo()
	assert.Equal(t, uint64(0), info.Hits)
	assert.Equal(t, uint64(1), info.Misses)

	ranked, _, err := e.Execute(context.Background(), `kw(germany)`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)
	assert.Equal(t, idspace.DocId(0), ranked[0].Doc)

	info = e.CacheInfo()
	assert.Equal(t, uint64(1), info.Hits)
	assert.Equal(t, uint64(1), info.Misses)
}

func TestEngine_ClearCacheForcesReEvaluation(t *testing.T) {
	ft := &stubFullText{byQuery: map[string]fulltext.EvalResult{
		"germany": {Docs: []idspace.DocId{0}, Scores: map[idspace.DocId]float64{0: 1}},
	}}
	e := newFixtureEngine(t, ft)

	_, _, err := e.Execute(context.Background(), `kw(germany)`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)

	e.ClearCache()
	info := e.CacheInfo()
	assert.Equal(t, 0, info.CurrSize)

	_, _, err = e.Execute(context.Background(), `kw(germany)`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)
	info = e.CacheInfo()
	assert.Equal(t, uint64(2), info.Misses)
}

func TestEngine_RankingOrdersByScoreDescendingThenDocIdAscending(t *testing.T) {
	ft := &stubFullText{byQuery: map[string]fulltext.EvalResult{
		"a": {Docs: []idspace.DocId{0, 1, 2}, Scores: map[idspace.DocId]float64{0: 1, 1: 3, 2: 3}},
	}}
	e := newFixtureEngine(t, ft)

	ranked, _, err := e.Execute(context.Background(), `kw(a)`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, []Ranked{
		{Doc: 1, Score: 3},
		{Doc: 2, Score: 3},
		{Doc: 0, Score: 1},
	}, ranked)
}

func TestEngine_UnscoredColumnOnlyMatchesSortBelowScoredDocs(t *testing.T) {
	ft := &stubFullText{byQuery: map[string]fulltext.EvalResult{}}
	e := newFixtureEngine(t, ft)

	// Doc 0 matches purely via a column predicate: it never touches the
	// score accumulator, so it must sort after any scored document even
	// though its nominal score is the zero value.
	ranked, _, err := e.Execute(context.Background(), `col(pp(0.5;ge;20.0))`, ExecuteOptions{Mode: percentile.Exact})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, -1.0, ranked[0].Score)
}
