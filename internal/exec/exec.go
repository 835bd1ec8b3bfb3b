// Package exec implements the bottom-up two-scope executor (C8): it walks
// an annotated, optimized parse tree and evaluates it against the three
// index adapters, threading two independent prefilter cursors (one per
// scope) and merging highlights at every boolean node, per spec.md §4.5.
//
// Grounded on original_source/backend/backend/query_evaluator.py's
// QueryExecutor (the bottom-up Transformer) and the teacher's
// internal/search/engine.go for the shape of a multi-backend query engine
// depending on small per-concern interfaces rather than concrete types, so
// this package can be unit-tested against fakes instead of real bleve/hnsw
// instances.
package exec

import (
	"context"
	"regexp"
	"strings"

	"github.com/fainderql/queryengine/internal/annotate"
	"github.com/fainderql/queryengine/internal/dsl"
	"github.com/fainderql/queryengine/internal/fulltext"
	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/percentile"
)

// PercentileSearcher is the subset of percentile.Index the executor needs.
type PercentileSearcher interface {
	Search(ctx context.Context, pctl float64, cmp dsl.CmpOp, ref float64, mode percentile.Mode, filter *idspace.Set[idspace.HistId]) (idspace.Set[idspace.HistId], error)
}

// ColumnSearcher is the subset of colindex.Index the executor needs.
type ColumnSearcher interface {
	Search(name string, k int, filter *idspace.Set[idspace.ColId]) (idspace.Set[idspace.ColId], error)
}

// Highlights is the executor's document- and column-highlight payload,
// mirroring the Python original's DocumentHighlights/ColumnHighlights pair.
type Highlights struct {
	Doc map[idspace.DocId]map[string]string
	Col idspace.Set[idspace.ColId]
}

func emptyHighlights() Highlights {
	return Highlights{
		Doc: make(map[idspace.DocId]map[string]string),
		Col: idspace.NewSet[idspace.ColId](),
	}
}

// Options configures a single Execute call, mirroring spec.md §4.7's
// execute() flags.
type Options struct {
	Mode               percentile.Mode
	EnableHighlighting bool
	EnableFiltering    bool

	// EnableMerge governs how two sides' document highlights combine at a
	// boolean node when both are non-empty for the same field: merged
	// (union of <mark> spans) when true, left-side-wins when false. It has
	// no effect when EnableHighlighting is false, and no effect on column
	// highlights, which always union (there is no "side" to prefer for a
	// set of column ids).
	EnableMerge bool
}

// Result is the executor's output: the matching document ids, the
// per-query score accumulator and the merged highlights.
type Result struct {
	Docs       idspace.Set[idspace.DocId]
	Scores     map[idspace.DocId]float64
	Highlights Highlights
}

// Executor evaluates annotated parse trees against a fixed set of index
// adapters and id-space maps. An Executor is stateless between calls:
// all per-query mutable state (scores, the two prefilter cursors) lives
// in a state value constructed fresh inside Execute, so a single Executor
// may be shared across concurrently running queries (spec.md §5: "the
// executor state is per-query and must not be shared").
type Executor struct {
	Percentile PercentileSearcher
	Column     ColumnSearcher
	FullText   fulltext.Connector
	Maps       *idspace.Maps
}

// New builds an Executor from its three index adapters and the id-space maps.
func New(pctl PercentileSearcher, col ColumnSearcher, ft fulltext.Connector, maps *idspace.Maps) *Executor {
	return &Executor{Percentile: pctl, Column: col, FullText: ft, Maps: maps}
}

// Execute evaluates tree (already annotated by annotate.Annotate) and
// returns the matching document set, the accumulated scores and merged
// highlights.
func (ex *Executor) Execute(ctx context.Context, tree dsl.DocNode, ann *annotate.Annotations, opts Options) (Result, error) {
	st := &state{
		ex:   ex,
		ann:  ann,
		opts: opts,
		scores: make(map[idspace.DocId]float64),
	}
	docs, hl, err := st.evalDoc(ctx, tree)
	if err != nil {
		return Result{}, err
	}
	return Result{Docs: docs, Scores: st.scores, Highlights: hl}, nil
}

// state carries the per-query mutable cursors and score accumulator.
type state struct {
	ex   *Executor
	ann  *annotate.Annotations
	opts Options

	scores   map[idspace.DocId]float64
	lastDocs *idspace.Set[idspace.DocId]
}

func (st *state) evalDoc(ctx context.Context, n dsl.DocNode) (idspace.Set[idspace.DocId], Highlights, error) {
	switch t := n.(type) {
	case *dsl.QueryNode:
		leftDocs, leftH, err := st.evalDoc(ctx, t.Left)
		if err != nil {
			return idspace.Set[idspace.DocId]{}, Highlights{}, err
		}
		rightDocs, rightH, err := st.evalDoc(ctx, t.Right)
		if err != nil {
			return idspace.Set[idspace.DocId]{}, Highlights{}, err
		}

		var result idspace.Set[idspace.DocId]
		switch t.Op {
		case dsl.OpAnd:
			result = leftDocs.And(rightDocs)
		case dsl.OpOr:
			result = leftDocs.Or(rightDocs)
		case dsl.OpXor:
			result = leftDocs.Xor(rightDocs)
		}

		merged := st.mergeHighlights(leftH, rightH, result)
		return result, merged, nil

	case *dsl.ExprNode:
		return st.evalDoc(ctx, t.Child)

	case *dsl.NotExprNode:
		inner, _, err := st.evalDoc(ctx, t.Child)
		if err != nil {
			return idspace.Set[idspace.DocId]{}, Highlights{}, err
		}
		negated := inner.Not(st.ex.Maps.AllDocs())
		return negated, emptyHighlights(), nil

	case *dsl.TermNode:
		if t.Keyword != nil {
			return st.evalKeyword(ctx, t.Keyword)
		}
		return st.evalColumnTerm(ctx, t.Column)

	default:
		return idspace.NewSet[idspace.DocId](), emptyHighlights(), nil
	}
}

func (st *state) evalKeyword(ctx context.Context, kw *dsl.KeywordTerm) (idspace.Set[idspace.DocId], Highlights, error) {
	tag := st.ann.OfKeyword(kw)

	var filter *idspace.Set[idspace.DocId]
	if st.opts.EnableFiltering && tag.IsAndRight() && st.lastDocs != nil {
		filter = st.lastDocs
	}

	result, err := st.ex.FullText.Evaluate(ctx, kw.Lucene, filter, st.opts.EnableHighlighting)
	if err != nil {
		return idspace.Set[idspace.DocId]{}, Highlights{}, err
	}

	for _, d := range result.Docs {
		st.scores[d] += result.Scores[d]
	}

	docs := idspace.SetOf(result.Docs...)
	st.lastDocs = &docs

	h := emptyHighlights()
	if st.opts.EnableHighlighting {
		h.Doc = result.Highlights
	}
	return docs, h, nil
}

func (st *state) evalColumnTerm(ctx context.Context, col dsl.ColNode) (idspace.Set[idspace.DocId], Highlights, error) {
	cursor := &colCursor{}
	cols, err := st.evalCol(ctx, col, cursor)
	if err != nil {
		return idspace.Set[idspace.DocId]{}, Highlights{}, err
	}

	docs := st.ex.Maps.ColsToDocs(cols)
	h := emptyHighlights()
	if st.opts.EnableHighlighting {
		h.Col = cols
	}
	return docs, h, nil
}

// colCursor is the column-scope equivalent of state.lastDocs. Each
// Term(COL_OP) node starts an independent column-scope evaluation with its
// own cursor, matching annotate.Annotate's independent (parentOp, side)
// context per COL_OP boundary: prefiltering never crosses from one col(...)
// subtree into a sibling col(...) subtree.
type colCursor struct {
	lastCols *idspace.Set[idspace.ColId]
}

func (st *state) evalCol(ctx context.Context, n dsl.ColNode, cur *colCursor) (idspace.Set[idspace.ColId], error) {
	switch t := n.(type) {
	case *dsl.ColumnQueryNode:
		left, err := st.evalCol(ctx, t.Left, cur)
		if err != nil {
			return idspace.Set[idspace.ColId]{}, err
		}
		right, err := st.evalCol(ctx, t.Right, cur)
		if err != nil {
			return idspace.Set[idspace.ColId]{}, err
		}
		switch t.Op {
		case dsl.OpAnd:
			return left.And(right), nil
		case dsl.OpOr:
			return left.Or(right), nil
		case dsl.OpXor:
			return left.Xor(right), nil
		}
		return idspace.Set[idspace.ColId]{}, nil

	case *dsl.ColExprNode:
		return st.evalCol(ctx, t.Child, cur)

	case *dsl.NotColExprNode:
		inner, err := st.evalCol(ctx, t.Child, cur)
		if err != nil {
			return idspace.Set[idspace.ColId]{}, err
		}
		return inner.Not(st.ex.Maps.AllCols()), nil

	case *dsl.ColumnTermNode:
		if t.Percentile != nil {
			return st.evalPercentile(ctx, t.Percentile, cur)
		}
		return st.evalName(ctx, t.Name, cur)

	default:
		return idspace.NewSet[idspace.ColId](), nil
	}
}

func (st *state) evalPercentile(ctx context.Context, p *dsl.PercentileTerm, cur *colCursor) (idspace.Set[idspace.ColId], error) {
	tag := st.ann.OfPercentile(p)

	var histFilter *idspace.Set[idspace.HistId]
	if st.opts.EnableFiltering && tag.IsAndRight() && cur.lastCols != nil {
		hf := st.ex.Maps.ColsToHists(*cur.lastCols)
		histFilter = &hf
	}

	hists, err := st.ex.Percentile.Search(ctx, p.Pctl, p.Cmp, p.Ref, st.opts.Mode, histFilter)
	if err != nil {
		return idspace.Set[idspace.ColId]{}, err
	}

	cols := st.ex.Maps.HistsToCols(hists)
	cur.lastCols = &cols
	return cols, nil
}

func (st *state) evalName(ctx context.Context, n *dsl.NameTerm, cur *colCursor) (idspace.Set[idspace.ColId], error) {
	tag := st.ann.OfName(n)

	var colFilter *idspace.Set[idspace.ColId]
	if st.opts.EnableFiltering && tag.IsAndRight() && cur.lastCols != nil {
		colFilter = cur.lastCols
	}

	cols, err := st.ex.Column.Search(n.Text, n.K, colFilter)
	if err != nil {
		return idspace.Set[idspace.ColId]{}, err
	}
	cur.lastCols = &cols
	return cols, nil
}

// markPattern extracts <mark>...</mark> spans, matching the original's
// DOTALL regex so a mark can itself span embedded newlines.
var markPattern = regexp.MustCompile(`(?s)<mark>(.*?)</mark>`)

// mergeHighlights combines two subtrees' highlights at a boolean node,
// restricted to the documents that survive into result, per spec.md §4.5's
// "Highlight merging at a boolean node": document highlights merge
// per-field with mark-union semantics, column highlights union then
// filter down to columns whose owning document survived.
func (st *state) mergeHighlights(left, right Highlights, result idspace.Set[idspace.DocId]) Highlights {
	out := emptyHighlights()
	if !st.opts.EnableHighlighting {
		return out
	}

	for _, d := range result.ToSlice() {
		lf := left.Doc[d]
		rf := right.Doc[d]
		if len(lf) == 0 && len(rf) == 0 {
			continue
		}

		merged := make(map[string]string, len(lf)+len(rf))
		seen := make(map[string]struct{}, len(lf)+len(rf))
		for k := range lf {
			seen[k] = struct{}{}
		}
		for k := range rf {
			seen[k] = struct{}{}
		}
		for field := range seen {
			lt, rt := lf[field], rf[field]
			switch {
			case lt == "":
				merged[field] = rt
			case rt == "":
				merged[field] = lt
			case st.opts.EnableMerge:
				merged[field] = mergeMarks(lt, rt)
			default:
				merged[field] = lt
			}
		}
		out.Doc[d] = merged
	}

	colUnion := left.Col.Or(right.Col)
	out.Col = filterColsByDocs(colUnion, result, st.ex.Maps)
	return out
}

// mergeMarks takes base as the left snippet and folds every <mark>word</mark>
// span found in other into base: a word entirely absent from base is
// appended marked, a word present but unmarked gets wrapped in place.
// This is a literal substring operation (not token-aware): a marked word
// that is itself a substring of a longer word in base can over-match,
// exactly the ambiguity spec.md §9's design note calls out and tells
// implementations to document rather than silently resolve.
func mergeMarks(base, other string) string {
	for _, m := range markPattern.FindAllStringSubmatch(other, -1) {
		word := m[1]
		if word == "" {
			continue
		}
		if !strings.Contains(base, word) {
			base += " <mark>" + word + "</mark>"
			continue
		}
		marked := "<mark>" + word + "</mark>"
		if !strings.Contains(base, marked) {
			base = strings.ReplaceAll(base, word, marked)
		}
	}
	return base
}

// filterColsByDocs keeps only columns whose owning document is in docs.
func filterColsByDocs(cols idspace.Set[idspace.ColId], docs idspace.Set[idspace.DocId], maps *idspace.Maps) idspace.Set[idspace.ColId] {
	out := idspace.NewSet[idspace.ColId]()
	for _, c := range cols.ToSlice() {
		if d, ok := maps.DocOfCol(c); ok && docs.Contains(d) {
			out.Add(c)
		}
	}
	return out
}
