package optimize

import (
	"testing"

	"github.com/fainderql/queryengine/internal/dsl"
)

func parse(t *testing.T, text string) dsl.DocNode {
	t.Helper()
	tree, err := dsl.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return tree
}

func TestMergeKeywords_FusesAdjacentSiblings(t *testing.T) {
	tree := parse(t, "kw(a) AND kw(b)")
	out := mergeKeywordsDoc(tree)

	term, ok := out.(*dsl.TermNode)
	if !ok || term.Keyword == nil {
		t.Fatalf("expected a fused keyword TermNode, got %#v", out)
	}
	if term.Keyword.Lucene != "a AND b" {
		t.Errorf("got fused payload %q", term.Keyword.Lucene)
	}
}

func TestMergeKeywords_FusesBottomUpAcrossThreeTerms(t *testing.T) {
	tree := parse(t, "kw(a) AND kw(b) AND kw(c)")
	out := mergeKeywordsDoc(tree)

	term, ok := out.(*dsl.TermNode)
	if !ok || term.Keyword == nil {
		t.Fatalf("expected everything fused into one keyword term, got %#v", out)
	}
	if term.Keyword.Lucene != "a AND b AND c" {
		t.Errorf("got fused payload %q", term.Keyword.Lucene)
	}
}

func TestMergeKeywords_XorDoesNotFuse(t *testing.T) {
	tree := parse(t, "kw(a) XOR kw(b)")
	out := mergeKeywordsDoc(tree)

	if _, ok := out.(*dsl.TermNode); ok {
		t.Fatalf("XOR should not merge keyword siblings, got %#v", out)
	}
}

func TestMergeKeywords_NegatedSiblingBlocksFusion(t *testing.T) {
	tree := parse(t, "NOT kw(a) AND kw(b)")
	out := mergeKeywordsDoc(tree)

	root, ok := out.(*dsl.QueryNode)
	if !ok {
		t.Fatalf("negated sibling should not fuse, got %#v", out)
	}
	if _, ok := root.Left.(*dsl.NotExprNode); !ok {
		t.Fatalf("expected left child to remain a NotExprNode, got %#v", root.Left)
	}
}

func TestMergeKeywords_DoesNotCrossColumnScope(t *testing.T) {
	tree := parse(t, "kw(a) AND col(name('x';0))")
	out := mergeKeywordsDoc(tree)

	root, ok := out.(*dsl.QueryNode)
	if !ok {
		t.Fatalf("expected the AND to survive (nothing to fuse), got %#v", out)
	}
	if _, ok := root.Right.(*dsl.TermNode); !ok {
		t.Fatalf("expected right child unchanged, got %#v", root.Right)
	}
}

func TestReorderByCost_CheaperSideMovesLeft(t *testing.T) {
	// percentile (cost 100) should move to the right of the cheaper keyword (cost 10).
	tree := parse(t, "col(pp(0.5;ge;20.0)) AND kw(germany)")
	out := reorderDoc(tree, DefaultCostModel())

	root, ok := out.(*dsl.QueryNode)
	if !ok {
		t.Fatalf("expected QueryNode, got %#v", out)
	}
	left, ok := root.Left.(*dsl.TermNode)
	if !ok || left.Keyword == nil {
		t.Fatalf("expected the cheap keyword term to move left, got %#v", root.Left)
	}
	right, ok := root.Right.(*dsl.TermNode)
	if !ok || right.Column == nil {
		t.Fatalf("expected the percentile term to move right, got %#v", root.Right)
	}
}

func TestReorderByCost_OrIsNotReordered(t *testing.T) {
	tree := parse(t, "col(pp(0.5;ge;20.0)) OR kw(germany)")
	out := reorderDoc(tree, DefaultCostModel())

	root := out.(*dsl.QueryNode)
	left, ok := root.Left.(*dsl.TermNode)
	if !ok || left.Column == nil {
		t.Fatalf("OR should preserve child order, got %#v", root.Left)
	}
}

func TestReorderByCost_WithinColumnScope(t *testing.T) {
	tree := parse(t, "col(pp(0.5;ge;20.0) AND name('x';0))")
	out := reorderDoc(tree, DefaultCostModel())

	colQuery := out.(*dsl.TermNode).Column.(*dsl.ColumnQueryNode)
	left, ok := colQuery.Left.(*dsl.ColumnTermNode)
	if !ok || left.Name == nil {
		t.Fatalf("expected the cheaper name term to move left, got %#v", colQuery.Left)
	}
}

func TestOptimize_MergeThenReorder(t *testing.T) {
	tree := parse(t, "col(pp(0.5;ge;20.0)) AND kw(a) AND kw(b)")
	out := Optimize(tree, Options{MergeKeywords: true, ReorderByCost: true, Cost: DefaultCostModel()})

	root, ok := out.(*dsl.QueryNode)
	if !ok || root.Op != dsl.OpAnd {
		t.Fatalf("expected top-level AND, got %#v", out)
	}
	left, ok := root.Left.(*dsl.TermNode)
	if !ok || left.Keyword == nil || left.Keyword.Lucene != "a AND b" {
		t.Fatalf("expected fused keyword term to sort to the left, got %#v", root.Left)
	}
}
