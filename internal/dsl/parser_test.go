package dsl

import (
	"testing"

	"github.com/fainderql/queryengine/internal/qerrors"
)

func mustParse(t *testing.T, text string) DocNode {
	t.Helper()
	tree, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q) unexpected error: %v", text, err)
	}
	return tree
}

func asKeywordTerm(t *testing.T, n DocNode) *KeywordTerm {
	t.Helper()
	term, ok := n.(*TermNode)
	if !ok || term.Keyword == nil {
		t.Fatalf("expected a keyword TermNode, got %#v", n)
	}
	return term.Keyword
}

func TestParse_SimpleKeyword(t *testing.T) {
	tree := mustParse(t, "kw(germany)")
	kw := asKeywordTerm(t, tree)
	if kw.Lucene != "germany" {
		t.Errorf("got lucene text %q", kw.Lucene)
	}
}

func TestParse_KeywordOperatorAliasesAndCase(t *testing.T) {
	for _, text := range []string{"kw(germany)", "KEYWORD(germany)", "Kw(germany)"} {
		tree := mustParse(t, text)
		if asKeywordTerm(t, tree).Lucene != "germany" {
			t.Errorf("%q: unexpected lucene text", text)
		}
	}
}

func TestParse_BoolOpsAreRightAssociative(t *testing.T) {
	tree := mustParse(t, "kw(a) AND kw(b) AND kw(c)")
	root, ok := tree.(*QueryNode)
	if !ok || root.Op != OpAnd {
		t.Fatalf("expected top-level AND QueryNode, got %#v", tree)
	}
	if asKeywordTerm(t, root.Left).Lucene != "a" {
		t.Errorf("left child should be the first keyword term")
	}
	right, ok := root.Right.(*QueryNode)
	if !ok || right.Op != OpAnd {
		t.Fatalf("expected right-recursive AND, got %#v", root.Right)
	}
	if asKeywordTerm(t, right.Left).Lucene != "b" || asKeywordTerm(t, right.Right).Lucene != "c" {
		t.Errorf("unexpected right subtree: %#v", right)
	}
}

func TestParse_NotBindsTighterThanBoolOp(t *testing.T) {
	tree := mustParse(t, "NOT kw(a) AND kw(b)")
	root, ok := tree.(*QueryNode)
	if !ok || root.Op != OpAnd {
		t.Fatalf("expected top-level AND, got %#v", tree)
	}
	notNode, ok := root.Left.(*NotExprNode)
	if !ok {
		t.Fatalf("expected NOT to apply only to the left keyword term, got %#v", root.Left)
	}
	if asKeywordTerm(t, notNode.Child).Lucene != "a" {
		t.Errorf("unexpected NOT child")
	}
}

func TestParse_NotOnParenthesizedQuery(t *testing.T) {
	tree := mustParse(t, "NOT (kw(a) OR kw(b))")
	notNode, ok := tree.(*NotExprNode)
	if !ok {
		t.Fatalf("expected NotExprNode, got %#v", tree)
	}
	inner, ok := notNode.Child.(*QueryNode)
	if !ok || inner.Op != OpOr {
		t.Fatalf("expected inner OR query, got %#v", notNode.Child)
	}
}

func TestParse_ParenthesesOverrideAssociativity(t *testing.T) {
	tree := mustParse(t, "(kw(a) AND kw(b)) OR kw(c)")
	root, ok := tree.(*QueryNode)
	if !ok || root.Op != OpOr {
		t.Fatalf("expected top-level OR, got %#v", tree)
	}
	if _, ok := root.Left.(*ExprNode); !ok {
		t.Fatalf("expected left child to be a parenthesized ExprNode, got %#v", root.Left)
	}
}

func TestParse_ColumnPercentileTerm(t *testing.T) {
	tree := mustParse(t, "col(pp(0.9;ge;1000000))")
	term, ok := tree.(*TermNode)
	if !ok || term.Column == nil {
		t.Fatalf("expected a column TermNode, got %#v", tree)
	}
	colTerm, ok := term.Column.(*ColumnTermNode)
	if !ok || colTerm.Percentile == nil {
		t.Fatalf("expected a ColumnTermNode with a PercentileTerm, got %#v", term.Column)
	}
	pt := colTerm.Percentile
	if pt.Pctl != 0.9 || pt.Cmp != CmpGe || pt.Ref != 1000000 {
		t.Errorf("unexpected percentile term: %+v", pt)
	}
}

func TestParse_ColumnNameTermKeepsQuotes(t *testing.T) {
	tree := mustParse(t, "col(name('Latitude';0))")
	term := tree.(*TermNode)
	colTerm := term.Column.(*ColumnTermNode)
	if colTerm.Name == nil || colTerm.Name.Text != "'Latitude'" || colTerm.Name.K != 0 {
		t.Fatalf("unexpected name term: %+v", colTerm.Name)
	}
}

func TestParse_ColumnBooleanNesting(t *testing.T) {
	tree := mustParse(t, "col((name('Latitude';0) AND pp(0.5;ge;50)) OR name('Longitude';0))")
	term := tree.(*TermNode)
	root, ok := term.Column.(*ColumnQueryNode)
	if !ok || root.Op != OpOr {
		t.Fatalf("expected top-level column OR, got %#v", term.Column)
	}
	left, ok := root.Left.(*ColExprNode)
	if !ok {
		t.Fatalf("expected parenthesized left child, got %#v", root.Left)
	}
	inner, ok := left.Child.(*ColumnQueryNode)
	if !ok || inner.Op != OpAnd {
		t.Fatalf("expected inner AND, got %#v", left.Child)
	}
}

func TestParse_KeywordForbiddenInColumnScope(t *testing.T) {
	_, err := Parse("col(kw(test))")
	assertParseError(t, err)
}

func TestParse_InvalidScenariosProduceParseError(t *testing.T) {
	cases := []string{
		"kw()",
		"pp(0.5;ge;20.0",
		"kw(test) INVALID pp(foo)",
		"NOT",
		"col(name('test'))",
		"col(pp(0.5;ge)",
	}
	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text)
			assertParseError(t, err)
		})
	}
}

func assertParseError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a ParseError, got nil")
	}
	if qerrors.KindOf(err) != qerrors.KindParse {
		t.Fatalf("expected KindParse, got %v", qerrors.KindOf(err))
	}
}

func TestParse_KeywordTextIsLosslessAcrossOperators(t *testing.T) {
	tree := mustParse(t, "kw(title:foo +bar -(baz qux))")
	kw := asKeywordTerm(t, tree)
	if kw.Lucene != "title:foo +bar -(baz qux)" {
		t.Errorf("lucene text was not preserved verbatim: %q", kw.Lucene)
	}
}
