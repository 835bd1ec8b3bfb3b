package annotate

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

func TestAnnotate_BareKeywordHasNoOp(t *testing.T) {
	tree := parse(t, "kw(germany)")
	ann := Annotate(tree)
	kw := tree.(*dsl.TermNode).Keyword
	tag := ann.OfKeyword(kw)
	if tag.HasOp {
		t.Fatalf("expected no enclosing operator, got %+v", tag)
	}
}

// Scenario 4 from spec.md §8: kw('germany') AND col(pp(0.5;ge;20.0)).
// Document scope and column scope keep independent contexts: the
// percentile term's enclosing operator is the doc-scope AND's right side,
// but that context does not cross the COL_OP boundary, so the lone
// percentile term inside col(...) has no column-scope operator of its own.
func TestAnnotate_ScopesAreIndependent(t *testing.T) {
	tree := parse(t, "kw(germany) AND col(pp(0.5;ge;20.0))")
	root := tree.(*dsl.QueryNode)
	ann := Annotate(tree)

	kw := root.Left.(*dsl.TermNode).Keyword
	kwTag := ann.OfKeyword(kw)
	if !kwTag.HasOp || kwTag.Op != dsl.OpAnd || kwTag.Side != SideLeft {
		t.Fatalf("keyword term: got %+v", kwTag)
	}

	colTerm := root.Right.(*dsl.TermNode).Column.(*dsl.ColumnTermNode)
	pctTag := ann.OfPercentile(colTerm.Percentile)
	if pctTag.HasOp {
		t.Fatalf("percentile term should have no column-scope operator, got %+v", pctTag)
	}
}

func TestAnnotate_ColumnScopeBooleanTagsBothSides(t *testing.T) {
	tree := parse(t, "col(name('Latitude';0) AND pp(0.5;ge;50))")
	ann := Annotate(tree)

	colQuery := tree.(*dsl.TermNode).Column.(*dsl.ColumnQueryNode)
	nameTerm := colQuery.Left.(*dsl.ColumnTermNode).Name
	pctTerm := colQuery.Right.(*dsl.ColumnTermNode).Percentile

	nameTag := ann.OfName(nameTerm)
	if !nameTag.HasOp || nameTag.Op != dsl.OpAnd || nameTag.Side != SideLeft {
		t.Fatalf("name term: got %+v", nameTag)
	}

	pctTag := ann.OfPercentile(pctTerm)
	if !pctTag.HasOp || pctTag.Op != dsl.OpAnd || pctTag.Side != SideRight {
		t.Fatalf("percentile term: got %+v", pctTag)
	}
	if !pctTag.IsAndRight() {
		t.Fatalf("expected IsAndRight() to hold for %+v", pctTag)
	}
}

func TestAnnotate_NotInheritsOuterSide(t *testing.T) {
	// NOT kw(a) AND kw(b): the left child of the top AND is NotExprNode(kw(a)).
	// Per spec.md §9 Open Question (i), the negated leaf inherits the
	// outer (AND, left) tag rather than receiving no tag at all.
	tree := parse(t, "NOT kw(a) AND kw(b)")
	root := tree.(*dsl.QueryNode)
	ann := Annotate(tree)

	notNode := root.Left.(*dsl.NotExprNode)
	innerKw := notNode.Child.(*dsl.TermNode).Keyword
	tag := ann.OfKeyword(innerKw)
	if !tag.HasOp || tag.Op != dsl.OpAnd || tag.Side != SideLeft {
		t.Fatalf("negated leaf: got %+v", tag)
	}
}

func TestAnnotate_ParenthesesDoNotResetContext(t *testing.T) {
	tree := parse(t, "(kw(a)) AND kw(b)")
	root := tree.(*dsl.QueryNode)
	ann := Annotate(tree)

	expr := root.Left.(*dsl.ExprNode)
	kw := expr.Child.(*dsl.TermNode).Keyword
	tag := ann.OfKeyword(kw)
	if !tag.HasOp || tag.Side != SideLeft {
		t.Fatalf("parenthesized leaf: got %+v", tag)
	}
}
