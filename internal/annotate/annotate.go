// Package annotate implements the top-down annotation pass (C7): for each
// percentile, keyword and name leaf in a parsed tree (including the leaves
// inside a column query), it
// records the boolean operator and side of the nearest enclosing query
// node, so the executor (C8) knows when it may apply one-sided
// left-to-right prefiltering.
//
// Document scope and column scope keep independent (parentOp, side)
// contexts: entering a COL_OP term starts a fresh column-scope context
// rather than inheriting whatever document-scope operator wraps it. A NOT
// does not push its own context; per spec.md §9's Open Question (i), a
// leaf under a NOT inherits the side tag of the boolean context outside
// the negation.
package annotate

import "github.com/fainderql/queryengine/internal/dsl"

// Side is the evaluation order of a leaf relative to its enclosing
// boolean operator.
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// Tag is the (parentOp, side) metadata attached to a single leaf. A leaf
// with no enclosing boolean operator has HasOp == false.
type Tag struct {
	Op    dsl.BoolOp
	Side  Side
	HasOp bool
}

// IsAndRight reports whether this leaf sits on the right side of an AND
// node — the one case where the executor's prefilter applies.
func (t Tag) IsAndRight() bool {
	return t.HasOp && t.Op == dsl.OpAnd && t.Side == SideRight
}

// Annotations is the result of a single annotation pass, keyed by leaf
// pointer identity (each leaf struct is allocated once by the parser).
type Annotations struct {
	Keyword    map[*dsl.KeywordTerm]Tag
	Percentile map[*dsl.PercentileTerm]Tag
	Name       map[*dsl.NameTerm]Tag
}

// OfKeyword returns the keyword term's tag, or the zero Tag if not annotated.
func (a *Annotations) OfKeyword(k *dsl.KeywordTerm) Tag {
	return a.Keyword[k]
}

// OfPercentile returns the percentile term's tag, or the zero Tag.
func (a *Annotations) OfPercentile(p *dsl.PercentileTerm) Tag {
	return a.Percentile[p]
}

// OfName returns the name term's tag, or the zero Tag.
func (a *Annotations) OfName(n *dsl.NameTerm) Tag {
	return a.Name[n]
}

// Annotate walks tree top-down and returns its leaf annotations.
func Annotate(tree dsl.DocNode) *Annotations {
	a := &Annotations{
		Keyword:    make(map[*dsl.KeywordTerm]Tag),
		Percentile: make(map[*dsl.PercentileTerm]Tag),
		Name:       make(map[*dsl.NameTerm]Tag),
	}
	visitDoc(a, tree, Tag{})
	return a
}

func visitDoc(a *Annotations, n dsl.DocNode, ctx Tag) {
	switch t := n.(type) {
	case *dsl.QueryNode:
		visitDoc(a, t.Left, Tag{Op: t.Op, Side: SideLeft, HasOp: true})
		visitDoc(a, t.Right, Tag{Op: t.Op, Side: SideRight, HasOp: true})
	case *dsl.ExprNode:
		visitDoc(a, t.Child, ctx)
	case *dsl.NotExprNode:
		visitDoc(a, t.Child, ctx)
	case *dsl.TermNode:
		switch {
		case t.Keyword != nil:
			a.Keyword[t.Keyword] = ctx
		case t.Column != nil:
			// Column scope starts its own, independent context.
			visitCol(a, t.Column, Tag{})
		}
	}
}

func visitCol(a *Annotations, n dsl.ColNode, ctx Tag) {
	switch t := n.(type) {
	case *dsl.ColumnQueryNode:
		visitCol(a, t.Left, Tag{Op: t.Op, Side: SideLeft, HasOp: true})
		visitCol(a, t.Right, Tag{Op: t.Op, Side: SideRight, HasOp: true})
	case *dsl.ColExprNode:
		visitCol(a, t.Child, ctx)
	case *dsl.NotColExprNode:
		visitCol(a, t.Child, ctx)
	case *dsl.ColumnTermNode:
		switch {
		case t.Percentile != nil:
			a.Percentile[t.Percentile] = ctx
		case t.Name != nil:
			a.Name[t.Name] = ctx
		}
	}
}
