// Package optimize implements the parse-tree rewrites (C6): R1 fuses
// adjacent keyword-term siblings into a single keyword term delegated to
// the full-text backend, and R2 reorders the children of AND nodes so the
// cheaper side runs first and prefilters the more expensive side. Both
// rewrites must preserve the document-set result (spec.md P2); neither
// rewrite changes a node's type, only its shape or the order of an AND's
// children, so nothing downstream needs to special-case a rewritten tree.
package optimize

import (
	"fmt"

	"github.com/fainderql/queryengine/internal/dsl"
)

// CostModel assigns an integer cost to each leaf kind, used by R2 to pick
// the cheaper side of an AND node. The defaults are the example values
// from spec.md §4.2; spec.md §9 Open Question (ii) notes they are
// uncalibrated and meant to be tunable.
type CostModel struct {
	Keyword    int
	Percentile int
	NameKNN    int
}

// DefaultCostModel returns spec.md §4.2's example costs.
func DefaultCostModel() CostModel {
	return CostModel{Keyword: 10, Percentile: 100, NameKNN: 50}
}

// Options selects which rewrites run, matching internal/config's
// OptimizerConfig.
type Options struct {
	MergeKeywords bool
	ReorderByCost bool
	Cost          CostModel
}

// Optimize applies the enabled rewrites to tree and returns the rewritten
// tree. Merging runs before reordering: a freshly fused keyword term
// changes the cost of its new parent, and reordering should see the
// post-merge shape.
func Optimize(tree dsl.DocNode, opts Options) dsl.DocNode {
	out := tree
	if opts.MergeKeywords {
		out = mergeKeywordsDoc(out)
	}
	if opts.ReorderByCost {
		cm := opts.Cost
		if cm == (CostModel{}) {
			cm = DefaultCostModel()
		}
		out = reorderDoc(out, cm)
	}
	return out
}

// --- R1: keyword merging ---

// unwrapKeyword reduces n through Expr wrappers to a bare keyword term, if
// n is one. A NotExprNode is not reducible this way: a negated keyword is
// not the same predicate as the keyword itself, so NOT blocks merging.
func unwrapKeyword(n dsl.DocNode) (*dsl.KeywordTerm, bool) {
	switch t := n.(type) {
	case *dsl.TermNode:
		if t.Keyword != nil {
			return t.Keyword, true
		}
		return nil, false
	case *dsl.ExprNode:
		return unwrapKeyword(t.Child)
	default:
		return nil, false
	}
}

func mergeKeywordsDoc(n dsl.DocNode) dsl.DocNode {
	switch t := n.(type) {
	case *dsl.QueryNode:
		left := mergeKeywordsDoc(t.Left)
		right := mergeKeywordsDoc(t.Right)

		// Conservative choice per spec.md §9 Open Question (iii): only
		// AND/OR participate in keyword merging, not XOR.
		if t.Op != dsl.OpXor {
			if lk, lok := unwrapKeyword(left); lok {
				if rk, rok := unwrapKeyword(right); rok {
					fused := fmt.Sprintf("%s %s %s", lk.Lucene, t.Op, rk.Lucene)
					return &dsl.TermNode{Keyword: &dsl.KeywordTerm{Lucene: fused}}
				}
			}
		}
		return &dsl.QueryNode{Left: left, Op: t.Op, Right: right}

	case *dsl.ExprNode:
		return &dsl.ExprNode{Child: mergeKeywordsDoc(t.Child)}

	case *dsl.NotExprNode:
		return &dsl.NotExprNode{Child: mergeKeywordsDoc(t.Child)}

	case *dsl.TermNode:
		// Column scope never holds keyword terms, nothing to fuse there.
		return t

	default:
		return n
	}
}

// --- R2: cost-based reordering ---

// docCost estimates a subtree's cost as the sum of its leaf costs. The
// oracle in spec.md §4.2 only defines per-leaf costs; summing leaves is
// the natural extension to internal nodes for comparing AND children.
func docCost(n dsl.DocNode, cm CostModel) int {
	switch t := n.(type) {
	case *dsl.QueryNode:
		return docCost(t.Left, cm) + docCost(t.Right, cm)
	case *dsl.ExprNode:
		return docCost(t.Child, cm)
	case *dsl.NotExprNode:
		return docCost(t.Child, cm)
	case *dsl.TermNode:
		if t.Keyword != nil {
			return cm.Keyword
		}
		if t.Column != nil {
			return colCost(t.Column, cm)
		}
	}
	return 0
}

func colCost(n dsl.ColNode, cm CostModel) int {
	switch t := n.(type) {
	case *dsl.ColumnQueryNode:
		return colCost(t.Left, cm) + colCost(t.Right, cm)
	case *dsl.ColExprNode:
		return colCost(t.Child, cm)
	case *dsl.NotColExprNode:
		return colCost(t.Child, cm)
	case *dsl.ColumnTermNode:
		if t.Percentile != nil {
			return cm.Percentile
		}
		if t.Name != nil {
			return cm.NameKNN
		}
	}
	return 0
}

func reorderDoc(n dsl.DocNode, cm CostModel) dsl.DocNode {
	switch t := n.(type) {
	case *dsl.QueryNode:
		left := reorderDoc(t.Left, cm)
		right := reorderDoc(t.Right, cm)
		if t.Op == dsl.OpAnd && docCost(right, cm) < docCost(left, cm) {
			left, right = right, left
		}
		return &dsl.QueryNode{Left: left, Op: t.Op, Right: right}

	case *dsl.ExprNode:
		return &dsl.ExprNode{Child: reorderDoc(t.Child, cm)}

	case *dsl.NotExprNode:
		// NOT is never reordered (spec.md §4.2); it has only one child anyway.
		return &dsl.NotExprNode{Child: reorderDoc(t.Child, cm)}

	case *dsl.TermNode:
		if t.Column != nil {
			return &dsl.TermNode{Column: reorderCol(t.Column, cm)}
		}
		return t

	default:
		return n
	}
}

func reorderCol(n dsl.ColNode, cm CostModel) dsl.ColNode {
	switch t := n.(type) {
	case *dsl.ColumnQueryNode:
		left := reorderCol(t.Left, cm)
		right := reorderCol(t.Right, cm)
		if t.Op == dsl.OpAnd && colCost(right, cm) < colCost(left, cm) {
			left, right = right, left
		}
		return &dsl.ColumnQueryNode{Left: left, Op: t.Op, Right: right}

	case *dsl.ColExprNode:
		return &dsl.ColExprNode{Child: reorderCol(t.Child, cm)}

	case *dsl.NotColExprNode:
		return &dsl.NotColExprNode{Child: reorderCol(t.Child, cm)}

	case *dsl.ColumnTermNode:
		return t

	default:
		return n
	}
}
