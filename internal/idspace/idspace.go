// Package idspace holds the static id-space maps (C1) and the typed
// roaring-bitmap sets used as carriers in every other component: document,
// column and histogram ids are all dense uint32s, but they are never
// interchangeable — Set is parameterized by a phantom id type so that a
// ColSet and a DocSet are distinct Go types even though both wrap a
// *roaring.Bitmap.
package idspace

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// DocId, ColId and HistId are the three id spaces named in spec.md §3.
// All three are dense uint32s assigned at indexing time.
type (
	DocId  uint32
	ColId  uint32
	HistId uint32
)

// idLike restricts Set's type parameter to the three id spaces.
type idLike interface {
	DocId | ColId | HistId
}

// Set is a typed wrapper around a roaring bitmap. Two sets over different
// id spaces are different Go types, so crossing scopes always requires an
// explicit conversion through the Maps below.
type Set[T idLike] struct {
	bm *roaring.Bitmap
}

// NewSet returns an empty set.
func NewSet[T idLike]() Set[T] {
	return Set[T]{bm: roaring.New()}
}

// SetOf returns a set containing exactly the given ids.
func SetOf[T idLike](ids ...T) Set[T] {
	s := NewSet[T]()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id into the set.
func (s Set[T]) Add(id T) {
	s.bm.Add(uint32(id))
}

// Contains reports whether id is a member.
func (s Set[T]) Contains(id T) bool {
	return s.bm.Contains(uint32(id))
}

// Len returns the number of members.
func (s Set[T]) Len() int {
	return int(s.bm.GetCardinality())
}

// ToSlice returns the members in ascending order.
func (s Set[T]) ToSlice() []T {
	raw := s.bm.ToArray()
	out := make([]T, len(raw))
	for i, v := range raw {
		out[i] = T(v)
	}
	return out
}

// Clone returns an independent copy.
func (s Set[T]) Clone() Set[T] {
	return Set[T]{bm: s.bm.Clone()}
}

// And returns the intersection of s and other (P4 boolean laws).
func (s Set[T]) And(other Set[T]) Set[T] {
	return Set[T]{bm: roaring.And(s.bm, other.bm)}
}

// Or returns the union of s and other.
func (s Set[T]) Or(other Set[T]) Set[T] {
	return Set[T]{bm: roaring.Or(s.bm, other.bm)}
}

// Xor returns the symmetric difference of s and other.
func (s Set[T]) Xor(other Set[T]) Set[T] {
	return Set[T]{bm: roaring.Xor(s.bm, other.bm)}
}

// AndNot returns members of s that are not in other.
func (s Set[T]) AndNot(other Set[T]) Set[T] {
	return Set[T]{bm: roaring.AndNot(s.bm, other.bm)}
}

// Not returns the complement of s within universe (used for document-scope
// and column-scope NOT per spec.md §4.5).
func (s Set[T]) Not(universe Set[T]) Set[T] {
	return universe.AndNot(s)
}

// IsEmpty reports whether the set has no members.
func (s Set[T]) IsEmpty() bool {
	return s.bm.IsEmpty()
}

// Maps are the static id-space maps (C1), loaded once at startup and
// immutable until an atomic swap (internal/persist).
type Maps struct {
	docToCols map[DocId]Set[ColId]
	colToDoc  map[ColId]DocId
	colToHist map[ColId]HistId
	histToCol map[HistId]ColId

	allDocs Set[DocId]
	allCols Set[ColId]
}

// NewMaps validates and wraps the four raw maps described in spec.md §3.
// It enforces invariants 1 and 2: col_to_doc[c]=d implies c in
// doc_to_cols[d], and col_to_hist[c]=h implies hist_to_col[h]=c.
func NewMaps(docToCols map[DocId]Set[ColId], colToDoc map[ColId]DocId, colToHist map[ColId]HistId, histToCol map[HistId]ColId) (*Maps, error) {
	for c, d := range colToDoc {
		cols, ok := docToCols[d]
		if !ok || !cols.Contains(c) {
			return nil, fmt.Errorf("idspace: invariant violated: col_to_doc[%d]=%d but %d not in doc_to_cols[%d]", c, d, c, d)
		}
	}
	for c, h := range colToHist {
		if back, ok := histToCol[h]; !ok || back != c {
			return nil, fmt.Errorf("idspace: invariant violated: col_to_hist[%d]=%d but hist_to_col[%d]!=%d", c, h, h, c)
		}
	}

	allDocs := NewSet[DocId]()
	for d := range docToCols {
		allDocs.Add(d)
	}
	allCols := NewSet[ColId]()
	for c := range colToDoc {
		allCols.Add(c)
	}

	return &Maps{
		docToCols: docToCols,
		colToDoc:  colToDoc,
		colToHist: colToHist,
		histToCol: histToCol,
		allDocs:   allDocs,
		allCols:   allCols,
	}, nil
}

// AllDocs returns the full DocId universe, used as the NOT complement base
// in document scope.
func (m *Maps) AllDocs() Set[DocId] {
	return m.allDocs.Clone()
}

// AllCols returns the full ColId universe, used as the NOT complement base
// in column scope.
func (m *Maps) AllCols() Set[ColId] {
	return m.allCols.Clone()
}

// ColsOfDoc returns the columns belonging to a single document.
func (m *Maps) ColsOfDoc(d DocId) Set[ColId] {
	if cols, ok := m.docToCols[d]; ok {
		return cols.Clone()
	}
	return NewSet[ColId]()
}

// DocOfCol returns the single document a column belongs to.
func (m *Maps) DocOfCol(c ColId) (DocId, bool) {
	d, ok := m.colToDoc[c]
	return d, ok
}

// DocToColsUnion implements the Python original's doc_to_col_ids: the union
// of doc_to_cols[d] over every d in docs.
func (m *Maps) DocToColsUnion(docs Set[DocId]) Set[ColId] {
	out := NewSet[ColId]()
	for _, d := range docs.ToSlice() {
		if cols, ok := m.docToCols[d]; ok {
			out = out.Or(cols)
		}
	}
	return out
}

// ColsToDocs implements the Python original's col_to_doc_ids: every column's
// owning document, collected into a set (so the result may be smaller than
// the input).
func (m *Maps) ColsToDocs(cols Set[ColId]) Set[DocId] {
	out := NewSet[DocId]()
	for _, c := range cols.ToSlice() {
		if d, ok := m.colToDoc[c]; ok {
			out.Add(d)
		}
	}
	return out
}

// ColsToHists implements the Python original's col_to_hist_ids. Columns
// with no histogram (non-numeric columns) are dropped, matching the
// original's partial-map semantics.
func (m *Maps) ColsToHists(cols Set[ColId]) Set[HistId] {
	out := NewSet[HistId]()
	for _, c := range cols.ToSlice() {
		if h, ok := m.colToHist[c]; ok {
			out.Add(h)
		}
	}
	return out
}

// HistsToCols implements the Python original's hist_to_col_ids. hist_to_col
// is total, so every input histogram id maps to exactly one column.
func (m *Maps) HistsToCols(hists Set[HistId]) Set[ColId] {
	out := NewSet[ColId]()
	for _, h := range hists.ToSlice() {
		if c, ok := m.histToCol[h]; ok {
			out.Add(c)
		}
	}
	return out
}

// HasHistogram reports whether a column has an associated histogram
// (col_to_hist is partial: only numeric columns are present).
func (m *Maps) HasHistogram(c ColId) (HistId, bool) {
	h, ok := m.colToHist[c]
	return h, ok
}
