// Package fulltext implements the full-text connector (C4): an RPC
// client to a keyword-search backend that returns matching document ids,
// additive keyword scores, and per-field highlight snippets.
//
// Grounded on the teacher's internal/daemon (JSON-RPC 2.0 request/
// response envelope, lazy per-call Connect, atomic request-id counter)
// for the RPC client shape, and internal/errors/circuit.go for the
// fail-soft treatment of RPC failures (a failed call is not retried):
// per spec.md §7, a TransientBackendError degrades to an empty result
// rather than surfacing as a query failure, while RecreateIndex surfaces
// IndexingError upward unconditionally.
package fulltext

import (
	"context"

	"github.com/fainderql/queryengine/internal/idspace"
)

// EvalResult is C4's evaluate return value: the matching document ids,
// their additive keyword scores, and any requested highlight snippets.
type EvalResult struct {
	Docs       []idspace.DocId
	Scores     map[idspace.DocId]float64
	Highlights map[idspace.DocId]map[string]string
}

// Connector is the full-text backend interface the executor (C8) drives.
type Connector interface {
	// Evaluate runs a lucene-syntax query, restricted to docFilter when
	// non-nil, and requests highlight snippets when highlight is true.
	// A transient RPC failure returns a zero EvalResult and a nil error:
	// callers must not treat an empty result as a query failure.
	Evaluate(ctx context.Context, query string, docFilter *idspace.Set[idspace.DocId], highlight bool) (EvalResult, error)

	// RecreateIndex rebuilds the backend's index from scratch. Unlike
	// Evaluate, failures here are not degraded: they surface as
	// IndexingError.
	RecreateIndex(ctx context.Context) error

	Close() error
}
