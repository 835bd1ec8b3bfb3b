// Package bleveindex is the in-process full-text reference backend:
// a bleve-backed implementation of the same evaluate/recreate_index
// semantics the RPC connector talks to, grounded on the teacher's
// internal/store/bm25.go (index mapping, batch indexing, search-with-
// locations for highlight extraction).
package bleveindex

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/fainderql/queryengine/internal/idspace"
)

// Document is a single indexed dataset's full-text content, keyed by
// document id. Fields are indexed separately so per-field highlight
// snippets (spec.md's DocHighlights = DocId -> field -> snippet) can be
// produced from bleve's own per-field fragment extraction.
type Document struct {
	ID     idspace.DocId
	Fields map[string]string
}

type bleveDoc struct {
	Fields map[string]string `json:"fields"`
}

// Backend wraps a bleve.Index as the reference full-text engine. It is
// exercised directly in tests and served over JSON-RPC by fulltext.Server.
type Backend struct {
	mu    sync.RWMutex
	index bleve.Index
	docs  map[string]Document
}

// New creates an in-memory bleve-backed backend.
func New() (*Backend, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("bleveindex: create index: %w", err)
	}
	return &Backend{index: idx, docs: make(map[string]Document)}, nil
}

// Index adds or replaces documents in the backend.
func (b *Backend) Index(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, d := range docs {
		key := docKey(d.ID)
		if err := batch.Index(key, bleveDoc{Fields: d.Fields}); err != nil {
			return fmt.Errorf("bleveindex: index document %d: %w", d.ID, err)
		}
		b.docs[key] = d
	}
	return b.index.Batch(batch)
}

// Delete removes documents by id.
func (b *Backend) Delete(ids []idspace.DocId) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		key := docKey(id)
		if err := b.index.Delete(key); err != nil {
			return fmt.Errorf("bleveindex: delete document %d: %w", id, err)
		}
		delete(b.docs, key)
	}
	return nil
}

// Evaluate runs a lucene-syntax query (the same raw clause grammar
// spec.md §4.1's lucene_query captures) using bleve's query-string
// parser, which already understands AND/OR/+/-/field: syntax, and
// returns matching document ids with additive scores and, when
// requested, per-field highlight snippets.
func (b *Backend) Evaluate(ctx context.Context, queryStr string, docFilter *idspace.Set[idspace.DocId], highlight bool) (EvalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if strings.TrimSpace(queryStr) == "" {
		return EvalResult{}, nil
	}

	q := bleve.NewQueryStringQuery(queryStr)
	req := bleve.NewSearchRequest(q)
	req.Size = len(b.docs)
	if req.Size == 0 {
		req.Size = 1
	}
	req.IncludeLocations = highlight
	if highlight {
		req.Highlight = bleve.NewHighlight()
	}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return EvalResult{}, fmt.Errorf("bleveindex: search: %w", err)
	}

	out := EvalResult{
		Scores:     make(map[idspace.DocId]float64),
		Highlights: make(map[idspace.DocId]map[string]string),
	}
	for _, hit := range result.Hits {
		id, ok := idFromKey(hit.ID)
		if !ok {
			continue
		}
		if docFilter != nil && !docFilter.Contains(id) {
			continue
		}
		out.Docs = append(out.Docs, id)
		out.Scores[id] = hit.Score
		if highlight {
			out.Highlights[id] = extractFragments(hit)
		}
	}
	return out, nil
}

// RecreateIndex drops and rebuilds the in-memory index from whatever was
// last ingested via Index, matching the original's recreate_index
// control call.
func (b *Backend) RecreateIndex(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return fmt.Errorf("bleveindex: recreate index: %w", err)
	}
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("bleveindex: close old index: %w", err)
	}

	batch := idx.NewBatch()
	for key, d := range b.docs {
		if err := batch.Index(key, bleveDoc{Fields: d.Fields}); err != nil {
			return fmt.Errorf("bleveindex: reindex document %s: %w", key, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("bleveindex: rebuild batch: %w", err)
	}

	b.index = idx
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

// EvalResult mirrors fulltext.EvalResult's shape without importing the
// parent package (which would create an import cycle, since fulltext's
// Server imports bleveindex to serve it over RPC).
type EvalResult struct {
	Docs       []idspace.DocId
	Scores     map[idspace.DocId]float64
	Highlights map[idspace.DocId]map[string]string
}

func docKey(id idspace.DocId) string {
	return fmt.Sprintf("doc-%d", id)
}

func idFromKey(key string) (idspace.DocId, bool) {
	var n uint32
	if _, err := fmt.Sscanf(key, "doc-%d", &n); err != nil {
		return 0, false
	}
	return idspace.DocId(n), true
}

func extractFragments(hit *search.DocumentMatch) map[string]string {
	out := make(map[string]string)
	for field, frags := range hit.Fragments {
		if len(frags) > 0 {
			out[field] = strings.Join(frags, " ... ")
		}
	}
	return out
}
