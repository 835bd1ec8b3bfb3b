// Package qcache memoizes execute results keyed on the normalized query
// text and the evaluation flags that can change its outcome, following the
// cache shape from original_source/backend/backend/query_evaluator.py's
// QueryEvaluator.execute: a bounded LRU that is checked before the
// parse/optimize/annotate/exec pipeline runs and invalidated wholesale on
// any index swap.
package qcache

import (
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/percentile"
)

// DefaultSize mirrors the teacher's embedding cache default.
const DefaultSize = 1000

// Key identifies a cached execute call. All fields participate in equality,
// matching the cache entry definition: a query with highlighting enabled is
// a different cache entry than the same query without it.
type Key struct {
	Query              string
	Mode               percentile.Mode
	EnableHighlighting bool
	EnableFiltering    bool
	EnableMerge        bool
}

// Normalize collapses runs of whitespace and trims the ends so that
// `kw(a)  AND kw(b)` and `kw(a) AND kw(b)` share a cache entry. It does not
// reorder or otherwise canonicalize the query, since doing so would require
// parsing first and the cache is consulted before parsing.
func Normalize(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}

// Entry is the memoized result of one execute call: a ranked document list
// (already sorted by the engine) plus any document and column highlights.
type Entry struct {
	Docs   []idspace.DocId
	Scores map[idspace.DocId]float64
	DocHi  map[idspace.DocId]map[string]string
	ColHi  idspace.Set[idspace.ColId]
}

// Info reports cache occupancy and hit/miss counters, per the
// cache_info() contract.
type Info struct {
	Hits     uint64
	Misses   uint64
	MaxSize  int
	CurrSize int
}

// Cache is a bounded LRU of Key -> Entry with manual hit/miss tracking;
// golang-lru/v2 itself does not expose those counts.
type Cache struct {
	mu      sync.RWMutex
	lru     *lru.Cache[Key, Entry]
	maxSize int
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// New builds a cache holding up to size entries. size <= 0 falls back to
// DefaultSize.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	l, _ := lru.New[Key, Entry](size)
	return &Cache{lru: l, maxSize: size}
}

// Get returns the cached entry for key, if present, recording a hit or
// miss accordingly.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return entry, ok
}

// Put stores entry under key, evicting the least recently used entry if the
// cache is at capacity.
func (c *Cache) Put(key Key, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry)
}

// Clear empties the cache. Callers invoke this on an atomic index swap, per
// the rule that any index update invalidates previously memoized results.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Info reports current hit/miss counters and occupancy. Hit/miss counters
// accumulate for the lifetime of the cache and are not reset by Clear,
// matching the teacher's convention of counters as monotonic telemetry.
func (c *Cache) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Info{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		MaxSize:  c.maxSize,
		CurrSize: c.lru.Len(),
	}
}
