// Package colindex implements the column-name k-NN index (C3): an
// approximate-nearest-neighbor lookup over column-name embedding
// vectors, grounded on the teacher's internal/store/hnsw.go HNSWStore
// wrapping github.com/coder/hnsw.
//
// Unlike the teacher, which embeds caller-supplied text on the fly via
// an external embedding backend, this index never computes an embedding
// itself: both ingestion and query resolve a name to a vector through a
// stored name-to-vector table, mirroring the Python original's
// ColumnSearch, which only ever reads precomputed name_to_vector maps.
// Searching for a name absent from that table is a ColumnSearchError,
// not a fallback embedding call.
package colindex

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/qerrors"
)

// Mode selects the column-name search strategy. Only ModeExact is
// implemented; ModeFuzzy and ModeSemantic are named per SPEC_FULL.md §5
// feature 1 (mirroring the original's NotImplementedError stubs) so
// callers get an explicit ColumnSearchError instead of a silent fallback
// or a panic.
type Mode int

const (
	ModeExact Mode = iota
	ModeFuzzy
	ModeSemantic
)

// Config mirrors internal/config.ColIndexConfig.
type Config struct {
	EfSearch          int
	EfConstruction    int
	M                 int
	MinUsabilityScore float64
	UseUsabilityScore bool
}

// Index is the loaded column-name HNSW index.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	cfg   Config

	nameToVector map[string][]float32
	usability    map[idspace.ColId]float64

	idMap   map[idspace.ColId]uint64
	keyMap  map[uint64]idspace.ColId
	nextKey uint64
}

// metadata is the gob-encoded sidecar persisted alongside the graph,
// matching the teacher's hnswMetadata split between Save/Load.
type metadata struct {
	NameToVector map[string][]float32
	Usability    map[idspace.ColId]float64
	IDMap        map[idspace.ColId]uint64
	NextKey      uint64
	Cfg          Config
}

// New builds an empty column-name index.
func New(cfg Config) *Index {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Index{
		graph:        graph,
		cfg:          cfg,
		nameToVector: make(map[string][]float32),
		usability:    make(map[idspace.ColId]float64),
		idMap:        make(map[idspace.ColId]uint64),
		keyMap:       make(map[uint64]idspace.ColId),
	}
}

// Add ingests a column's name embedding. Re-adding an existing ColId
// updates the name-to-vector mapping and lazily orphans its old graph
// node rather than deleting it — the teacher's hnsw.go notes coder/hnsw
// has a bug deleting the last node, so every add-path in the pack avoids
// Graph.Delete entirely.
func (ix *Index) Add(col idspace.ColId, name string, vector []float32, usabilityScore float64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if existing, ok := ix.idMap[col]; ok {
		delete(ix.keyMap, existing)
		delete(ix.idMap, col)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	key := ix.nextKey
	ix.nextKey++

	ix.graph.Add(hnsw.MakeNode(key, vec))
	ix.idMap[col] = key
	ix.keyMap[key] = col
	ix.nameToVector[name] = vector
	ix.usability[col] = usabilityScore
	return nil
}

// Search performs a ModeExact k-nearest-neighbor search for name (an
// approximate HNSW graph search of name's stored vector), restricted to
// filter as a post-prune when filter is non-nil, per spec.md §4.4.
func (ix *Index) Search(name string, k int, filter *idspace.Set[idspace.ColId]) (idspace.Set[idspace.ColId], error) {
	return ix.SearchMode(ModeExact, name, k, filter)
}

// SearchMode dispatches on mode; only ModeExact is implemented. k == 0
// means "use the index's own default k" (ix.cfg.EfSearch) rather than
// an error: spec.md §8's name('Latitude';0) and name('Longitude';0)
// scenarios pass k=0 as valid input, so a caller-supplied zero resolves
// to a default instead of being rejected. Only a negative k is invalid.
func (ix *Index) SearchMode(mode Mode, name string, k int, filter *idspace.Set[idspace.ColId]) (idspace.Set[idspace.ColId], error) {
	if mode != ModeExact {
		return idspace.Set[idspace.ColId]{}, qerrors.ColumnSearch(
			fmt.Sprintf("column search mode %q is not implemented", modeName(mode)), nil)
	}
	if k < 0 {
		return idspace.Set[idspace.ColId]{}, qerrors.ColumnSearch("k must not be negative", nil)
	}
	if k == 0 {
		k = ix.cfg.EfSearch
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	vec, ok := ix.nameToVector[name]
	if !ok {
		return idspace.Set[idspace.ColId]{}, qerrors.ColumnSearch(
			fmt.Sprintf("no embedding stored for column name %q", name), nil)
	}
	if ix.graph.Len() == 0 {
		return idspace.NewSet[idspace.ColId](), nil
	}

	query := make([]float32, len(vec))
	copy(query, vec)
	normalizeInPlace(query)

	nodes := ix.graph.Search(query, k)

	out := idspace.NewSet[idspace.ColId]()
	for _, node := range nodes {
		col, ok := ix.keyMap[node.Key]
		if !ok {
			continue
		}
		if ix.cfg.UseUsabilityScore && ix.usability[col] < ix.cfg.MinUsabilityScore {
			continue
		}
		if filter != nil && !filter.Contains(col) {
			continue
		}
		out.Add(col)
	}
	return out, nil
}

// Len reports the number of live (non-orphaned) entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idMap)
}

func modeName(m Mode) string {
	switch m {
	case ModeExact:
		return "exact"
	case ModeFuzzy:
		return "fuzzy"
	case ModeSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// Save persists the graph and its metadata sidecar via temp-file +
// rename, matching the teacher's atomic-save pattern.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("colindex: create directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("colindex: create index file: %w", err)
	}
	if err := ix.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("colindex: export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("colindex: close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("colindex: rename index file: %w", err)
	}

	return ix.saveMetadata(path + ".meta")
}

func (ix *Index) saveMetadata(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("colindex: create metadata file: %w", err)
	}

	meta := metadata{
		NameToVector: ix.nameToVector,
		Usability:    ix.usability,
		IDMap:        ix.idMap,
		NextKey:      ix.nextKey,
		Cfg:          ix.cfg,
	}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("colindex: encode metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("colindex: close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a previously-saved graph and its metadata sidecar.
func Load(path string) (*Index, error) {
	metaPath := path + ".meta"
	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("colindex: open metadata: %w", err)
	}
	defer mf.Close()

	var meta metadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("colindex: decode metadata: %w", err)
	}

	ix := New(meta.Cfg)
	ix.nameToVector = meta.NameToVector
	ix.usability = meta.Usability
	ix.idMap = meta.IDMap
	ix.nextKey = meta.NextKey
	ix.keyMap = make(map[uint64]idspace.ColId, len(meta.IDMap))
	for col, key := range meta.IDMap {
		ix.keyMap[key] = col
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("colindex: open index file: %w", err)
	}
	defer f.Close()

	if err := ix.graph.Import(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("colindex: import graph: %w", err)
	}
	return ix, nil
}
