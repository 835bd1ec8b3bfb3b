// Package persist loads the on-disk artifacts a query-engine generation
// needs (id-space metadata, raw histograms, the HNSW column index) and
// guards the directory they live in with a cross-process file lock during
// an atomic swap, grounded on the teacher's internal/embed/lock.go and
// internal/store/hnsw.go save/load pattern.
package persist

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"

	"github.com/fainderql/queryengine/internal/colindex"
	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/percentile"
	"github.com/fainderql/queryengine/internal/qerrors"
)

// metadataDoc is the JSON-on-disk shape of the four id-space maps
// (spec.md §6's "metadata document carrying all four id-space maps as
// JSON objects/arrays"). Set[T]'s internal roaring bitmap has no JSON
// encoding of its own, so the sidecar uses plain slices/maps keyed by
// string (JSON object keys cannot be integers).
type metadataDoc struct {
	DocToCols map[string][]uint32 `json:"doc_to_cols"`
	ColToDoc  map[string]uint32   `json:"col_to_doc"`
	ColToHist map[string]uint32   `json:"col_to_hist"`
	HistToCol map[string]uint32   `json:"hist_to_col"`
}

// LoadMetadata reads the id-space metadata document and builds the
// validated Maps from it.
func LoadMetadata(path string) (*idspace.Maps, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, qerrors.Indexing(fmt.Sprintf("persist: read metadata %s", path), err)
	}

	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, qerrors.Indexing(fmt.Sprintf("persist: parse metadata %s", path), err)
	}

	docToCols := make(map[idspace.DocId]idspace.Set[idspace.ColId], len(doc.DocToCols))
	for k, cols := range doc.DocToCols {
		d, err := parseID(k)
		if err != nil {
			return nil, qerrors.Indexing("persist: metadata doc_to_cols key", err)
		}
		set := idspace.NewSet[idspace.ColId]()
		for _, c := range cols {
			set.Add(idspace.ColId(c))
		}
		docToCols[idspace.DocId(d)] = set
	}

	colToDoc := make(map[idspace.ColId]idspace.DocId, len(doc.ColToDoc))
	for k, d := range doc.ColToDoc {
		c, err := parseID(k)
		if err != nil {
			return nil, qerrors.Indexing("persist: metadata col_to_doc key", err)
		}
		colToDoc[idspace.ColId(c)] = idspace.DocId(d)
	}

	colToHist := make(map[idspace.ColId]idspace.HistId, len(doc.ColToHist))
	for k, h := range doc.ColToHist {
		c, err := parseID(k)
		if err != nil {
			return nil, qerrors.Indexing("persist: metadata col_to_hist key", err)
		}
		colToHist[idspace.ColId(c)] = idspace.HistId(h)
	}

	histToCol := make(map[idspace.HistId]idspace.ColId, len(doc.HistToCol))
	for k, c := range doc.HistToCol {
		h, err := parseID(k)
		if err != nil {
			return nil, qerrors.Indexing("persist: metadata hist_to_col key", err)
		}
		histToCol[idspace.HistId(h)] = idspace.ColId(c)
	}

	maps, err := idspace.NewMaps(docToCols, colToDoc, colToHist, histToCol)
	if err != nil {
		return nil, qerrors.Indexing("persist: metadata violates id-space invariants", err)
	}
	return maps, nil
}

// SaveMetadata writes the id-space maps out in the JSON shape LoadMetadata
// reads back, via temp-file + rename.
func SaveMetadata(path string, docToCols map[idspace.DocId]idspace.Set[idspace.ColId], colToDoc map[idspace.ColId]idspace.DocId, colToHist map[idspace.ColId]idspace.HistId, histToCol map[idspace.HistId]idspace.ColId) error {
	doc := metadataDoc{
		DocToCols: make(map[string][]uint32, len(docToCols)),
		ColToDoc:  make(map[string]uint32, len(colToDoc)),
		ColToHist: make(map[string]uint32, len(colToHist)),
		HistToCol: make(map[string]uint32, len(histToCol)),
	}
	for d, cols := range docToCols {
		ids := cols.ToSlice()
		raw := make([]uint32, len(ids))
		for i, c := range ids {
			raw[i] = uint32(c)
		}
		doc.DocToCols[fmt.Sprintf("%d", d)] = raw
	}
	for c, d := range colToDoc {
		doc.ColToDoc[fmt.Sprintf("%d", c)] = uint32(d)
	}
	for c, h := range colToHist {
		doc.ColToHist[fmt.Sprintf("%d", c)] = uint32(h)
	}
	for h, c := range histToCol {
		doc.HistToCol[fmt.Sprintf("%d", h)] = uint32(c)
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return qerrors.Indexing("persist: encode metadata", err)
	}
	return atomicWrite(path, data)
}

// histogramBundle is the gob-encoded, zstd-compressed on-disk shape of the
// raw histogram payload.
type histogramBundle struct {
	Histograms map[idspace.HistId]*percentile.Histogram
}

// LoadHistograms reads the zstd-compressed gob histogram payload.
func LoadHistograms(path string) (map[idspace.HistId]*percentile.Histogram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, qerrors.Indexing(fmt.Sprintf("persist: open histograms %s", path), err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, qerrors.Indexing("persist: open zstd histogram stream", err)
	}
	defer zr.Close()

	var bundle histogramBundle
	if err := gob.NewDecoder(zr).Decode(&bundle); err != nil {
		return nil, qerrors.Indexing("persist: decode histograms", err)
	}
	return bundle.Histograms, nil
}

// SaveHistograms writes the raw histogram payload as gob, zstd-compressed,
// via temp-file + rename.
func SaveHistograms(path string, hists map[idspace.HistId]*percentile.Histogram) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return qerrors.Indexing("persist: create histogram directory", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return qerrors.Indexing("persist: create histogram file", err)
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return qerrors.Indexing("persist: open zstd histogram writer", err)
	}

	if err := gob.NewEncoder(zw).Encode(histogramBundle{Histograms: hists}); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return qerrors.Indexing("persist: encode histograms", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return qerrors.Indexing("persist: close zstd histogram writer", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return qerrors.Indexing("persist: close histogram file", err)
	}
	return os.Rename(tmp, path)
}

// LoadColumnIndex is a thin re-export of colindex.Load, kept here so every
// artifact load in a generation goes through internal/persist.
func LoadColumnIndex(path string) (*colindex.Index, error) {
	ix, err := colindex.Load(path)
	if err != nil {
		return nil, qerrors.Indexing(fmt.Sprintf("persist: load column index %s", path), err)
	}
	return ix, nil
}

// DirLock wraps gofrs/flock to serialize loads/swaps of one data
// directory across processes, matching the teacher's FileLock.
type DirLock struct {
	path   string
	fl     *flock.Flock
	locked bool
}

// NewDirLock creates a lock file at <dir>/.fainderql.lock.
func NewDirLock(dir string) *DirLock {
	path := filepath.Join(dir, ".fainderql.lock")
	return &DirLock{path: path, fl: flock.New(path)}
}

// Lock blocks until the exclusive lock is acquired.
func (l *DirLock) Lock() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return qerrors.Indexing("persist: create lock directory", err)
		}
	}
	if err := l.fl.Lock(); err != nil {
		return qerrors.Indexing("persist: acquire directory lock", err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call on an unlocked DirLock.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return qerrors.Indexing("persist: release directory lock", err)
	}
	l.locked = false
	return nil
}

// Generation names a timestamped subdirectory of DataDir holding one
// complete set of artifacts (metadata.json, histograms, colindex + its
// .meta sidecar). Swap publishes a generation as "current" by rewriting a
// symlink under the lock, so readers either see the old or the new
// generation in full, never a partial mix.
func Generation(dataDir string, builtAt time.Time) string {
	return filepath.Join(dataDir, "gen-"+builtAt.UTC().Format("20060102T150405.000000000"))
}

// CurrentLink is the stable path callers load artifacts relative to.
func CurrentLink(dataDir string) string {
	return filepath.Join(dataDir, "current")
}

// Swap atomically repoints dataDir/current at genDir, holding the
// directory lock for the duration. It replaces any previous symlink;
// the previous generation's directory is left on disk for the caller to
// clean up once it is certain no in-flight query still references it.
func Swap(dataDir, genDir string) error {
	lock := NewDirLock(dataDir)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	link := CurrentLink(dataDir)
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(genDir, tmp); err != nil {
		return qerrors.Indexing("persist: create current symlink", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return qerrors.Indexing("persist: publish current symlink", err)
	}
	return nil
}

func parseID(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return v, nil
}

func atomicWrite(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return qerrors.Indexing("persist: create directory", err)
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return qerrors.Indexing("persist: create file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return qerrors.Indexing("persist: write file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return qerrors.Indexing("persist: close file", err)
	}
	return os.Rename(tmp, path)
}
