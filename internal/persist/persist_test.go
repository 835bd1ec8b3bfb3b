package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/percentile"
)

func TestSaveAndLoadMetadata_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")

	docToCols := map[idspace.DocId]idspace.Set[idspace.ColId]{
		0: idspace.SetOf[idspace.ColId](0, 1),
		1: idspace.SetOf[idspace.ColId](2),
	}
	colToDoc := map[idspace.ColId]idspace.DocId{0: 0, 1: 0, 2: 1}
	colToHist := map[idspace.ColId]idspace.HistId{0: 0, 1: 1}
	histToCol := map[idspace.HistId]idspace.ColId{0: 0, 1: 1}

	require.NoError(t, SaveMetadata(path, docToCols, colToDoc, colToHist, histToCol))

	maps, err := LoadMetadata(path)
	require.NoError(t, err)

	assert.ElementsMatch(t, []idspace.ColId{0, 1}, maps.ColsOfDoc(0).ToSlice())
	assert.ElementsMatch(t, []idspace.ColId{2}, maps.ColsOfDoc(1).ToSlice())

	d, ok := maps.DocOfCol(2)
	require.True(t, ok)
	assert.Equal(t, idspace.DocId(1), d)

	h, ok := maps.HasHistogram(0)
	require.True(t, ok)
	assert.Equal(t, idspace.HistId(0), h)
}

func TestLoadMetadata_MissingFile(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSaveAndLoadHistograms_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "histograms.zst")

	hists := map[idspace.HistId]*percentile.Histogram{
		0: {ID: 0, Edges: []float64{0, 10, 20}, Counts: []uint64{5, 5}},
		1: {ID: 1, Edges: []float64{0, 100}, Counts: []uint64{42}},
	}

	require.NoError(t, SaveHistograms(path, hists))

	got, err := LoadHistograms(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, hists[0].Edges, got[0].Edges)
	assert.Equal(t, hists[1].Counts, got[1].Counts)
}

func TestDirLock_LockUnlock(t *testing.T) {
	dir := t.TempDir()
	lock := NewDirLock(dir)
	require.NoError(t, lock.Lock())
	require.NoError(t, lock.Unlock())
	// Safe to unlock twice.
	require.NoError(t, lock.Unlock())
}

func TestSwap_PublishesCurrentSymlink(t *testing.T) {
	dir := t.TempDir()
	gen := filepath.Join(dir, "gen-1")
	require.NoError(t, os.MkdirAll(gen, 0o755))

	require.NoError(t, Swap(dir, gen))

	target, err := os.Readlink(CurrentLink(dir))
	require.NoError(t, err)
	assert.Equal(t, gen, target)

	gen2 := filepath.Join(dir, "gen-2")
	require.NoError(t, os.MkdirAll(gen2, 0o755))
	require.NoError(t, Swap(dir, gen2))

	target, err = os.Readlink(CurrentLink(dir))
	require.NoError(t, err)
	assert.Equal(t, gen2, target)
}
