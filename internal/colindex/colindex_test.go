package colindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fainderql/queryengine/internal/idspace"
	"github.com/fainderql/queryengine/internal/qerrors"
)

func vec(xs ...float32) []float32 { return xs }

func TestSearch_FindsNearestByStoredName(t *testing.T) {
	ix := New(Config{})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 1.0))
	require.NoError(t, ix.Add(2, "longitude", vec(0, 1, 0), 1.0))
	require.NoError(t, ix.Add(3, "lat", vec(0.9, 0.1, 0), 1.0))

	got, err := ix.Search("latitude", 2, nil)
	require.NoError(t, err)
	assert.True(t, got.Contains(1))
	assert.True(t, got.Contains(3))
	assert.False(t, got.Contains(2))
}

func TestSearch_UnknownNameIsColumnSearchError(t *testing.T) {
	ix := New(Config{})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 1.0))

	_, err := ix.Search("nonexistent", 1, nil)
	require.Error(t, err)
	assert.Equal(t, qerrors.KindColumnSearch, qerrors.KindOf(err))
}

func TestSearch_FilterIsPostPrune(t *testing.T) {
	ix := New(Config{})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 1.0))
	require.NoError(t, ix.Add(2, "lat2", vec(0.99, 0.01, 0), 1.0))

	filter := idspace.SetOf[idspace.ColId](2)
	got, err := ix.Search("latitude", 5, &filter)
	require.NoError(t, err)
	assert.ElementsMatch(t, []idspace.ColId{2}, got.ToSlice())
}

func TestSearch_UsabilityScoreFiltersLowQualityColumns(t *testing.T) {
	ix := New(Config{UseUsabilityScore: true, MinUsabilityScore: 0.5})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 0.9))
	require.NoError(t, ix.Add(2, "lat2", vec(0.99, 0.01, 0), 0.1))

	got, err := ix.Search("latitude", 5, nil)
	require.NoError(t, err)
	assert.True(t, got.Contains(1))
	assert.False(t, got.Contains(2))
}

func TestSearch_KZeroUsesConfiguredDefaultEfSearch(t *testing.T) {
	ix := New(Config{EfSearch: 2})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 1.0))
	require.NoError(t, ix.Add(2, "lat", vec(0.9, 0.1, 0), 1.0))
	require.NoError(t, ix.Add(3, "longitude", vec(0, 1, 0), 1.0))

	got, err := ix.Search("latitude", 0, nil)
	require.NoError(t, err)
	assert.True(t, got.Contains(1))
	assert.True(t, got.Contains(2))
	assert.False(t, got.Contains(3))
}

func TestSearch_NegativeKIsColumnSearchError(t *testing.T) {
	ix := New(Config{})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 1.0))

	_, err := ix.Search("latitude", -1, nil)
	require.Error(t, err)
	assert.Equal(t, qerrors.KindColumnSearch, qerrors.KindOf(err))
}

func TestSearchMode_FuzzyAndSemanticAreNotImplemented(t *testing.T) {
	ix := New(Config{})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 1.0))

	_, err := ix.SearchMode(ModeFuzzy, "latitude", 1, nil)
	require.Error(t, err)
	assert.Equal(t, qerrors.KindColumnSearch, qerrors.KindOf(err))

	_, err = ix.SearchMode(ModeSemantic, "latitude", 1, nil)
	require.Error(t, err)
}

func TestAdd_ReplacesVectorForExistingColumn(t *testing.T) {
	ix := New(Config{})
	require.NoError(t, ix.Add(1, "latitude", vec(1, 0, 0), 1.0))
	require.NoError(t, ix.Add(1, "latitude", vec(0, 1, 0), 1.0))

	assert.Equal(t, 1, ix.Len())
}
