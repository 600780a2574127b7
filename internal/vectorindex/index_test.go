package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(v []float32) []float32 { return Normalise(v) }

func TestUpsertChunks_DimensionMismatchIsRejected(t *testing.T) {
	ix := New(3)
	err := ix.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{{1, 2}})
	assert.Error(t, err)
}

func TestSimilarSearch_TopKByDescendingScore(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{unit([]float32{1, 0})}))
	require.NoError(t, ix.UpsertChunks("b.md", []string{"b.md#0"}, [][]float32{unit([]float32{0, 1})}))

	hits, err := ix.SimilarSearch(unit([]float32{1, 0}), 2, 0, nil, false)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.md#0", hits[0].ChunkID)
}

func TestSimilarSearch_TiesBreakByChunkIDLexicographic(t *testing.T) {
	ix := New(2)
	v := unit([]float32{1, 1})
	require.NoError(t, ix.UpsertChunks("b.md", []string{"b.md#0"}, [][]float32{v}))
	require.NoError(t, ix.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{v}))

	hits, err := ix.SimilarSearch(v, 2, 0, nil, false)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.md#0", hits[0].ChunkID)
}

func TestSimilarSearch_OnlyPathsFiltersCandidates(t *testing.T) {
	ix := New(2)
	v := unit([]float32{1, 0})
	require.NoError(t, ix.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{v}))
	require.NoError(t, ix.UpsertChunks("b.md", []string{"b.md#0"}, [][]float32{v}))

	hits, err := ix.SimilarSearch(v, 10, 0, map[string]bool{"b.md": true}, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.md", hits[0].Path)
}

func TestSimilarSearch_MinScoreFiltersOut(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{unit([]float32{1, 0})}))

	hits, err := ix.SimilarSearch(unit([]float32{0, 1}), 10, 0.5, nil, false)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpsertChunks_ReplacesAllRowsForPathBeforeReturning(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.UpsertChunks("a.md", []string{"a.md#0", "a.md#1"}, [][]float32{unit([]float32{1, 0}), unit([]float32{0, 1})}))
	require.NoError(t, ix.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{unit([]float32{1, 0})}))

	assert.Len(t, ix.idOfRow, 1)
	hits, err := ix.SimilarSearch(unit([]float32{1, 0}), 10, 0, nil, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestDeleteDocument_FreesRowsForReuse(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{unit([]float32{1, 0})}))
	ix.DeleteDocument("a.md")

	hits, err := ix.SimilarSearch(unit([]float32{1, 0}), 10, 0, nil, false)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// The freed row should be reused rather than growing the buffer again.
	require.NoError(t, ix.UpsertChunks("b.md", []string{"b.md#0"}, [][]float32{unit([]float32{0, 1})}))
	assert.LessOrEqual(t, ix.Len(), 1)
	assert.Equal(t, 1, ix.highWater)
}

func TestGrow_GrowsCapacityGeometrically(t *testing.T) {
	ix := New(1)
	for i := 0; i < 100; i++ {
		id := string(rune('a' + i%26))
		require.NoError(t, ix.UpsertChunks(id, []string{id + "#0"}, [][]float32{{1}}))
	}
	assert.GreaterOrEqual(t, ix.capacity, ix.active)

	// One row past the initial 256 grows capacity by 1.5x to 384.
	big := New(1)
	for i := 0; i <= initialCapacity; i++ {
		id := string(rune(0x100 + i))
		require.NoError(t, big.UpsertChunks(id, []string{id + "#0"}, [][]float32{{1}}))
	}
	assert.Equal(t, 384, big.capacity)
}

func TestMaybeShrink_ShrinksAfterTwoUnderUtilisedCycles(t *testing.T) {
	ix := New(1)
	for i := 0; i < 40; i++ {
		id := string(rune('a')) + string(rune(i))
		require.NoError(t, ix.UpsertChunks(id, []string{id + "#0"}, [][]float32{{1}}))
	}
	for i := 0; i < 35; i++ {
		id := string(rune('a')) + string(rune(i))
		ix.DeleteDocument(id)
	}
	capBefore := ix.capacity
	ix.MaybeShrink()
	assert.Equal(t, capBefore, ix.capacity)
	ix.MaybeShrink()
	assert.Less(t, ix.capacity, capBefore)
}
