package scorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/vectorindex"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := make([]float32, len(f.vec))
	copy(cp, f.vec)
	return cp, nil
}

func newFixture(t *testing.T) (*Scorer, *vectorindex.Index, *KeywordIndex, *graph.Graph) {
	t.Helper()
	vec := vectorindex.New(2)
	kw, err := NewKeywordIndex()
	require.NoError(t, err)
	g := graph.New("Ontology")
	return New(vec, kw, g), vec, kw, g
}

func TestReflex_EmptyQueryReturnsNil(t *testing.T) {
	s, _, _, _ := newFixture(t)
	out, err := Reflex(context.Background(), s, nil, "  ", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReflex_KeywordHitAboveNoiseFloorIsReturned(t *testing.T) {
	s, _, kw, _ := newFixture(t)
	require.NoError(t, kw.Index("a.md#0", "a.md", "Apples", "apples are a fruit"))

	out, err := Reflex(context.Background(), s, nil, "apples", 5, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a.md", out[0].Path)
}

func TestReflex_ShortQueryUsesFlatBaseScore(t *testing.T) {
	score := fuzzyScore("apples", 1)
	assert.Equal(t, ShortQueryBaseScore, score)
}

func TestReflex_LongQueryScalesWithHitCountAndCaps(t *testing.T) {
	score := fuzzyScore("one two three four five six", 100)
	assert.Equal(t, FuzzyScoreCap, score)
}

func TestReflex_HybridBoostAppliesWhenBothSignalsHit(t *testing.T) {
	s, vec, kw, _ := newFixture(t)
	require.NoError(t, kw.Index("a.md#0", "a.md", "Apples", "apples are great apples apples apples apples apples apples"))
	require.NoError(t, vec.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{vectorindex.Normalise([]float32{1, 0})}))

	embedder := fakeEmbedder{vec: []float32{1, 0}}
	out, err := Reflex(context.Background(), s, embedder, "apples", 5, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].HasVectorHit)
	assert.True(t, out[0].HasKeyword)
	assert.Greater(t, out[0].Score, out[0].Signals.Similarity)
}

func TestReflex_BelowNoiseFloorIsDropped(t *testing.T) {
	s, vec, _, _ := newFixture(t)
	require.NoError(t, vec.UpsertChunks("a.md", []string{"a.md#0"}, [][]float32{vectorindex.Normalise([]float32{1, 0})}))
	// Orthogonal query vector produces similarity 0, well under the floor.
	embedder := fakeEmbedder{vec: []float32{0, 1}}

	out, err := Reflex(context.Background(), s, embedder, "anything at all here", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReflex_TitleMatchBoostsScore(t *testing.T) {
	s, _, kw, _ := newFixture(t)
	require.NoError(t, kw.Index("a.md#0", "a.md", "Orchard Notes", "some unrelated text about orchard care"))

	titleOf := func(path string) string {
		if path == "a.md" {
			return "Orchard Notes"
		}
		return ""
	}
	out, err := Reflex(context.Background(), s, nil, "orchard", 5, titleOf)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].TitleMatch)
	assert.InDelta(t, out[0].Signals.Similarity+TitleBoost, out[0].Score, 1e-9)
}

func TestDeep_PoolsVectorAndKeywordSignals(t *testing.T) {
	s, vec, kw, _ := newFixture(t)
	require.NoError(t, kw.Index("a.md#0", "a.md", "Apples", "apples apples apples apples apples apples"))
	require.NoError(t, vec.UpsertChunks("b.md", []string{"b.md#0"}, [][]float32{vectorindex.Normalise([]float32{1, 0})}))

	embedder := fakeEmbedder{vec: []float32{1, 0}}
	out, err := Deep(context.Background(), s, embedder, "apples", 5, nil)
	require.NoError(t, err)

	paths := make(map[string]bool)
	for _, c := range out {
		paths[c.Path] = true
	}
	assert.True(t, paths["a.md"])
	assert.True(t, paths["b.md"])
}

func TestDeep_ExpandsOneHopFromSeeds(t *testing.T) {
	s, vec, kw, g := newFixture(t)
	require.NoError(t, kw.Index("a.md#0", "a.md", "Apples", "apples apples apples apples apples apples apples apples"))
	g.AddEdge("a.md", "c.md", persistence.EdgeTypeLink, 1.0, "test")
	_ = vec

	out, err := Deep(context.Background(), s, nil, "apples", 5, nil)
	require.NoError(t, err)

	var sawNeighbor bool
	for _, c := range out {
		if c.Path == "c.md" {
			sawNeighbor = true
		}
	}
	assert.True(t, sawNeighbor, "expected c.md to be surfaced via 1-hop expansion from the seed a.md")
}

func TestDeep_EmptyQueryReturnsNil(t *testing.T) {
	s, _, _, _ := newFixture(t)
	out, err := Deep(context.Background(), s, nil, "", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSimilar_ErrorsWhenSeedHasNoVectors(t *testing.T) {
	s, _, _, _ := newFixture(t)
	_, err := Similar(s, "missing.md", 5)
	assert.Error(t, err)
}

func TestSimilar_DualSourceCandidateBeatsPureVectorCandidate(t *testing.T) {
	s, vec, _, g := newFixture(t)
	require.NoError(t, vec.UpsertChunks("seed.md", []string{"seed.md#0"}, [][]float32{vectorindex.Normalise([]float32{1, 0})}))
	require.NoError(t, vec.UpsertChunks("dual.md", []string{"dual.md#0"}, [][]float32{vectorindex.Normalise([]float32{1, 0.01})}))
	require.NoError(t, vec.UpsertChunks("vectoronly.md", []string{"vectoronly.md#0"}, [][]float32{vectorindex.Normalise([]float32{1, 0.02})}))
	g.AddEdge("seed.md", "dual.md", persistence.EdgeTypeLink, 1.0, "test")

	out, err := Similar(s, "seed.md", 5)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	var dualScore, vectorOnlyScore float64
	for _, c := range out {
		switch c.Path {
		case "dual.md":
			dualScore = c.Score
			assert.True(t, c.HasVectorHit)
			assert.True(t, c.FromGraph)
		case "vectoronly.md":
			vectorOnlyScore = c.Score
		}
	}
	assert.Greater(t, dualScore, vectorOnlyScore)
}

func TestSimilar_PureGraphNeighborBelowFloorIsDropped(t *testing.T) {
	s, vec, _, g := newFixture(t)
	require.NoError(t, vec.UpsertChunks("seed.md", []string{"seed.md#0"}, [][]float32{vectorindex.Normalise([]float32{1, 0})}))
	g.AddEdge("seed.md", "faint.md", persistence.EdgeTypeLink, 0.01, "test")

	out, err := Similar(s, "seed.md", 5)
	require.NoError(t, err)
	for _, c := range out {
		assert.NotEqual(t, "faint.md", c.Path)
	}
}

func TestSortCandidates_OrdersByScoreThenMTimeThenPath(t *testing.T) {
	cands := []Candidate{
		{Path: "z.md", Score: 1, MTime: 1},
		{Path: "a.md", Score: 1, MTime: 1},
		{Path: "b.md", Score: 2, MTime: 0},
	}
	sortCandidates(cands)
	assert.Equal(t, "b.md", cands[0].Path)
	assert.Equal(t, "a.md", cands[1].Path)
	assert.Equal(t, "z.md", cands[2].Path)
}
