package scorer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/vectorindex"
)

// overshootFactor widens the candidate pool fetched from each signal before
// pooling, so that graph expansion has enough seeds to work with.
const overshootFactor = 3

// Deep runs the full hybrid query: vector + keyword retrieval (each
// overshot), pooled into a candidate set, seeded expansion one hop
// through the graph, then the final composite score.
func Deep(ctx context.Context, s *Scorer, embedder Embedder, query string, k int, titleOf TitleLookup) ([]Candidate, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = ReflexDefaultK
	}
	pool := k * overshootFactor

	byPath := make(map[string]*Candidate)

	var keywordHits []KeywordHit
	var vectorHits []vectorindex.Hit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.keywords.Search(query, pool)
		if err != nil {
			return err
		}
		keywordHits = hits
		return nil
	})
	g.Go(func() error {
		if embedder == nil {
			return nil
		}
		qv, err := embedder.EmbedQuery(gctx, query)
		if err != nil || qv == nil {
			return nil
		}
		qv = vectorindex.Normalise(qv)
		hits, err := s.vectors.SimilarSearch(qv, pool, 0, nil, false)
		if err != nil {
			return nil
		}
		vectorHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, h := range keywordHits {
		c := ensure(byPath, h.Path)
		c.HasKeyword = true
		c.TitleMatch = c.TitleMatch || h.TitleMatch
		score := fuzzyScore(query, h.HitCount)
		if score > c.Signals.Similarity {
			c.Signals.Similarity = score
		}
	}
	for _, h := range vectorHits {
		c := ensure(byPath, h.Path)
		c.HasVectorHit = true
		if float64(h.Score) > c.Signals.Similarity {
			c.Signals.Similarity = float64(h.Score)
		}
	}

	// Drop anything below the symmetric noise floor before seeding
	// expansion or computing centrality/activation.
	for path, c := range byPath {
		if c.Signals.Similarity < VectorMinRelevance {
			delete(byPath, path)
		}
	}

	seeds := pickSeeds(byPath)
	activation := spreadActivation(s.g, seeds)
	for path, act := range activation {
		c := ensure(byPath, path)
		c.Signals.Activation = act
	}

	expandSeeds(s.g, byPath, seeds)

	for path, c := range byPath {
		c.Signals.Centrality = s.g.Centrality(path)
		if titleOf != nil && titleContainsQuery(titleOf(path), query) {
			c.TitleMatch = true
		}
		c.Score = compositeScore(c)
	}

	out := make([]Candidate, 0, len(byPath))
	for _, c := range byPath {
		out = append(out, *c)
	}
	sortCandidates(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func compositeScore(c *Candidate) float64 {
	score := WeightSimilarity*c.Signals.Similarity + WeightCentrality*c.Signals.Centrality + WeightActivation*c.Signals.Activation
	if c.HasVectorHit && c.HasKeyword {
		score += HybridBoost
	}
	if c.TitleMatch {
		score += TitleBoost
	}
	return score
}

func ensure(byPath map[string]*Candidate, path string) *Candidate {
	c, ok := byPath[path]
	if !ok {
		c = &Candidate{Path: path}
		byPath[path] = c
	}
	return c
}

// pickSeeds selects candidates whose score qualifies as an expansion seed:
// >= AbsoluteMinExpansionScore and >= ExpansionThreshold*topScore.
func pickSeeds(byPath map[string]*Candidate) []string {
	var top float64
	for _, c := range byPath {
		if c.Signals.Similarity > top {
			top = c.Signals.Similarity
		}
	}
	var seeds []string
	for path, c := range byPath {
		if c.Signals.Similarity >= AbsoluteMinExpansionScore && c.Signals.Similarity >= ExpansionThreshold*top {
			seeds = append(seeds, path)
		}
	}
	return seeds
}

// spreadActivation runs one hop of spreading activation from seeds,
// distributing each seed's edge weight (capped per node) to its
// neighbours.
func spreadActivation(g *graph.Graph, seeds []string) map[string]float64 {
	activation := make(map[string]float64)
	for _, seed := range seeds {
		neighbors := g.Neighbors(seed, graph.DirectionBoth, graph.ModeSimple)
		if len(neighbors) > MaxNeighborsPerNode {
			neighbors = neighbors[:MaxNeighborsPerNode]
		}
		for _, n := range neighbors {
			if n.Weight > activation[n.Path] {
				activation[n.Path] = n.Weight
			}
		}
	}
	return activation
}

// expandSeeds adds 1-hop graph neighbours of the seed set as candidates,
// so that the deep mode can surface documents no signal found directly.
func expandSeeds(g *graph.Graph, byPath map[string]*Candidate, seeds []string) {
	for _, seed := range seeds {
		neighbors := g.Neighbors(seed, graph.DirectionBoth, graph.ModeSimple)
		if len(neighbors) > MaxNeighborsPerNode {
			neighbors = neighbors[:MaxNeighborsPerNode]
		}
		for _, n := range neighbors {
			ensure(byPath, n.Path)
		}
	}
}
