package scorer

import (
	"fmt"

	"github.com/arborlens/vaultengine/internal/graph"
)

// neighborFloor is the minimum score, before HybridBoost, of a candidate
// that is both a vector hit and a graph neighbour; a pure graph neighbour
// (no vector hit of its own) scores neighborFloor times its edge weight.
const neighborFloor = 0.3

// Similar finds documents related to seedPath by fusing the vector index's
// own nearest neighbours with the graph's 1-hop neighbours: a candidate
// that both the vector index and the graph agree on gets
// max(neighborFloor, similarity) + HybridBoost; a pure vector hit gets its
// raw similarity; a pure graph neighbour gets neighborFloor*edge weight,
// and is dropped if that falls below VectorMinRelevance.
func Similar(s *Scorer, seedPath string, k int) ([]Candidate, error) {
	if k <= 0 {
		k = ReflexDefaultK
	}

	seedVec, ok := s.vectors.DocumentVector(seedPath)
	if !ok {
		return nil, fmt.Errorf("no vectors indexed for %q", seedPath)
	}

	exclude := map[string]bool{seedPath: true}
	hits, err := s.vectors.SimilarSearch(seedVec, k*overshootFactor, 0, nil, false)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*Candidate)
	for _, h := range hits {
		if exclude[h.Path] {
			continue
		}
		c := ensure(byPath, h.Path)
		c.HasVectorHit = true
		if float64(h.Score) > c.Signals.Similarity {
			c.Signals.Similarity = float64(h.Score)
		}
	}

	neighbors := s.g.Neighbors(seedPath, graph.DirectionBoth, graph.ModeOntology)
	for _, n := range neighbors {
		if exclude[n.Path] {
			continue
		}
		c := ensure(byPath, n.Path)
		c.FromGraph = true
		c.GraphWeight = n.Weight
	}

	out := make([]Candidate, 0, len(byPath))
	for _, c := range byPath {
		c.Signals.Centrality = s.g.Centrality(c.Path)
		switch {
		case c.HasVectorHit && c.FromGraph:
			floor := neighborFloor
			if c.Signals.Similarity > floor {
				floor = c.Signals.Similarity
			}
			c.Score = floor + HybridBoost
		case c.HasVectorHit:
			c.Score = c.Signals.Similarity
		case c.FromGraph:
			c.Score = neighborFloor * c.GraphWeight
			if c.Score < VectorMinRelevance {
				continue
			}
		}
		out = append(out, *c)
	}

	sortCandidates(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
