// Package scorer implements GARS, the engine's hybrid relevance scorer:
// a composite of vector similarity, keyword matching, graph centrality and
// spreading activation, run in one of two modes (reflex: fast, keyword
// dominant; deep: full hybrid with one-hop graph expansion).
package scorer

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/vectorindex"
)

// Tunable constants, named directly after spec §4.6/§9.
const (
	// VectorMinRelevance is the symmetric noise floor: any candidate whose
	// max signal falls below this is discarded before the caller's own
	// min-similarity cutoff is even applied.
	VectorMinRelevance = 0.35

	AbsoluteMinExpansionScore = 0.2
	ExpansionThreshold        = 0.5
	MaxNeighborsPerNode       = 8

	HybridBoost = 0.1
	TitleBoost  = 0.15

	FuzzyScoreCap      = 0.8
	ShortQueryBaseScore = 0.5
	ShortQueryTokenMax  = 4

	WeightSimilarity = 0.5
	WeightCentrality = 0.2
	WeightActivation = 0.3

	ReflexDefaultK = 10
)

// Signals are the three raw per-candidate scores GARS combines.
type Signals struct {
	Similarity float64 // sigma, from the vector index
	Centrality float64 // kappa, from the graph store
	Activation float64 // alpha, from spreading activation
}

// Candidate is one scored document in a result set.
type Candidate struct {
	Path         string
	MTime        int64
	Signals      Signals
	HasVectorHit bool
	HasKeyword   bool
	TitleMatch   bool
	FromGraph    bool
	GraphWeight  float64
	Score        float64
}

// Scorer runs reflex and deep queries against a vector index, keyword
// index and graph store snapshot. It holds no mutable state of its own;
// internal/worker is responsible for giving it a consistent view.
type Scorer struct {
	vectors  *vectorindex.Index
	keywords *KeywordIndex
	g        *graph.Graph
}

// New creates a Scorer over the given (already-consistent) snapshot.
func New(vectors *vectorindex.Index, keywords *KeywordIndex, g *graph.Graph) *Scorer {
	return &Scorer{vectors: vectors, keywords: keywords, g: g}
}

// Embedder produces a query-role embedding; supplied by the caller so
// this package stays independent of any concrete embedding provider.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// TitleLookup resolves a path's display title for title-match boosting; the
// caller (internal/worker) owns the document metadata table.
type TitleLookup func(path string) string

// Reflex runs the low-latency, keyword-dominant query mode: no graph
// expansion, a fast budgeted vector scan, and the fuzzy keyword formula.
// Target latency: <=100ms on 10^3 vectors.
func Reflex(ctx context.Context, s *Scorer, embedder Embedder, query string, k int, titleOf TitleLookup) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = ReflexDefaultK
	}

	var keywordHits []KeywordHit
	var vectorHits []vectorindex.Hit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.keywords.Search(query, k*4)
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
		hits, err := s.vectors.SimilarSearch(qv, k, 0, nil, true)
		if err != nil {
			return nil
		}
		vectorHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byPath := make(map[string]*Candidate)
	for _, h := range keywordHits {
		c := byPath[h.Path]
		if c == nil {
			c = &Candidate{Path: h.Path}
			byPath[h.Path] = c
		}
		c.HasKeyword = true
		c.TitleMatch = c.TitleMatch || h.TitleMatch
		score := fuzzyScore(query, h.HitCount)
		if score > c.Signals.Similarity {
			c.Signals.Similarity = score
		}
	}
	for _, h := range vectorHits {
		c := byPath[h.Path]
		if c == nil {
			c = &Candidate{Path: h.Path}
			byPath[h.Path] = c
		}
		c.HasVectorHit = true
		if float64(h.Score) > c.Signals.Similarity {
			c.Signals.Similarity = float64(h.Score)
		}
	}

	candidates := finalizeReflex(byPath, titleOf, query)
	sortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func finalizeReflex(byPath map[string]*Candidate, titleOf TitleLookup, query string) []Candidate {
	out := make([]Candidate, 0, len(byPath))
	for path, c := range byPath {
		if c.Signals.Similarity < VectorMinRelevance {
			continue
		}
		if titleOf != nil && titleContainsQuery(titleOf(path), query) {
			c.TitleMatch = true
		}
		c.Score = c.Signals.Similarity
		if c.HasVectorHit && c.HasKeyword {
			c.Score += HybridBoost
		}
		if c.TitleMatch {
			c.Score += TitleBoost
		}
		out = append(out, *c)
	}
	return out
}

// fuzzyScore implements the short/long query fuzziness formula: a short
// query (<ShortQueryTokenMax tokens) uses a flat base score once it has
// any hit at all; a long query uses hit-count*multiplier capped at
// FuzzyScoreCap.
func fuzzyScore(query string, hitCount int) float64 {
	if hitCount == 0 {
		return 0
	}
	tokens := strings.Fields(query)
	if len(tokens) < ShortQueryTokenMax {
		return ShortQueryBaseScore
	}
	const multiplier = 0.15
	score := float64(hitCount) * multiplier
	if score > FuzzyScoreCap {
		score = FuzzyScoreCap
	}
	return score
}

func titleContainsQuery(title, query string) bool {
	if title == "" || query == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(query))
}

func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		if cands[i].MTime != cands[j].MTime {
			return cands[i].MTime > cands[j].MTime
		}
		return cands[i].Path < cands[j].Path
	})
}
