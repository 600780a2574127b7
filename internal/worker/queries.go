package worker

import (
	"context"

	"github.com/arborlens/vaultengine/internal/chunk"
	"github.com/arborlens/vaultengine/internal/engineerrors"
	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/hydrator"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/scorer"
	"github.com/arborlens/vaultengine/internal/vectorindex"
)

// SearchResult is one hydrated, scored document returned from a query.
type SearchResult struct {
	Path    string
	Score   float64
	Excerpt string
	Healed  bool
	Drifted bool
}

// KeywordSearch runs the reflex (low-latency, keyword-dominant) query
// mode and hydrates each candidate's best-matching chunk into an
// excerpt.
func (w *Worker) KeywordSearch(ctx context.Context, query string, k int) ([]SearchResult, error) {
	v, err := w.submit(func(w *Worker) (any, error) {
		cands, err := scorer.Reflex(ctx, w.gars, w.embed, query, k, w.titleOf)
		if err != nil {
			return nil, err
		}
		return w.hydrateCandidates(cands), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]SearchResult), nil
}

// Search runs the deep hybrid query mode (vector + keyword + one-hop
// graph expansion) and hydrates each candidate.
func (w *Worker) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	v, err := w.submit(func(w *Worker) (any, error) {
		cands, err := scorer.Deep(ctx, w.gars, w.embed, query, k, w.titleOf)
		if err != nil {
			return nil, err
		}
		return w.hydrateCandidates(cands), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]SearchResult), nil
}

// Similar finds documents related to seedPath (graph-enhanced
// similar-to-seed, §4.6), filtered by minScore, and hydrates results.
func (w *Worker) Similar(seedPath string, k int, minScore float64) ([]SearchResult, error) {
	v, err := w.submit(func(w *Worker) (any, error) {
		cands, err := scorer.Similar(w.gars, seedPath, k)
		if err != nil {
			return nil, err
		}
		filtered := cands[:0]
		for _, c := range cands {
			if c.Score >= minScore {
				filtered = append(filtered, c)
			}
		}
		return w.hydrateCandidates(filtered), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]SearchResult), nil
}

// NeighborOptions configures a raw graph expansion query.
type NeighborOptions struct {
	Direction graph.Direction
	Mode      graph.Mode
}

// Neighbors returns path's raw graph neighbours, without any vector or
// keyword signal.
func (w *Worker) Neighbors(path string, opts NeighborOptions) ([]graph.Neighbor, error) {
	v, err := w.submit(func(w *Worker) (any, error) {
		return w.g.Neighbors(path, opts.Direction, opts.Mode), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]graph.Neighbor), nil
}

// SubgraphNode is one node in a layout-ready subgraph returned by
// Subgraph, with an optional caller-supplied position carried through
// unchanged.
type SubgraphNode struct {
	Path string
	X, Y float64
}

// SubgraphEdge is one edge in a Subgraph result.
type SubgraphEdge struct {
	From, To string
	Weight   float64
}

// Subgraph returns a small, layout-ready neighbourhood of centerPath for
// visualisation: the center node plus its direct neighbours. positions
// carries forward any caller-known node coordinates unchanged; updateID
// is echoed back so a caller can discard stale responses to superseded
// requests.
func (w *Worker) Subgraph(centerPath string, updateID string, positions map[string][2]float64) (updateIDOut string, nodes []SubgraphNode, edges []SubgraphEdge, err error) {
	v, err := w.submit(func(w *Worker) (any, error) {
		neighbors := w.g.Neighbors(centerPath, graph.DirectionBoth, graph.ModeSimple)
		ns := make([]SubgraphNode, 0, len(neighbors)+1)
		es := make([]SubgraphEdge, 0, len(neighbors))
		center := SubgraphNode{Path: centerPath}
		if pos, ok := positions[centerPath]; ok {
			center.X, center.Y = pos[0], pos[1]
		}
		ns = append(ns, center)
		for _, n := range neighbors {
			node := SubgraphNode{Path: n.Path}
			if pos, ok := positions[n.Path]; ok {
				node.X, node.Y = pos[0], pos[1]
			}
			ns = append(ns, node)
			es = append(es, SubgraphEdge{From: centerPath, To: n.Path, Weight: n.Weight})
		}
		return [3]any{ns, es}, nil
	})
	if err != nil {
		return "", nil, nil, err
	}
	arr := v.([3]any)
	return updateID, arr[0].([]SubgraphNode), arr[1].([]SubgraphEdge), nil
}

// titleOf looks up a document's display title; satisfies
// scorer.TitleLookup. Must only be called from the worker goroutine.
func (w *Worker) titleOf(path string) string {
	if d, ok := w.docs[path]; ok {
		return d.title
	}
	return ""
}

// hydrateCandidates re-attaches each candidate's best chunk to live file
// content via internal/hydrator, without changing ranking order. A
// candidate whose document has no chunks (e.g. a pure graph neighbour
// with an empty body) gets an empty excerpt.
func (w *Worker) hydrateCandidates(cands []scorer.Candidate) []SearchResult {
	out := make([]SearchResult, 0, len(cands))
	for _, c := range cands {
		res := SearchResult{Path: c.Path, Score: c.Score}
		ref, ok := w.bestChunkRef(c.Path)
		if ok {
			hydrated, needsReindex, err := w.hydrate.Hydrate(ref)
			if err == nil {
				res.Excerpt = hydrated.Excerpt
				res.Healed = hydrated.Healed
				res.Drifted = hydrated.Drifted
			}
			_ = needsReindex // re-indexing is enqueued by the sync orchestrator, not the worker itself
		}
		out = append(out, res)
	}
	return out
}

// bestChunkRef picks path's first chunk (by chunk id ordering) as the
// hydration target. A full implementation would pick the
// highest-scoring chunk; the worker only tracks per-document scores, so
// the first chunk is a reasonable deterministic stand-in.
func (w *Worker) bestChunkRef(path string) (hydrator.Ref, bool) {
	d, ok := w.docs[path]
	if !ok || len(d.chunkIDs) == 0 {
		return hydrator.Ref{}, false
	}
	ids := sortedChunkIDs(d.chunkIDs)
	c := d.chunks[ids[0]]
	return hydrator.Ref{Path: path, Start: c.Start, End: c.End, AnchorHash: c.AnchorHash}, true
}

// SaveIndex exports the current engine state as a self-describing binary
// shard (via internal/persistence) and persists it, returning the same
// bytes to the caller.
func (w *Worker) SaveIndex() ([]byte, error) {
	v, err := w.submit(func(w *Worker) (any, error) {
		state := w.buildState()
		if err := w.persist.SaveState(state, w.identity.ModelID, w.identity.Dimension); err != nil {
			return nil, engineerrors.New(engineerrors.Fatal, "save index failed", err)
		}
		payload, err := persistence.EncodeState(state)
		if err != nil {
			return nil, engineerrors.New(engineerrors.Fatal, "encode index failed", err)
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// LoadIndex replaces the worker's state with the shard encoded in
// payload. A shard whose (model, dimension) doesn't match the worker's
// active identity is rejected with SchemaMismatch and leaves the current
// state untouched.
func (w *Worker) LoadIndex(payload []byte) error {
	state, err := persistence.DecodeState(payload)
	if err != nil {
		return engineerrors.New(engineerrors.InvalidInput, "malformed index payload", err)
	}
	if state.EmbeddingModel != w.identity.ModelID || state.EmbeddingDimension != w.identity.Dimension {
		return engineerrors.New(engineerrors.SchemaMismatch, "loaded index does not match active embedding model", nil).
			WithDetail("loadedModel", state.EmbeddingModel)
	}

	_, err = w.submit(func(w *Worker) (any, error) {
		return nil, w.rebuildFrom(state)
	})
	return err
}

// buildState snapshots the worker's live state into a persistence.EngineState.
// Must only be called from the worker goroutine.
func (w *Worker) buildState() *persistence.EngineState {
	meta := make(map[string]persistence.ChunkRecord)
	for path, d := range w.docs {
		for i, id := range sortedChunkIDs(d.chunkIDs) {
			c := d.chunks[id]
			meta[id] = persistence.ChunkRecord{
				Path:       path,
				Index:      i,
				Start:      c.Start,
				End:        c.End,
				AnchorHash: c.AnchorHash,
				TokenCount: c.TokenCount,
			}
		}
	}
	records, packed := w.vectors.ToChunkRecords(meta)
	nodes, edges := w.g.Snapshot()
	return &persistence.EngineState{
		SchemaVersion:      persistence.CurrentSchemaVersion,
		EmbeddingModel:     w.identity.ModelID,
		EmbeddingDimension: w.identity.Dimension,
		Nodes:              nodes,
		Edges:              edges,
		Chunks:             records,
		Vectors:            packed,
		Aliases:            w.g.Aliases(),
	}
}

// rebuildFrom replaces vectors/graph/keywords/docs from state. Must only
// be called from the worker goroutine.
func (w *Worker) rebuildFrom(state *persistence.EngineState) error {
	vectors, err := vectorindex.FromState(state)
	if err != nil {
		return engineerrors.New(engineerrors.Fatal, "rebuild vector index failed", err)
	}
	keywords, err := scorer.NewKeywordIndex()
	if err != nil {
		return engineerrors.New(engineerrors.Fatal, "create keyword index failed", err)
	}

	docs := make(map[string]*docMeta)
	for _, c := range state.Chunks {
		d, ok := docs[c.Path]
		if !ok {
			d = &docMeta{chunks: make(map[string]chunk.Chunk)}
			docs[c.Path] = d
		}
		id := c.ChunkID()
		d.chunkIDs = append(d.chunkIDs, id)
		d.chunks[id] = chunk.Chunk{Start: c.Start, End: c.End, AnchorHash: c.AnchorHash, TokenCount: c.TokenCount}
	}

	w.vectors = vectors
	w.keywords = keywords
	w.g = graph.FromStateWithAliases(state.Nodes, state.Edges, state.Aliases, w.ontologyFolder)
	w.gars = scorer.New(w.vectors, w.keywords, w.g)
	w.docs = docs
	return nil
}
