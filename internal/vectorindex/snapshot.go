package vectorindex

import "github.com/arborlens/vaultengine/internal/persistence"

// FromState rebuilds an Index from a loaded EngineState's chunk/vector
// arrays; each path's chunks keep the order they were persisted in.
func FromState(state *persistence.EngineState) (*Index, error) {
	ix := New(state.EmbeddingDimension)
	byPathIDs := make(map[string][]string)
	byPathVecs := make(map[string][][]float32)

	for i, c := range state.Chunks {
		id := c.ChunkID()
		start := i * state.EmbeddingDimension
		end := start + state.EmbeddingDimension
		if end > len(state.Vectors) {
			continue
		}
		byPathIDs[c.Path] = append(byPathIDs[c.Path], id)
		byPathVecs[c.Path] = append(byPathVecs[c.Path], state.Vectors[start:end])
	}

	for path, ids := range byPathIDs {
		if err := ix.UpsertChunks(path, ids, byPathVecs[path]); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// ToChunkRecords exports the index's rows as persistence.ChunkRecord plus
// a packed vector buffer, in ascending chunk-id order, joined against the supplied
// metadata lookup (anchor hash / offsets / token count) keyed by chunk id.
func (ix *Index) ToChunkRecords(meta map[string]persistence.ChunkRecord) ([]persistence.ChunkRecord, []float32) {
	rows := make([]int, 0, ix.active)
	for row := range ix.idOfRow {
		rows = append(rows, row)
	}
	// Preserve a stable order for deterministic round-trips.
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			if ix.idOfRow[rows[j]] < ix.idOfRow[rows[i]] {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}

	records := make([]persistence.ChunkRecord, 0, len(rows))
	packed := make([]float32, 0, len(rows)*ix.dimension)
	for _, row := range rows {
		id := ix.idOfRow[row]
		rec := meta[id]
		records = append(records, rec)
		packed = append(packed, ix.buffer[row*ix.dimension:(row+1)*ix.dimension]...)
	}
	return records, packed
}
