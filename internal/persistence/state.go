// Package persistence implements the engine's versioned, model-sharded
// save/load of the in-memory index state, plus legacy-shard migration.
package persistence

import "strconv"

// CurrentSchemaVersion is bumped whenever EngineState's on-disk shape
// changes in a way that requires the migration path in Manager.LoadState.
const CurrentSchemaVersion = 1

// NodeKind distinguishes a real document from an unresolved link target.
type NodeKind string

const (
	NodeKindFile  NodeKind = "file"
	NodeKindTopic NodeKind = "topic"
)

// Node is a single vertex in the link graph.
type Node struct {
	ID   int
	Path string
	Kind NodeKind
}

// EdgeType distinguishes an explicit link from a derived similarity edge.
type EdgeType string

const (
	EdgeTypeLink     EdgeType = "link"
	EdgeTypeSemantic EdgeType = "semantic"
)

// Edge is a directed connection between two node IDs.
type Edge struct {
	From   int
	To     int
	Type   EdgeType
	Weight float64
	Source string // "frontmatter" or "body"
}

// ChunkRecord is the persisted, vector-less half of a chunk: its row in
// Vectors holds the embedding itself.
type ChunkRecord struct {
	Path       string
	Index      int // chunk ordinal within its document
	Start      int
	End        int
	AnchorHash uint32
	TokenCount int
}

// ChunkID returns the "path#index" identity used to address a chunk's row
// in the vector index.
func (c ChunkRecord) ChunkID() string {
	return c.Path + "#" + strconv.Itoa(c.Index)
}

// EngineState is the complete persisted artifact for one (model,
// dimension) shard.
type EngineState struct {
	SchemaVersion      int
	EmbeddingModel     string
	EmbeddingDimension int
	Nodes              []Node
	Edges              []Edge
	Chunks             []ChunkRecord
	Vectors            []float32 // packed, len == len(Chunks) * EmbeddingDimension
	Aliases            map[string]string
}

// Dimension satisfies the model-shard-purity invariant check: every
// vector's length must equal this value.
func (s *EngineState) Dimension() int { return s.EmbeddingDimension }
