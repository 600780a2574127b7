package embed

import (
	"context"
	"math"
)

// StaticDimensions is the embedding dimension for the narrow static
// embedder (kept for callers that need a compact vector width).
const StaticDimensions = 256

// Static768Dimensions is the embedding dimension for the default static
// embedder, chosen to match the dimension of the retrieval-tuned models
// this package used to wrap, so a vault's persisted shard layout doesn't
// have to change if a real model-backed provider is reintroduced later.
const Static768Dimensions = 768

// Embedder generates vector embeddings for text. internal/embedder adapts
// this provider-agnostic capability to the worker's role-aware Embed call;
// the engine itself never knows how a vector was produced.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
