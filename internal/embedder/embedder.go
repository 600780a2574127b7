// Package embedder adapts internal/embed's provider-agnostic Embedder
// (Embed/EmbedBatch/Dimensions/ModelName/Available/Close) to the role-aware
// capability the worker needs: initialize once, embed with a document-vs-
// query role and optional title, and estimate token counts even when the
// underlying provider can't report them.
package embedder

import (
	"context"
	"fmt"

	"github.com/arborlens/vaultengine/internal/embed"
	"github.com/arborlens/vaultengine/internal/engineerrors"
)

// Role distinguishes how a text should be embedded: some models prepend a
// different instruction string depending on whether the text is a document
// being indexed or a query being searched for.
type Role string

const (
	RoleDocument Role = "document"
	RoleQuery    Role = "query"
)

// CharsPerTokenEstimate is used to approximate token counts when the
// underlying provider cannot report them directly.
const CharsPerTokenEstimate = 4

// Config selects and configures the underlying provider.
type Config struct {
	Provider embed.ProviderType
	Model    string
}

// Embedder is the worker-facing embedding capability: initialize once at
// startup, then embed document or query text, role-aware.
type Embedder struct {
	inner embed.Embedder
}

// New wraps an already-constructed provider embedder (e.g. for tests).
func New(inner embed.Embedder) *Embedder {
	return &Embedder{inner: inner}
}

// Initialize constructs the underlying provider embedder per cfg. Must be
// called before Embed/CountTokens/Dimension.
func (e *Embedder) Initialize(ctx context.Context, cfg Config) error {
	inner, err := embed.NewEmbedder(ctx, cfg.Provider, cfg.Model)
	if err != nil {
		return engineerrors.New(engineerrors.Transient, "embedder initialization failed", err)
	}
	e.inner = inner
	return nil
}

// Dimension returns the fixed embedding width of the active provider.
func (e *Embedder) Dimension() int {
	if e.inner == nil {
		return 0
	}
	return e.inner.Dimensions()
}

// ModelID identifies the active provider/model, used as the persistence
// shard key's model component.
func (e *Embedder) ModelID() string {
	if e.inner == nil {
		return ""
	}
	return e.inner.ModelName()
}

// Embed produces a single embedding for text under the given role. title,
// when non-empty, is prepended to a document embedding the way a
// retrieval-tuned model expects ("titled" document embeddings generally
// score higher on recall than body-only embeddings).
func (e *Embedder) Embed(ctx context.Context, text string, role Role, title string) ([]float32, error) {
	if e.inner == nil {
		return nil, engineerrors.New(engineerrors.Fatal, "embedder not initialized", nil)
	}
	input := text
	if role == RoleDocument && title != "" {
		input = fmt.Sprintf("%s\n\n%s", title, text)
	}
	vec, err := e.inner.Embed(ctx, input)
	if err != nil {
		return nil, engineerrors.New(engineerrors.Transient, "embed request failed", err)
	}
	return vec, nil
}

// EmbedQuery satisfies internal/scorer.Embedder.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text, RoleQuery, "")
}

// CountTokens estimates the token count of text. None of the wrapped
// providers expose a real tokenizer, so this always uses the
// ceil(chars/estimate) approximation.
func (e *Embedder) CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + CharsPerTokenEstimate - 1) / CharsPerTokenEstimate
}

// Close releases the underlying provider's resources.
func (e *Embedder) Close() error {
	if e.inner == nil {
		return nil
	}
	return e.inner.Close()
}
