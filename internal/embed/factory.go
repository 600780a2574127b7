package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType names a concrete embedding backend.
type ProviderType string

// ProviderStatic is the only backend this engine currently ships: a
// deterministic, offline, hash-based embedder. The capability the rest of
// the engine depends on is the Embedder interface, not this provider; a
// model-backed provider (a local server, a cloud API) can be added later
// as another ProviderType without touching any caller.
const ProviderStatic ProviderType = "static"

// NewEmbedder constructs the embedder for provider, then wraps it with a
// query-embedding cache unless VAULTENGINE_EMBED_CACHE disables it.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	var embedder Embedder
	switch provider {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder768()
	default:
		return nil, fmt.Errorf("unknown embedder provider %q (want %q)", provider, ProviderStatic)
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}
	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("VAULTENGINE_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// NewDefaultEmbedder creates the engine's default (static) embedder.
func NewDefaultEmbedder(ctx context.Context) (Embedder, error) {
	return NewEmbedder(ctx, ProviderStatic, "")
}

// ParseProvider converts a string to ProviderType. Unknown or empty values
// default to ProviderStatic, the only backend this engine ships.
func ParseProvider(s string) ProviderType {
	return ProviderStatic
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	return strings.ToLower(s) == string(ProviderStatic)
}

// EmbedderInfo describes an embedder instance for status reporting.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	return EmbedderInfo{
		Provider:   ProviderStatic,
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
