package embed

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_StaticProvider(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewEmbedder(ctx, ProviderStatic, "")
	require.NoError(t, err)
	defer embedder.Close()

	assert.Equal(t, "static768", embedder.ModelName())
	assert.True(t, embedder.Available(ctx))
	assert.Equal(t, Static768Dimensions, embedder.Dimensions())
}

func TestNewEmbedder_EmptyProviderDefaultsToStatic(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewEmbedder(ctx, "", "")
	require.NoError(t, err)
	defer embedder.Close()

	assert.Equal(t, "static768", embedder.ModelName())
}

func TestNewEmbedder_UnknownProviderErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewEmbedder(ctx, ProviderType("ollama"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedder provider")
}

func TestNewEmbedder_CacheDisabledReturnsUncachedEmbedder(t *testing.T) {
	orig := os.Getenv("VAULTENGINE_EMBED_CACHE")
	defer os.Setenv("VAULTENGINE_EMBED_CACHE", orig)
	os.Setenv("VAULTENGINE_EMBED_CACHE", "false")

	ctx := context.Background()
	embedder, err := NewEmbedder(ctx, ProviderStatic, "")
	require.NoError(t, err)
	defer embedder.Close()

	_, ok := embedder.(*CachedEmbedder)
	assert.False(t, ok, "cache disabled: should not be wrapped in CachedEmbedder")
}

func TestNewEmbedder_CacheEnabledByDefault(t *testing.T) {
	orig := os.Getenv("VAULTENGINE_EMBED_CACHE")
	defer os.Setenv("VAULTENGINE_EMBED_CACHE", orig)
	os.Unsetenv("VAULTENGINE_EMBED_CACHE")

	ctx := context.Background()
	embedder, err := NewEmbedder(ctx, ProviderStatic, "")
	require.NoError(t, err)
	defer embedder.Close()

	_, ok := embedder.(*CachedEmbedder)
	assert.True(t, ok, "cache enabled by default: should wrap in CachedEmbedder")
}

func TestParseProvider_DefaultsToStatic(t *testing.T) {
	assert.Equal(t, ProviderStatic, ParseProvider(""))
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, ProviderStatic, ParseProvider("anything-else"))
}

func TestIsValidProvider(t *testing.T) {
	assert.True(t, IsValidProvider("static"))
	assert.True(t, IsValidProvider("STATIC"))
	assert.False(t, IsValidProvider("ollama"))
}

func TestGetInfo(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewEmbedder(ctx, ProviderStatic, "")
	require.NoError(t, err)
	defer embedder.Close()

	info := GetInfo(ctx, embedder)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, "static768", info.Model)
	assert.Equal(t, Static768Dimensions, info.Dimensions)
	assert.True(t, info.Available)
}

func TestMustNewEmbedder_PanicsOnInvalidProvider(t *testing.T) {
	assert.Panics(t, func() {
		MustNewEmbedder(context.Background(), ProviderType("ollama"), "")
	})
}
