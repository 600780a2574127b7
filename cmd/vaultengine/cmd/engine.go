package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arborlens/vaultengine/internal/chunk"
	"github.com/arborlens/vaultengine/internal/config"
	"github.com/arborlens/vaultengine/internal/embed"
	"github.com/arborlens/vaultengine/internal/embedder"
	"github.com/arborlens/vaultengine/internal/facade"
	"github.com/arborlens/vaultengine/internal/fsadapter"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/storage"
	"github.com/arborlens/vaultengine/internal/worker"
)

// statusStartupTimeout bounds how long a read-only command (status) waits
// for the worker to reach Ready before giving up; embedder initialisation
// is the dominant cost and shouldn't block a status check indefinitely.
const statusStartupTimeout = 15 * time.Second

// buildEngine wires one facade.Engine over vaultRoot per cfg: the
// filesystem adapter, the persistence manager (and its two-tier
// storage provider), the single-writer worker, and the sync
// orchestrator, exactly as §2's data-flow diagram lays them out.
func buildEngine(vaultRoot string, cfg *config.Config, log *slog.Logger) (*facade.Engine, error) {
	fs := fsadapter.New(vaultRoot)

	dataDir := resolveDataDir(vaultRoot, cfg)
	provider := storage.New(dataDir, cfg.Storage.HotCacheSize, log)
	persist := persistence.NewManager(provider, dataDir, log)

	chunkOpts := chunk.Options{
		MaxChunkChars: cfg.Chunking.MaxChunkChars,
		OverlapRatio:  cfg.Chunking.OverlapRatio,
	}
	w := worker.New(fs, cfg.Scoring.HydrationSearchRange, chunkOpts)

	eng := facade.New(fs, w, persist, cfg.Graph.OntologyFolder, log)
	return eng, nil
}

// embedderConfig turns cfg's embeddings section into the embedder
// package's Config, validating the provider name up front so a typo in
// a vault's `.vaultengine.yaml` fails fast with a clear message rather
// than surfacing as an opaque Transient error at worker Start time.
func embedderConfig(cfg *config.Config) (embedder.Config, error) {
	if cfg.Embeddings.Provider != "" && !embed.IsValidProvider(cfg.Embeddings.Provider) {
		return embedder.Config{}, fmt.Errorf("unknown embeddings.provider %q (want %q)", cfg.Embeddings.Provider, embed.ProviderStatic)
	}
	return embedder.Config{Provider: embed.ProviderStatic, Model: cfg.Embeddings.ModelID}, nil
}

// startEngine builds and starts an Engine over vaultRoot, blocking until
// the worker has reached Ready and the initial delta scan has been
// enqueued. Callers must call Stop when done.
func startEngine(ctx context.Context, vaultRoot string, cfg *config.Config, log *slog.Logger) (*facade.Engine, error) {
	eng, err := buildEngine(vaultRoot, cfg, log)
	if err != nil {
		return nil, err
	}
	embedCfg, err := embedderConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx, embedCfg); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	return eng, nil
}
