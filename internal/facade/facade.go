// Package facade is the Query Facade (spec §4.10): the one external
// contract the retrieval engine guarantees. Every operation returns a
// well-typed result or a typed *engineerrors.EngineError; nothing else
// leaks out of internal/worker, internal/sync or internal/persistence.
package facade

import (
	"context"
	"log/slog"

	"github.com/arborlens/vaultengine/internal/async"
	"github.com/arborlens/vaultengine/internal/embedder"
	"github.com/arborlens/vaultengine/internal/fsadapter"
	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/persistence"
	syncpkg "github.com/arborlens/vaultengine/internal/sync"
	"github.com/arborlens/vaultengine/internal/worker"
)

// Engine is the Query Facade: it owns one worker, one sync orchestrator
// and the persistence manager backing both, and exposes every §4.10
// operation a caller (CLI, eventual UI) is allowed to use.
type Engine struct {
	fs      *fsadapter.Adapter
	w       *worker.Worker
	orch    *syncpkg.Orchestrator
	persist *persistence.Manager
	log     *slog.Logger

	ontologyFolder string
}

// New wires an Engine over fs, the worker and persistence manager, and
// the orchestrator watching fs for changes. Call Start to bring the
// worker to Ready and begin watching.
func New(fs *fsadapter.Adapter, w *worker.Worker, persist *persistence.Manager, ontologyFolder string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{fs: fs, w: w, persist: persist, ontologyFolder: ontologyFolder, log: log}
	e.orch = syncpkg.New(fs, w, log, syncpkg.Options{})
	return e
}

// Start initialises the worker (embedder, state load, delta scan) and
// starts the sync orchestrator's filesystem subscription.
func (e *Engine) Start(ctx context.Context, embedCfg embedder.Config) error {
	if err := e.w.Start(ctx, embedCfg, e.ontologyFolder, e.persist); err != nil {
		return err
	}
	return e.orch.Start(ctx)
}

// Stop stops the sync orchestrator and the worker, in that order, so no
// new filesystem-driven mutation races the worker's shutdown.
func (e *Engine) Stop() {
	e.orch.Stop()
	e.w.Stop()
}

// KeywordSearch runs the reflex, keyword-dominant query mode.
func (e *Engine) KeywordSearch(ctx context.Context, query string, k int) ([]worker.SearchResult, error) {
	return e.w.KeywordSearch(ctx, query, k)
}

// Search runs the deep hybrid query mode (GARS: vector + keyword +
// one-hop graph expansion).
func (e *Engine) Search(ctx context.Context, query string, k int) ([]worker.SearchResult, error) {
	return e.w.Search(ctx, query, k)
}

// Similar finds documents related to a seed document (graph-enhanced
// similar-to-seed).
func (e *Engine) Similar(ctx context.Context, path string, k int, minScore float64) ([]worker.SearchResult, error) {
	return e.w.Similar(path, k, minScore)
}

// Neighbors returns a document's raw graph expansion, with no vector or
// keyword signal applied.
func (e *Engine) Neighbors(ctx context.Context, path string, opts worker.NeighborOptions) ([]graph.Neighbor, error) {
	return e.w.Neighbors(path, opts)
}

// Subgraph returns a small, layout-ready neighbourhood of centerPath for
// visualisation.
func (e *Engine) Subgraph(ctx context.Context, centerPath, updateID string, positions map[string][2]float64) (string, []worker.SubgraphNode, []worker.SubgraphEdge, error) {
	return e.w.Subgraph(centerPath, updateID, positions)
}

// FileStates returns the worker's current view of every indexed
// document, keyed by path.
func (e *Engine) FileStates() (map[string]worker.FileState, error) {
	return e.w.FileStates()
}

// Progress returns a snapshot of the worker's current indexing pass, for
// CLI/UI progress display. Safe to poll concurrently with any other
// Engine call.
func (e *Engine) Progress() async.IndexProgressSnapshot {
	return e.w.Progress()
}

// UpdateFiles submits a batch of document updates to be indexed
// atomically. Intended for callers (e.g. a note editor) that already
// have file content in hand and want to bypass the filesystem-watcher
// debounce.
func (e *Engine) UpdateFiles(ctx context.Context, updates []worker.FileUpdate) error {
	return e.w.UpdateFiles(ctx, updates)
}

// DeleteFile removes a document from the index.
func (e *Engine) DeleteFile(path string) error {
	return e.w.DeleteFile(path)
}

// RenameFile removes oldPath and indexes newFile as two ordered
// commands, so a query on oldPath issued after RenameFile returns never
// observes the stale identity.
func (e *Engine) RenameFile(ctx context.Context, oldPath string, newFile worker.FileUpdate) error {
	return e.w.RenameFile(ctx, oldPath, newFile)
}

// NotifyActive marks path as the file the caller is currently editing,
// so the sync orchestrator applies the longer active-file debounce
// window to it instead of the global-idle one.
func (e *Engine) NotifyActive(path string) {
	e.orch.NotifyActive(path)
}

// PendingConfig holds new engine configuration (new embedding model
// identity and/or ontology folder) for CommitConfig to apply. Engine has
// no separate staging call: nothing changes until CommitConfig runs.
type PendingConfig struct {
	EmbedConfig    embedder.Config
	OntologyFolder string
}

// CommitConfig runs the full config-change protocol (§4.9): persist the
// active worker's state, terminate it, reinitialise with the new
// (model, dimension) identity, load any matching shard, and enqueue a
// delta scan.
func (e *Engine) CommitConfig(ctx context.Context, pending PendingConfig) error {
	e.ontologyFolder = pending.OntologyFolder
	return e.orch.CommitConfig(ctx, pending.EmbedConfig, pending.OntologyFolder, e.persist)
}

// PruneOrphans removes every indexed document whose path is not present
// in currentPaths.
func (e *Engine) PruneOrphans(currentPaths []string) error {
	return e.w.PruneOrphans(currentPaths)
}

// SaveIndex persists and returns the engine's current state as a
// self-describing binary shard.
func (e *Engine) SaveIndex() ([]byte, error) {
	return e.w.SaveIndex()
}

// LoadIndex replaces the engine's state with the shard encoded in
// payload.
func (e *Engine) LoadIndex(payload []byte) error {
	return e.w.LoadIndex(payload)
}

// FullReset discards all index state, e.g. before a full re-scan from
// scratch.
func (e *Engine) FullReset() error {
	return e.w.FullReset()
}
