package worker

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/arborlens/vaultengine/internal/async"
	"github.com/arborlens/vaultengine/internal/chunk"
	"github.com/arborlens/vaultengine/internal/embedder"
	"github.com/arborlens/vaultengine/internal/engineerrors"
	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/scorer"
	"github.com/arborlens/vaultengine/internal/vectorindex"
)

// UpdateFiles applies a batch of document updates atomically: every file
// in the batch is parsed, re-embedded and re-graphed before the command
// returns, so a caller that queries immediately after observes all of
// them or none (the batch runs as one command on the single-writer
// queue).
func (w *Worker) UpdateFiles(ctx context.Context, updates []FileUpdate) error {
	_, err := w.submit(func(w *Worker) (any, error) {
		for _, u := range updates {
			if err := validatePath(u.Path); err != nil {
				return nil, err
			}
		}
		w.progress.SetStage(async.StageEmbedding, len(w.docs)+len(updates))
		for _, u := range updates {
			if err := w.applyUpdate(ctx, u); err != nil {
				w.progress.SetError(err.Error())
				return nil, err
			}
			w.progress.UpdateFiles(len(w.docs))
		}
		w.progress.SetStage(async.StageIndexing, len(w.docs))
		w.progress.SetReady()
		return nil, nil
	})
	return err
}

// applyUpdate indexes a single file. Called only from the worker
// goroutine (via submit), never concurrently.
func (w *Worker) applyUpdate(ctx context.Context, u FileUpdate) error {
	result := chunk.Parse(u.Content, w.chunkOpts)
	contentHash := result.ContentHash

	if existing, ok := w.docs[u.Path]; ok && existing.contentHash == contentHash {
		// Unchanged body: refresh bookkeeping only, no re-embed/re-graph.
		existing.mtime = u.MTime
		existing.size = u.Size
		return nil
	}

	w.removeDocument(u.Path)

	d := &docMeta{
		title:       firstNonEmpty(u.Title, result.TitleGuess),
		mtime:       u.MTime,
		size:        u.Size,
		contentHash: contentHash,
		chunks:      make(map[string]chunk.Chunk),
	}

	w.progress.SetChunksTotal(w.progress.Snapshot().ChunksTotal + len(result.Chunks))

	chunkIDs := make([]string, 0, len(result.Chunks))
	vectors := make([][]float32, 0, len(result.Chunks))
	for i, c := range result.Chunks {
		id := persistence.ChunkRecord{Path: u.Path, Index: i}.ChunkID()
		vec, err := w.embed.Embed(ctx, c.Text, embedder.RoleDocument, d.title)
		if err != nil {
			// A single chunk's embedding failure must not corrupt the
			// document's already-committed state; skip it, the
			// document stays without that chunk until the next index.
			continue
		}
		c.TokenCount = w.embed.CountTokens(c.Text)
		chunkIDs = append(chunkIDs, id)
		vectors = append(vectors, vec)
		d.chunkIDs = append(d.chunkIDs, id)
		d.chunks[id] = c
		if err := w.keywords.Index(id, u.Path, d.title, c.Text); err != nil {
			return engineerrors.New(engineerrors.Transient, "keyword index failed", err)
		}
		w.progress.UpdateChunks(w.progress.Snapshot().ChunksIndexed + 1)
	}
	if len(chunkIDs) > 0 {
		if err := w.vectors.UpsertChunks(u.Path, chunkIDs, vectors); err != nil {
			return engineerrors.New(engineerrors.Fatal, "vector upsert failed", err)
		}
	}
	w.docs[u.Path] = d

	w.g.PromoteToFile(u.Path)
	for _, link := range result.Links {
		target, ok := w.g.ResolveAlias(strings.ToLower(link.Target))
		if !ok {
			target = link.Target
		}
		w.g.AddEdge(u.Path, target, persistence.EdgeTypeLink, 1.0, link.Source)
	}
	for _, alias := range result.Aliases {
		w.g.SetAlias(alias, u.Path)
	}

	w.vectors.MaybeShrink()
	return nil
}

// DeleteFile removes a document and everything derived from it: its
// vector rows, keyword entries and graph node (which also drops every
// edge touching it, preserving referential integrity).
func (w *Worker) DeleteFile(path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	_, err := w.submit(func(w *Worker) (any, error) {
		w.removeDocument(path)
		return nil, nil
	})
	return err
}

// RenameFile treats a rename as delete-old-then-create-new, submitted as
// two ordered commands on the same queue so a query issued after
// RenameFile returns never observes the old identity.
func (w *Worker) RenameFile(ctx context.Context, oldPath string, newFile FileUpdate) error {
	if err := w.DeleteFile(oldPath); err != nil {
		return err
	}
	return w.UpdateFiles(ctx, []FileUpdate{newFile})
}

// PruneOrphans removes every indexed document whose path is not present
// in currentPaths, e.g. after an external bulk deletion the sync
// orchestrator didn't individually observe.
func (w *Worker) PruneOrphans(currentPaths []string) error {
	keep := make(map[string]bool, len(currentPaths))
	for _, p := range currentPaths {
		keep[p] = true
	}
	_, err := w.submit(func(w *Worker) (any, error) {
		for path := range w.docs {
			if !keep[path] {
				w.removeDocument(path)
			}
		}
		return nil, nil
	})
	return err
}

// removeDocument tears down path's vector rows, keyword entries, graph
// node and metadata. Must only be called from the worker goroutine.
func (w *Worker) removeDocument(path string) {
	d, ok := w.docs[path]
	if !ok {
		return
	}
	for _, id := range d.chunkIDs {
		_ = w.keywords.Delete(id)
	}
	w.vectors.DeleteDocument(path)
	w.g.RemoveNode(path)
	delete(w.docs, path)
}

// FullReset discards all index state and bumps the session id, dropping
// every command still queued under the previous session.
func (w *Worker) FullReset() error {
	w.mu.Lock()
	if w.state != StateReady {
		state := w.state
		w.mu.Unlock()
		return engineerrors.New(engineerrors.Fatal, "worker not ready: "+state.String(), nil)
	}
	w.sessionID++
	w.mu.Unlock()

	_, err := w.submit(func(w *Worker) (any, error) {
		keywords, err := scorer.NewKeywordIndex()
		if err != nil {
			return nil, engineerrors.New(engineerrors.Fatal, "create keyword index failed", err)
		}
		w.vectors = vectorindex.New(w.identity.Dimension)
		w.keywords = keywords
		w.g = graph.New(w.ontologyFolder)
		w.gars = scorer.New(w.vectors, w.keywords, w.g)
		w.docs = make(map[string]*docMeta)
		w.progress = async.NewIndexProgress()
		return nil, nil
	})
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func validatePath(p string) error {
	cleaned := filepath.Clean(p)
	hasDotDot := false
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			hasDotDot = true
		}
	}
	if hasDotDot || cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return engineerrors.New(engineerrors.InvalidInput, "path traversal refused", nil).WithDetail("path", p)
	}
	return nil
}
