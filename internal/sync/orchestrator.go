// Package sync is the Sync Orchestrator (spec §4.9): it subscribes to
// filesystem change notifications, debounces them through two windows
// (a short global-idle window for background edits and a longer
// active-file window for the note the caller is currently editing),
// batches the result into internal/worker's UpdateFiles/DeleteFile
// calls, and runs the config-change protocol (persist, swap, delta
// scan) when the active embedding model changes.
package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arborlens/vaultengine/internal/embedder"
	"github.com/arborlens/vaultengine/internal/fsadapter"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/watcher"
	"github.com/arborlens/vaultengine/internal/worker"
)

// Options configures an Orchestrator.
type Options struct {
	// GlobalIdle is the debounce window applied to files other than the
	// active one. Default 5s.
	GlobalIdle time.Duration
	// ActiveFileWindow is the (longer) debounce window applied to the
	// file currently marked active via NotifyActive, to avoid thrashing
	// the note a person is actively editing. Default 30s.
	ActiveFileWindow time.Duration
	// FlushInterval is how often the debounce queue is checked for
	// elapsed deadlines. Default 500ms.
	FlushInterval time.Duration
}

// WithDefaults fills zero fields with the spec's defaults.
func (o Options) WithDefaults() Options {
	if o.GlobalIdle == 0 {
		o.GlobalIdle = 5 * time.Second
	}
	if o.ActiveFileWindow == 0 {
		o.ActiveFileWindow = 30 * time.Second
	}
	if o.FlushInterval == 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	return o
}

// task is one scheduled unit of work, queued at "high" (user-initiated,
// e.g. an immediate delete) or "low" (debounced background indexing)
// priority. The two-queue scheduler always drains high before low.
type task func(ctx context.Context)

// Orchestrator is the sync orchestrator: one instance per running vault.
type Orchestrator struct {
	fs  *fsadapter.Adapter
	w   *worker.Worker
	log *slog.Logger
	opt Options

	high chan task
	low  chan task

	pendingMu sync.Mutex
	pending   map[string]time.Time // path -> debounce deadline
	deletions map[string]bool

	activeMu   sync.Mutex
	activePath string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an Orchestrator over fs and w. Call Start to begin
// watching.
func New(fs *fsadapter.Adapter, w *worker.Worker, log *slog.Logger, opt Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		fs:        fs,
		w:         w,
		log:       log,
		opt:       opt.WithDefaults(),
		high:      make(chan task, 256),
		low:       make(chan task, 4096),
		pending:   make(map[string]time.Time),
		deletions: make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
}

// NotifyActive marks path as the currently-edited file, so its pending
// updates wait out the longer ActiveFileWindow instead of GlobalIdle.
// Pass "" to clear.
func (o *Orchestrator) NotifyActive(path string) {
	o.activeMu.Lock()
	o.activePath = path
	o.activeMu.Unlock()
}

func (o *Orchestrator) isActive(path string) bool {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	return path != "" && path == o.activePath
}

// Start subscribes to filesystem events, runs the startup delta scan,
// and begins the dispatcher and flush loop goroutines.
func (o *Orchestrator) Start(ctx context.Context) error {
	events, errs, err := o.fs.Subscribe(ctx)
	if err != nil {
		return err
	}

	o.wg.Add(3)
	go o.dispatchLoop(ctx)
	go o.flushLoop(ctx)
	go o.ingestLoop(ctx, events, errs)

	if err := o.ScanDelta(ctx); err != nil {
		o.log.Warn("startup delta scan failed", slog.String("error", err.Error()))
	}
	return nil
}

// Stop halts the orchestrator's goroutines and the underlying watcher
// subscription.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	o.wg.Wait()
	_ = o.fs.Stop()
}

// dispatchLoop is the single consumer of the two-queue scheduler: it
// always offers the high queue first, falling back to low only when
// high has nothing ready.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case t := <-o.high:
			t(ctx)
		default:
			select {
			case <-o.stopCh:
				return
			case t := <-o.high:
				t(ctx)
			case t := <-o.low:
				t(ctx)
			}
		}
	}
}

func (o *Orchestrator) ingestLoop(ctx context.Context, events <-chan []watcher.FileEvent, errs <-chan error) {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			for _, ev := range batch {
				o.handleEvent(ev)
			}
		case err, ok := <-errs:
			if !ok {
				continue
			}
			if err != nil {
				o.log.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}
}

func (o *Orchestrator) handleEvent(ev watcher.FileEvent) {
	switch ev.Operation {
	case watcher.OpDelete:
		o.enqueueDelete(ev.Path)
	case watcher.OpRename:
		o.enqueueDelete(ev.OldPath)
		o.enqueueUpdate(ev.Path)
	case watcher.OpCreate, watcher.OpModify:
		o.enqueueUpdate(ev.Path)
	case watcher.OpGitignoreChange, watcher.OpConfigChange:
		o.high <- func(ctx context.Context) {
			if err := o.ScanDelta(ctx); err != nil {
				o.log.Warn("reconciliation scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// enqueueDelete drops any pending update for path (a delete supersedes
// it) and submits the delete immediately, at high priority: deletes are
// never debounced per §4.9.
func (o *Orchestrator) enqueueDelete(path string) {
	o.pendingMu.Lock()
	delete(o.pending, path)
	o.pendingMu.Unlock()

	o.high <- func(ctx context.Context) {
		if err := o.w.DeleteFile(path); err != nil {
			o.log.Warn("delete file failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// enqueueUpdate records (or refreshes) path's debounce deadline. The
// flush loop batches every path whose deadline has elapsed into one
// low-priority UpdateFiles call.
func (o *Orchestrator) enqueueUpdate(path string) {
	window := o.opt.GlobalIdle
	if o.isActive(path) {
		window = o.opt.ActiveFileWindow
	}
	o.pendingMu.Lock()
	o.pending[path] = time.Now().Add(window)
	o.pendingMu.Unlock()
}

func (o *Orchestrator) flushLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opt.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.flushDue(ctx)
		}
	}
}

func (o *Orchestrator) flushDue(ctx context.Context) {
	now := time.Now()
	var due []string
	o.pendingMu.Lock()
	for path, deadline := range o.pending {
		if !now.Before(deadline) {
			due = append(due, path)
			delete(o.pending, path)
		}
	}
	o.pendingMu.Unlock()
	if len(due) == 0 {
		return
	}
	o.low <- func(ctx context.Context) {
		o.indexPaths(ctx, due)
	}
}

// indexPaths reads each path's current content and submits the whole
// set as one UpdateFiles batch, so the worker applies them atomically.
// A path that no longer exists (deleted between the debounce window
// opening and firing) is dropped silently; the delete event, if any,
// arrives separately at high priority.
func (o *Orchestrator) indexPaths(ctx context.Context, paths []string) {
	batch := make([]worker.FileUpdate, 0, len(paths))
	for _, path := range paths {
		if !o.fs.Exists(path) {
			continue
		}
		content, err := o.fs.Read(path)
		if err != nil {
			o.log.Warn("read file failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		batch = append(batch, worker.FileUpdate{
			Path:    path,
			Content: string(content),
			MTime:   time.Now().UnixNano(),
			Size:    int64(len(content)),
		})
	}
	if len(batch) == 0 {
		return
	}
	if err := o.w.UpdateFiles(ctx, batch); err != nil {
		o.log.Warn("update files failed", slog.Int("count", len(batch)), slog.String("error", err.Error()))
	}
}

// ScanDelta lists every markdown file in the vault, diffs it against
// the worker's current fileStates(), and enqueues only what changed:
// new or modified files are queued for (re)indexing, and files the
// worker still has indexed but which no longer exist on disk are
// pruned. This runs at startup and after every committed config change
// (§4.9).
func (o *Orchestrator) ScanDelta(ctx context.Context) error {
	files, err := o.fs.ListMarkdown()
	if err != nil {
		return err
	}
	known, err := o.w.FileStates()
	if err != nil {
		return err
	}

	currentPaths := make([]string, 0, len(files))
	var changed []string
	for _, f := range files {
		currentPaths = append(currentPaths, f.Path)
		prev, ok := known[f.Path]
		if !ok || prev.MTime != f.MTime || prev.Size != f.Size {
			changed = append(changed, f.Path)
		}
	}
	if len(changed) > 0 {
		o.low <- func(ctx context.Context) {
			o.indexPaths(ctx, changed)
		}
	}
	if err := o.w.PruneOrphans(currentPaths); err != nil {
		return err
	}
	return nil
}

// CommitConfig implements §4.9's config-change protocol end to end: the
// worker persists and swaps to newEmbedCfg/newOntologyFolder, then a
// fresh delta scan is enqueued against the (possibly empty) newly
// loaded shard.
func (o *Orchestrator) CommitConfig(ctx context.Context, newEmbedCfg embedder.Config, newOntologyFolder string, persist *persistence.Manager) error {
	if err := o.w.Swap(ctx, newEmbedCfg, newOntologyFolder, persist); err != nil {
		return err
	}
	return o.ScanDelta(ctx)
}
