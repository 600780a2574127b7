package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborlens/vaultengine/internal/chunk"
	"github.com/arborlens/vaultengine/internal/embed"
	"github.com/arborlens/vaultengine/internal/embedder"
	"github.com/arborlens/vaultengine/internal/fsadapter"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/storage"
	"github.com/arborlens/vaultengine/internal/worker"
)

// fakeHydratorFS adapts *fsadapter.Adapter to internal/hydrator.Filesystem
// (worker.New's only filesystem dependency), so the worker under test
// reads from the same vault root the orchestrator watches.
type fakeHydratorFS struct{ fs *fsadapter.Adapter }

func (f fakeHydratorFS) Read(path string) ([]byte, error) { return f.fs.Read(path) }

// testRig wires a real fsadapter, worker and orchestrator over a temp
// vault directory, with fast debounce windows so tests don't wait
// seconds for the spec's production defaults (5s / 30s).
type testRig struct {
	dir  string
	fs   *fsadapter.Adapter
	w    *worker.Worker
	orch *Orchestrator
}

func newTestRig(t *testing.T, opt Options) *testRig {
	t.Helper()
	dir := t.TempDir()
	fs := fsadapter.New(dir)
	w := worker.New(fakeHydratorFS{fs}, 64, chunk.DefaultOptions())

	provider := storage.New(t.TempDir(), 8, nil)
	persist := persistence.NewManager(provider, t.TempDir(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Start(ctx, embedder.Config{Provider: embed.ProviderStatic}, "", persist))
	t.Cleanup(w.Stop)

	o := New(fs, w, nil, opt)
	return &testRig{dir: dir, fs: fs, w: w, orch: o}
}

// runLoops starts only the dispatch and flush goroutines (not the real
// filesystem watcher subscription), so tests can drive events
// deterministically through the orchestrator's own enqueue methods.
func (r *testRig) runLoops(ctx context.Context) {
	r.orch.wg.Add(2)
	go r.orch.dispatchLoop(ctx)
	go r.orch.flushLoop(ctx)
}

func (r *testRig) writeFile(t *testing.T, relPath, content string) {
	t.Helper()
	full := filepath.Join(r.dir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met before timeout")
}

func TestOrchestrator_ScanDelta_PicksUpNewFile(t *testing.T) {
	r := newTestRig(t, Options{FlushInterval: 5 * time.Millisecond})
	r.writeFile(t, "notes/a.md", "Hello")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.runLoops(ctx)

	require.NoError(t, r.orch.ScanDelta(ctx))

	waitUntil(t, time.Second, func() bool {
		states, err := r.w.FileStates()
		return err == nil && len(states) == 1
	})

	states, err := r.w.FileStates()
	require.NoError(t, err)
	require.Contains(t, states, "notes/a.md")
	assert.Greater(t, states["notes/a.md"].Size, int64(0))

	results, err := r.w.Similar("notes/a.md", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOrchestrator_EnqueueUpdate_IsDebouncedThenIndexed(t *testing.T) {
	r := newTestRig(t, Options{GlobalIdle: 20 * time.Millisecond, FlushInterval: 5 * time.Millisecond})
	r.writeFile(t, "b.md", "Debounced content body.")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.runLoops(ctx)

	r.orch.enqueueUpdate("b.md")

	states, _ := r.w.FileStates()
	assert.Empty(t, states, "update should not apply before the debounce window elapses")

	waitUntil(t, time.Second, func() bool {
		states, err := r.w.FileStates()
		return err == nil && len(states) == 1
	})
}

func TestOrchestrator_Delete_IsImmediateNotDebounced(t *testing.T) {
	r := newTestRig(t, Options{GlobalIdle: 5 * time.Second, FlushInterval: 5 * time.Millisecond})
	r.writeFile(t, "c.md", "Will be deleted.")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.runLoops(ctx)

	require.NoError(t, r.w.UpdateFiles(ctx, []worker.FileUpdate{
		{Path: "c.md", Content: "Will be deleted.", MTime: 1, Size: 16},
	}))

	r.orch.enqueueDelete("c.md")

	waitUntil(t, time.Second, func() bool {
		states, err := r.w.FileStates()
		return err == nil && len(states) == 0
	})
}

func TestOrchestrator_ActiveFile_GetsLongerDebounceWindow(t *testing.T) {
	r := newTestRig(t, Options{GlobalIdle: 10 * time.Millisecond, ActiveFileWindow: 10 * time.Minute})
	r.orch.NotifyActive("active.md")

	before := time.Now()
	r.orch.enqueueUpdate("active.md")
	r.orch.enqueueUpdate("idle.md")

	r.orch.pendingMu.Lock()
	activeDeadline := r.orch.pending["active.md"]
	idleDeadline := r.orch.pending["idle.md"]
	r.orch.pendingMu.Unlock()

	assert.True(t, activeDeadline.Sub(before) > time.Minute)
	assert.True(t, idleDeadline.Sub(before) < time.Second)
}

func TestOrchestrator_CommitConfig_SwapsAndRescans(t *testing.T) {
	r := newTestRig(t, Options{FlushInterval: 5 * time.Millisecond})
	r.writeFile(t, "d.md", "Pre-swap content.")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r.runLoops(ctx)
	require.NoError(t, r.orch.ScanDelta(ctx))
	waitUntil(t, time.Second, func() bool {
		states, err := r.w.FileStates()
		return err == nil && len(states) == 1
	})

	sessionBefore := r.w.SessionID()

	provider := storage.New(t.TempDir(), 8, nil)
	persist := persistence.NewManager(provider, t.TempDir(), nil)
	require.NoError(t, r.orch.CommitConfig(ctx, embedder.Config{Provider: embed.ProviderStatic}, "", persist))

	assert.Greater(t, r.w.SessionID(), sessionBefore)

	waitUntil(t, time.Second, func() bool {
		states, err := r.w.FileStates()
		return err == nil && len(states) == 1
	})
}
