package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborlens/vaultengine/internal/chunk"
	"github.com/arborlens/vaultengine/internal/embed"
	"github.com/arborlens/vaultengine/internal/embedder"
	"github.com/arborlens/vaultengine/internal/engineerrors"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/storage"
)

// fakeFS is an in-memory hydrator.Filesystem used so hydration in these
// tests never touches the real filesystem.
type fakeFS struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeFS() *fakeFS { return &fakeFS{files: make(map[string]string)} }

func (f *fakeFS) set(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

func (f *fakeFS) Read(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.files[path]
	if !ok {
		return nil, assert.AnError
	}
	return []byte(c), nil
}

func newTestWorker(t *testing.T, fs *fakeFS) (*Worker, *persistence.Manager) {
	t.Helper()
	dir := t.TempDir()
	provider := storage.New(dir, 8, nil)
	persist := persistence.NewManager(provider, dir, nil)
	w := New(fs, 64, chunk.DefaultOptions())
	return w, persist
}

func startTestWorker(t *testing.T, fs *fakeFS) (*Worker, *persistence.Manager) {
	t.Helper()
	w, persist := newTestWorker(t, fs)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Start(ctx, embedder.Config{Provider: embed.ProviderStatic}, "", persist))
	t.Cleanup(w.Stop)
	return w, persist
}

func TestWorker_StartReachesReady(t *testing.T) {
	w, _ := startTestWorker(t, newFakeFS())
	assert.Equal(t, StateReady, w.State())
	assert.Equal(t, uint64(1), w.SessionID())
}

func TestWorker_UpdateFiles_IndexesDocument(t *testing.T) {
	fs := newFakeFS()
	fs.set("a.md", "# Hello\n\nWorld of notes.")
	w, _ := startTestWorker(t, fs)

	err := w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "a.md", Content: "# Hello\n\nWorld of notes.", MTime: 1, Size: 10},
	})
	require.NoError(t, err)

	states, err := w.FileStates()
	require.NoError(t, err)
	require.Contains(t, states, "a.md")
	assert.Equal(t, int64(1), states["a.md"].MTime)
}

func TestWorker_UpdateFiles_IsIdempotent(t *testing.T) {
	fs := newFakeFS()
	content := "# Title\n\nSome body text here."
	fs.set("a.md", content)
	w, _ := startTestWorker(t, fs)

	update := FileUpdate{Path: "a.md", Content: content, MTime: 1, Size: int64(len(content))}
	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{update}))
	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{update}))

	states, err := w.FileStates()
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestWorker_DeleteThenUpdate_EqualsUpdateAlone(t *testing.T) {
	fs := newFakeFS()
	content := "# Title\n\nBody."
	fs.set("a.md", content)
	w, _ := startTestWorker(t, fs)

	update := FileUpdate{Path: "a.md", Content: content, MTime: 1, Size: int64(len(content))}
	require.NoError(t, w.DeleteFile("a.md"))
	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{update}))

	states, err := w.FileStates()
	require.NoError(t, err)
	assert.Len(t, states, 1)
	assert.Contains(t, states, "a.md")
}

func TestWorker_RenameFile_OldPathNoLongerQueryable(t *testing.T) {
	fs := newFakeFS()
	content := "# Title\n\nBody about renaming."
	fs.set("old.md", content)
	fs.set("new.md", content)
	w, _ := startTestWorker(t, fs)

	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "old.md", Content: content, MTime: 1, Size: int64(len(content))},
	}))

	err := w.RenameFile(context.Background(), "old.md", FileUpdate{
		Path: "new.md", Content: content, MTime: 2, Size: int64(len(content)),
	})
	require.NoError(t, err)

	states, err := w.FileStates()
	require.NoError(t, err)
	assert.NotContains(t, states, "old.md")
	assert.Contains(t, states, "new.md")
}

func TestWorker_UpdateFiles_RejectsPathTraversal(t *testing.T) {
	w, _ := startTestWorker(t, newFakeFS())
	err := w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "Allowed/../Secret/stolen.md", Content: "x", MTime: 1, Size: 1},
	})
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.InvalidInput))

	states, _ := w.FileStates()
	assert.Empty(t, states)
}

func TestWorker_DeleteFile_RejectsPathTraversal(t *testing.T) {
	w, _ := startTestWorker(t, newFakeFS())
	err := w.DeleteFile("../outside.md")
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.InvalidInput))
}

func TestWorker_EmptyQuery_ReturnsEmptyResults(t *testing.T) {
	fs := newFakeFS()
	fs.set("a.md", "Some note content.")
	w, _ := startTestWorker(t, fs)
	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "a.md", Content: "Some note content.", MTime: 1, Size: 10},
	}))

	results, err := w.KeywordSearch(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWorker_Similar_OnFreshDocumentReturnsEmpty(t *testing.T) {
	fs := newFakeFS()
	fs.set("a.md", "Hello")
	w, _ := startTestWorker(t, fs)
	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "a.md", Content: "Hello", MTime: 1, Size: 5},
	}))

	results, err := w.Similar("a.md", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWorker_FullReset_ClearsState(t *testing.T) {
	fs := newFakeFS()
	fs.set("a.md", "Some content to index.")
	w, _ := startTestWorker(t, fs)
	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "a.md", Content: "Some content to index.", MTime: 1, Size: 10},
	}))

	require.NoError(t, w.FullReset())

	states, err := w.FileStates()
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestWorker_SwapBumpsSessionID_DropsStaleCommands(t *testing.T) {
	fs := newFakeFS()
	w, persist := startTestWorker(t, fs)
	before := w.SessionID()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Swap(ctx, embedder.Config{Provider: embed.ProviderStatic}, "", persist))

	assert.Greater(t, w.SessionID(), before)
	assert.Equal(t, StateReady, w.State())

	// A command stamped with the pre-swap session id is dropped, not run.
	ran := false
	stale := &command{sessionID: before, run: func(w *Worker) (any, error) { ran = true; return nil, nil }, reply: make(chan reply, 1)}
	w.queue <- stale
	r := <-stale.reply
	assert.True(t, engineerrors.IsKind(r.err, engineerrors.TaskDropped))
	assert.False(t, ran)
}

func TestWorker_SaveLoadIndex_RoundTrips(t *testing.T) {
	fs := newFakeFS()
	fs.set("a.md", "Roundtrip body content for the index.")
	w, _ := startTestWorker(t, fs)
	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "a.md", Content: "Roundtrip body content for the index.", MTime: 1, Size: 30},
	}))

	payload, err := w.SaveIndex()
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	require.NoError(t, w.LoadIndex(payload))

	states, err := w.FileStates()
	require.NoError(t, err)
	assert.Contains(t, states, "a.md")
}

func TestWorker_LoadIndex_RejectsSchemaMismatch(t *testing.T) {
	w, _ := startTestWorker(t, newFakeFS())
	state := &persistence.EngineState{
		SchemaVersion:      persistence.CurrentSchemaVersion,
		EmbeddingModel:     "some-other-model",
		EmbeddingDimension: 4096,
		Aliases:            map[string]string{},
	}
	payload, err := persistence.EncodeState(state)
	require.NoError(t, err)

	err = w.LoadIndex(payload)
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.SchemaMismatch))
}

func TestWorker_Progress_TracksFilesAsTheyIndex(t *testing.T) {
	fs := newFakeFS()
	content := "A note with enough body text to produce at least one chunk."
	fs.set("a.md", content)
	w, _ := startTestWorker(t, fs)

	require.NoError(t, w.UpdateFiles(context.Background(), []FileUpdate{
		{Path: "a.md", Content: content, MTime: 1, Size: int64(len(content))},
	}))

	snap := w.Progress()
	assert.Equal(t, "ready", snap.Status)
	assert.Equal(t, 1, snap.FilesProcessed)
}
