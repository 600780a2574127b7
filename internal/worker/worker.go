// Package worker is the engine's single-writer command processor: one
// goroutine owns the vector index, graph, keyword index and document
// metadata table, and every mutation is serialised through one command
// queue. Queries run on the same goroutine between mutation boundaries, so
// every read observes a consistent snapshot. Every command is a closed
// func-variant submitted with its enqueue-time session id; a command
// dequeued after its session id goes stale (a worker restart or config
// swap bumped the counter) is dropped with TaskDropped instead of run.
package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/arborlens/vaultengine/internal/async"
	"github.com/arborlens/vaultengine/internal/chunk"
	"github.com/arborlens/vaultengine/internal/embedder"
	"github.com/arborlens/vaultengine/internal/engineerrors"
	"github.com/arborlens/vaultengine/internal/graph"
	"github.com/arborlens/vaultengine/internal/hydrator"
	"github.com/arborlens/vaultengine/internal/persistence"
	"github.com/arborlens/vaultengine/internal/scorer"
	"github.com/arborlens/vaultengine/internal/vectorindex"
)

// State is one state in the worker's Uninit -> Initializing -> Ready ->
// Swapping -> Terminated lifecycle.
type State int

const (
	StateUninit State = iota
	StateInitializing
	StateReady
	StateSwapping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSwapping:
		return "swapping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// FileState is the worker's view of one indexed document, returned by
// FileStates() for the sync orchestrator's delta scan.
type FileState struct {
	Path  string
	MTime int64
	Size  int64
	Hash  uint64
}

// FileUpdate is one document to (re)index, as submitted by the sync
// orchestrator's updateFiles(batch) call.
type FileUpdate struct {
	Path    string
	Content string
	Title   string
	MTime   int64
	Size    int64
}

// docMeta is the worker's per-document bookkeeping, outside the vector
// index and graph proper.
type docMeta struct {
	title       string
	mtime       int64
	size        int64
	contentHash uint64
	chunkIDs    []string
	chunks      map[string]chunk.Chunk
}

// Identity names the (model, dimension) pair the worker is currently
// running, used to detect a schema mismatch against a loaded shard.
type Identity struct {
	ModelID   string
	Dimension int
}

type command struct {
	sessionID uint64
	run       func(w *Worker) (any, error)
	reply     chan reply
}

type reply struct {
	correlationID uint64
	value         any
	err           error
}

// Worker owns all index state and serialises mutation through one
// goroutine.
type Worker struct {
	mu        sync.Mutex
	state     State
	sessionID uint64

	queue      chan *command
	stopCh     chan struct{}
	wg         sync.WaitGroup
	nextCorrID uint64

	embed    *embedder.Embedder
	persist  *persistence.Manager
	identity Identity

	vectors  *vectorindex.Index
	keywords *scorer.KeywordIndex
	g        *graph.Graph
	gars     *scorer.Scorer
	hydrate  *hydrator.Hydrator

	docs map[string]*docMeta

	chunkOpts      chunk.Options
	ontologyFolder string

	// progress tracks the live state of whatever UpdateFiles batch is
	// currently running, for CLI/UI pollers (internal/async is
	// self-synchronising, so Progress() is safe to call from any
	// goroutine without going through submit).
	progress *async.IndexProgress
}

// New creates an uninitialised Worker. Call Start to bring it to Ready.
func New(fs hydrator.Filesystem, hydrationRange int, chunkOpts chunk.Options) *Worker {
	return &Worker{
		state:    StateUninit,
		queue:    make(chan *command, 64),
		docs:     make(map[string]*docMeta),
		hydrate:  hydrator.New(fs, hydrationRange),
		progress: async.NewIndexProgress(),
		chunkOpts: func() chunk.Options {
			if chunkOpts.MaxChunkChars <= 0 {
				return chunk.DefaultOptions()
			}
			return chunkOpts
		}(),
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Progress returns a snapshot of the current (or most recently finished)
// indexing pass. Safe to call from any goroutine, including while a
// mutation command is in flight on the single-writer queue.
func (w *Worker) Progress() async.IndexProgressSnapshot {
	return w.progress.Snapshot()
}

// SessionID returns the worker's current session id.
func (w *Worker) SessionID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Start runs the embedder initialisation + state load sequence, then
// enters Ready and begins consuming the command queue. The embedder's
// (model, dimension) selects the shard to load; persist is the manager
// the worker loads from and saves to. Start runs no delta scan; the sync
// orchestrator does that.
func (w *Worker) Start(ctx context.Context, embedCfg embedder.Config, ontologyFolder string, persist *persistence.Manager) error {
	w.mu.Lock()
	if w.state != StateUninit && w.state != StateTerminated {
		w.mu.Unlock()
		return engineerrors.New(engineerrors.Fatal, "worker already started", nil)
	}
	w.state = StateInitializing
	w.sessionID++
	session := w.sessionID
	w.persist = persist
	w.ontologyFolder = ontologyFolder
	w.progress = async.NewIndexProgress()
	w.mu.Unlock()

	embed := embedder.New(nil)
	if err := embed.Initialize(ctx, embedCfg); err != nil {
		w.mu.Lock()
		w.state = StateTerminated
		w.mu.Unlock()
		return err
	}

	identity := Identity{ModelID: embed.ModelID(), Dimension: embed.Dimension()}
	state, err := persist.LoadState(identity.ModelID, identity.Dimension)
	if err != nil {
		w.mu.Lock()
		w.state = StateTerminated
		w.mu.Unlock()
		return engineerrors.New(engineerrors.Fatal, "load state failed", err)
	}
	if state.EmbeddingModel != "" && (state.EmbeddingModel != identity.ModelID || state.EmbeddingDimension != identity.Dimension) {
		// (model, dim) mismatch: discard, start clean.
		state = &persistence.EngineState{SchemaVersion: persistence.CurrentSchemaVersion, Aliases: map[string]string{}}
	}

	vectors, err := vectorindex.FromState(mustDimension(state, identity.Dimension))
	if err != nil {
		w.mu.Lock()
		w.state = StateTerminated
		w.mu.Unlock()
		return engineerrors.New(engineerrors.Fatal, "rebuild vector index failed", err)
	}
	g := graph.FromStateWithAliases(state.Nodes, state.Edges, state.Aliases, ontologyFolder)
	keywords, err := scorer.NewKeywordIndex()
	if err != nil {
		w.mu.Lock()
		w.state = StateTerminated
		w.mu.Unlock()
		return engineerrors.New(engineerrors.Fatal, "create keyword index failed", err)
	}

	docs := make(map[string]*docMeta)
	for _, c := range state.Chunks {
		d, ok := docs[c.Path]
		if !ok {
			d = &docMeta{chunks: make(map[string]chunk.Chunk)}
			docs[c.Path] = d
		}
		id := c.ChunkID()
		d.chunkIDs = append(d.chunkIDs, id)
		d.chunks[id] = chunk.Chunk{Start: c.Start, End: c.End, AnchorHash: c.AnchorHash, TokenCount: c.TokenCount}
	}

	w.mu.Lock()
	if w.sessionID != session {
		w.mu.Unlock()
		return engineerrors.New(engineerrors.TaskDropped, "start superseded", nil)
	}
	w.embed = embed
	w.identity = identity
	w.vectors = vectors
	w.keywords = keywords
	w.g = g
	w.gars = scorer.New(vectors, keywords, g)
	w.docs = docs
	w.state = StateReady
	w.mu.Unlock()

	w.wg.Add(1)
	w.stopCh = make(chan struct{})
	go w.run(session)
	return nil
}

func mustDimension(state *persistence.EngineState, dimension int) *persistence.EngineState {
	if state.EmbeddingDimension == 0 {
		state.EmbeddingDimension = dimension
	}
	return state
}

// run is the single consumer goroutine: it drains the command queue,
// dropping anything stamped with a stale session id.
func (w *Worker) run(session uint64) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case cmd := <-w.queue:
			w.mu.Lock()
			current := w.sessionID
			w.mu.Unlock()
			if cmd.sessionID != current {
				cmd.reply <- reply{correlationID: cmd.sessionID, err: engineerrors.New(engineerrors.TaskDropped, "command superseded by worker swap", nil)}
				continue
			}
			value, err := cmd.run(w)
			cmd.reply <- reply{correlationID: cmd.sessionID, value: value, err: err}
		}
	}
}

// submit enqueues fn, stamped with the worker's current session id, and
// waits for its reply. Returns a TaskDropped error if fn's session id goes
// stale before it runs, or if the worker isn't Ready.
func (w *Worker) submit(fn func(w *Worker) (any, error)) (any, error) {
	w.mu.Lock()
	if w.state == StateSwapping {
		w.mu.Unlock()
		return nil, engineerrors.New(engineerrors.TaskDropped, "worker is swapping models, not ready", nil)
	}
	if w.state != StateReady {
		state := w.state
		w.mu.Unlock()
		return nil, engineerrors.New(engineerrors.Fatal, "worker not ready: "+state.String(), nil)
	}
	session := w.sessionID
	w.mu.Unlock()

	cmd := &command{sessionID: session, run: fn, reply: make(chan reply, 1)}
	w.queue <- cmd
	r := <-cmd.reply
	return r.value, r.err
}

// Stop terminates the worker's consumer goroutine and marks it Terminated.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state == StateTerminated || w.state == StateUninit {
		w.mu.Unlock()
		return
	}
	w.state = StateTerminated
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
}

// Swap implements §4.9's config-change protocol: persist the current
// state under its frozen identity, enter Swapping (so in-flight queries
// see TaskDropped rather than a half-torn-down worker), stop the
// consumer goroutine, then re-initialise with the new (model,
// dimension) identity and load any matching shard. Callers are
// responsible for enqueuing a delta scan afterward.
func (w *Worker) Swap(ctx context.Context, embedCfg embedder.Config, ontologyFolder string, persist *persistence.Manager) error {
	w.mu.Lock()
	if w.state != StateReady {
		state := w.state
		w.mu.Unlock()
		return engineerrors.New(engineerrors.Fatal, "worker not ready to swap: "+state.String(), nil)
	}
	w.mu.Unlock()

	// Persist the current shard under its still-active identity while
	// the worker is still Ready, before tearing anything down.
	if _, err := w.SaveIndex(); err != nil {
		// Best effort: a save failure must not block the model swap
		// itself, since the old shard on disk is still intact.
	}

	w.mu.Lock()
	w.state = StateSwapping
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	w.state = StateTerminated
	w.mu.Unlock()

	return w.Start(ctx, embedCfg, ontologyFolder, persist)
}

// FileStates returns the worker's current view of every indexed document.
func (w *Worker) FileStates() (map[string]FileState, error) {
	v, err := w.submit(func(w *Worker) (any, error) {
		out := make(map[string]FileState, len(w.docs))
		for path, d := range w.docs {
			out[path] = FileState{Path: path, MTime: d.mtime, Size: d.size, Hash: d.contentHash}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]FileState), nil
}

// sortedChunkIDs is a small helper used by callers that need a
// deterministic chunk ordering (e.g. persistence export).
func sortedChunkIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
