package persistence

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/gofrs/flock"

	"github.com/arborlens/vaultengine/internal/storage"
)

// magic identifies a vaultengine shard file, distinguishing a real shard
// from a legacy blob encountered during migration.
var magic = [4]byte{'V', 'E', 'N', 'G'}

var unsafeIdentityChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Manager owns the file-system artefacts under a hidden per-vault data
// directory, plus the hot-tier cache keyed by model-identity.
type Manager struct {
	provider *storage.Provider
	dataDir  string
	log      *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*flock.Flock
}

// NewManager creates a Manager rooted at dataDir.
func NewManager(provider *storage.Provider, dataDir string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		provider: provider,
		dataDir:  dataDir,
		log:      log,
		locks:    make(map[string]*flock.Flock),
	}
}

// Identity derives the sanitised shard identity string from (modelID,
// dimension): the model id with unsafe characters folded to '_', suffixed
// with a short hash so that two models differing only in punctuation never
// collide.
func Identity(modelID string, dimension int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", modelID, dimension)))
	short := hex.EncodeToString(sum[:])[:8]
	safe := unsafeIdentityChars.ReplaceAllString(modelID, "_")
	return fmt.Sprintf("%s-%d-%s", safe, dimension, short)
}

func shardFileName(identity string) string {
	return fmt.Sprintf("graph-state-%s.msgpack", identity)
}

func hotKey(identity string) string {
	return "orama_index_buffer_" + identity
}

func legacyFileName() string {
	return "graph-state.msgpack"
}

func (m *Manager) shardLock(identity string) *flock.Flock {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[identity]
	if !ok {
		l = flock.New(filepath.Join(m.dataDir, shardFileName(identity)+".lock"))
		m.locks[identity] = l
	}
	return l
}

// SaveState encodes state and writes it cold-tier first, then best-effort
// hot-tier, gated by an exclusive flock so two processes never race on the
// same shard.
func (m *Manager) SaveState(state *EngineState, modelID string, dimension int) error {
	identity := Identity(modelID, dimension)
	lock := m.shardLock(identity)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire shard lock: %w", err)
	}
	defer lock.Unlock()

	state.SchemaVersion = CurrentSchemaVersion
	state.EmbeddingModel = modelID
	state.EmbeddingDimension = dimension

	payload, err := encode(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := m.provider.Put("index", shardFileName(identity), payload); err != nil {
		return fmt.Errorf("write cold shard: %w", err)
	}

	// Hot tier is best-effort and never authoritative.
	if err := m.provider.Put("vectors", hotKey(identity), payload); err != nil {
		m.log.Warn("hot tier shard write failed, continuing", slog.String("error", err.Error()))
	}
	return nil
}

// LoadState probes the cold tier for (modelID, dimension)'s shard. On a
// miss it probes the legacy single-shard file and migrates it if it
// decodes with a (model, dimension) equal to the requested one. A
// malformed legacy file is deleted; one that belongs to another identity
// is left in place. In both cases a fresh, empty state is returned.
func (m *Manager) LoadState(modelID string, dimension int) (*EngineState, error) {
	identity := Identity(modelID, dimension)
	payload, err := m.provider.Get("index", shardFileName(identity))
	if err != nil {
		return nil, fmt.Errorf("read shard: %w", err)
	}
	if payload != nil {
		state, err := decode(payload)
		if err != nil {
			return nil, fmt.Errorf("decode shard: %w", err)
		}
		return state, nil
	}

	return m.migrateLegacy(modelID, dimension)
}

// migrateLegacy handles the legacy single-path file: it migrates if the
// blob decodes and its (model, dimension) match the requested identity;
// it deletes a malformed legacy file and keeps one of another identity,
// starting clean in both cases.
func (m *Manager) migrateLegacy(modelID string, dimension int) (*EngineState, error) {
	legacy, err := m.provider.Get("index", legacyFileName())
	if err != nil {
		return nil, fmt.Errorf("probe legacy shard: %w", err)
	}
	if legacy == nil {
		return emptyState(), nil
	}

	state, err := decode(legacy)
	if err != nil || state.EmbeddingModel == "" || state.EmbeddingDimension == 0 {
		// Malformed, or missing the embeddingModel/embeddingDimension pair:
		// remove the legacy file, do not write a new shard.
		if derr := m.provider.Delete("index", legacyFileName()); derr != nil {
			m.log.Warn("failed to remove malformed legacy shard", slog.String("error", derr.Error()))
		}
		return emptyState(), nil
	}

	if state.EmbeddingModel != modelID || state.EmbeddingDimension != dimension {
		// Not a match for the requested identity: leave it for whichever
		// identity it does belong to, start clean here.
		return emptyState(), nil
	}

	if err := m.SaveState(state, modelID, dimension); err != nil {
		return nil, fmt.Errorf("migrate legacy shard: %w", err)
	}
	if err := m.provider.Delete("index", legacyFileName()); err != nil {
		m.log.Warn("failed to remove migrated legacy shard", slog.String("error", err.Error()))
	}
	return state, nil
}

// DeleteState removes both tiers of the shard for (modelID, dimension).
// Shards are addressed by identity only; there is no delete by file name.
func (m *Manager) DeleteState(modelID string, dimension int) error {
	identity := Identity(modelID, dimension)
	if err := m.provider.Delete("index", shardFileName(identity)); err != nil {
		return fmt.Errorf("delete cold shard: %w", err)
	}
	if err := m.provider.Delete("vectors", hotKey(identity)); err != nil {
		m.log.Warn("failed to delete hot tier shard", slog.String("error", err.Error()))
	}
	return nil
}

// PurgeAllData wipes the entire data directory and hot store. Idempotent.
func (m *Manager) PurgeAllData() error {
	if err := m.provider.Clear("index"); err != nil {
		return fmt.Errorf("clear index store: %w", err)
	}
	if err := m.provider.Clear("vectors"); err != nil {
		return fmt.Errorf("clear vectors store: %w", err)
	}
	return nil
}

func emptyState() *EngineState {
	return &EngineState{
		SchemaVersion: CurrentSchemaVersion,
		Aliases:       make(map[string]string),
	}
}

// EncodeState exposes encode for callers outside this package that need a
// raw shard blob directly (e.g. the query facade's saveIndex()/loadIndex()
// contract, which hands bytes to the caller rather than writing to disk).
func EncodeState(state *EngineState) ([]byte, error) { return encode(state) }

// DecodeState exposes decode for callers outside this package.
func DecodeState(payload []byte) (*EngineState, error) { return decode(payload) }

// encode produces a self-describing, schema-versioned binary blob: a magic
// prefix, then a gob-encoded EngineState.
func encode(state *EngineState) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode reverses encode. A blob without the magic prefix is treated as
// legacy (pre-shard) format and decoded directly as an EngineState; the
// caller distinguishes "no schemaVersion" by checking the decoded value.
func decode(payload []byte) (*EngineState, error) {
	if len(payload) >= 4 && bytes.Equal(payload[:4], magic[:]) {
		dec := gob.NewDecoder(bytes.NewReader(payload[4:]))
		var state EngineState
		if err := dec.Decode(&state); err != nil {
			return nil, err
		}
		if state.Aliases == nil {
			state.Aliases = make(map[string]string)
		}
		return &state, nil
	}

	dec := gob.NewDecoder(bytes.NewReader(payload))
	var state EngineState
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("unrecognised shard format: %w", err)
	}
	if state.Aliases == nil {
		state.Aliases = make(map[string]string)
	}
	return &state, nil
}
