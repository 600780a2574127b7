// Package storage implements the engine's two-tier blob store: a bounded,
// best-effort in-memory hot cache backed by an LRU, in front of a durable
// cold tier of files under the vault's hidden data directory.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DataDirGitignore is written into the hidden data directory the first
// time a Provider touches it, so a vault under version control never
// accidentally commits the index.
const DataDirGitignore = "# vaultengine index data — do not commit\n*\n"

// Provider is a typed, named two-tier key/value store.
type Provider struct {
	root string // hidden per-vault data directory
	mu   sync.Mutex
	hot  map[string]*lru.Cache[string, []byte]
	log  *slog.Logger

	hotCapacity int
}

// New creates a Provider rooted at dataDir. dataDir is created (with a
// .gitignore) on first use, not at construction time, so Provider can be
// constructed speculatively without touching disk.
func New(dataDir string, hotCapacity int, log *slog.Logger) *Provider {
	if hotCapacity <= 0 {
		hotCapacity = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		root:        dataDir,
		hot:         make(map[string]*lru.Cache[string, []byte]),
		log:         log,
		hotCapacity: hotCapacity,
	}
}

func (p *Provider) ensureDir() error {
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	gitignorePath := filepath.Join(p.root, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if werr := os.WriteFile(gitignorePath, []byte(DataDirGitignore), 0o644); werr != nil {
			p.log.Warn("failed to write data dir gitignore", slog.String("error", werr.Error()))
		}
	}
	return nil
}

func (p *Provider) hotStore(store string) *lru.Cache[string, []byte] {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.hot[store]
	if !ok {
		c, _ = lru.New[string, []byte](p.hotCapacity)
		p.hot[store] = c
	}
	return c
}

func (p *Provider) coldPath(store, key string) string {
	return filepath.Join(p.root, store, sanitiseKey(key))
}

// sanitiseKey maps an arbitrary store key to a safe filename component.
func sanitiseKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Put writes key in store to both tiers. The cold-tier write is atomic
// (write-temp-then-rename); a hot-tier failure is logged and swallowed.
func (p *Provider) Put(store, key string, value []byte) error {
	if err := p.ensureDir(); err != nil {
		return err
	}
	dir := filepath.Join(p.root, store)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir %q: %w", store, err)
	}
	path := p.coldPath(store, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write temp blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename blob into place: %w", err)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Warn("hot tier put panicked, ignoring", slog.Any("recover", r))
			}
		}()
		p.hotStore(store).Add(key, value)
	}()

	return nil
}

// Get reads key from store. It tries the hot tier first (best-effort,
// never authoritative) and falls back to the cold tier, repopulating the
// hot tier on a cold hit. Returns (nil, nil) on a clean miss.
func (p *Provider) Get(store, key string) ([]byte, error) {
	if v, ok := p.hotStore(store).Get(key); ok {
		return v, nil
	}
	path := p.coldPath(store, key)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	p.hotStore(store).Add(key, data)
	return data, nil
}

// Delete removes key from both tiers. It is not an error for key to be
// absent from either tier.
func (p *Provider) Delete(store, key string) error {
	p.hotStore(store).Remove(key)
	path := p.coldPath(store, key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Clear removes every key in store from both tiers.
func (p *Provider) Clear(store string) error {
	p.mu.Lock()
	delete(p.hot, store)
	p.mu.Unlock()

	dir := filepath.Join(p.root, store)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear store %q: %w", store, err)
	}
	return nil
}

// Root returns the cold-tier data directory.
func (p *Provider) Root() string { return p.root }
