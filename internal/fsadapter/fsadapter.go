// Package fsadapter is the engine's filesystem boundary: atomic reads and
// writes scoped to a vault root, markdown enumeration, and change
// notifications sourced from internal/watcher's fsnotify/polling hybrid.
package fsadapter

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arborlens/vaultengine/internal/engineerrors"
	"github.com/arborlens/vaultengine/internal/watcher"
)

// FileInfo is one entry returned by ListMarkdown.
type FileInfo struct {
	Path  string // vault-relative, forward-slash separated
	MTime int64  // unix nanoseconds
	Size  int64
}

// Adapter is a vault-root-scoped filesystem boundary. All paths accepted
// and returned are vault-relative; Adapter refuses to resolve outside its
// root.
type Adapter struct {
	root string
	w    *watcher.HybridWatcher
}

// New creates an Adapter rooted at root. root must be an absolute,
// existing directory.
func New(root string) *Adapter {
	return &Adapter{root: filepath.Clean(root)}
}

// resolve turns a vault-relative path into an absolute one, refusing any
// path that would traverse outside the vault root.
func (a *Adapter) resolve(relPath string) (string, error) {
	cleaned := filepath.Clean(relPath)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", engineerrors.New(engineerrors.InvalidInput, "path traversal refused", nil).WithDetail("path", relPath)
	}
	abs := filepath.Join(a.root, cleaned)
	if !strings.HasPrefix(abs, a.root+string(os.PathSeparator)) {
		return "", engineerrors.New(engineerrors.InvalidInput, "path traversal refused", nil).WithDetail("path", relPath)
	}
	return abs, nil
}

// Exists reports whether relPath exists under the vault root.
func (a *Adapter) Exists(relPath string) bool {
	abs, err := a.resolve(relPath)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(abs)
	return statErr == nil
}

// Read returns relPath's full contents.
func (a *Adapter) Read(relPath string) ([]byte, error) {
	abs, err := a.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, engineerrors.New(engineerrors.Transient, "read failed", err).WithDetail("path", relPath)
	}
	return data, nil
}

// Write atomically replaces relPath's contents: write to a sibling temp
// file, fsync, then rename over the destination.
func (a *Adapter) Write(relPath string, data []byte) error {
	abs, err := a.resolve(relPath)
	if err != nil {
		return err
	}
	if mkErr := os.MkdirAll(filepath.Dir(abs), 0o755); mkErr != nil {
		return engineerrors.New(engineerrors.Transient, "mkdir failed", mkErr).WithDetail("path", relPath)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".tmp-*")
	if err != nil {
		return engineerrors.New(engineerrors.Transient, "create temp file failed", err).WithDetail("path", relPath)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return engineerrors.New(engineerrors.Transient, "write failed", err).WithDetail("path", relPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return engineerrors.New(engineerrors.Transient, "sync failed", err).WithDetail("path", relPath)
	}
	if err := tmp.Close(); err != nil {
		return engineerrors.New(engineerrors.Transient, "close failed", err).WithDetail("path", relPath)
	}
	if err := os.Rename(tmpPath, abs); err != nil {
		return engineerrors.New(engineerrors.Transient, "rename failed", err).WithDetail("path", relPath)
	}
	return nil
}

// Remove deletes relPath; a missing file is not an error.
func (a *Adapter) Remove(relPath string) error {
	abs, err := a.resolve(relPath)
	if err != nil {
		return err
	}
	if rmErr := os.Remove(abs); rmErr != nil && !os.IsNotExist(rmErr) {
		return engineerrors.New(engineerrors.Transient, "remove failed", rmErr).WithDetail("path", relPath)
	}
	return nil
}

// Mkdirs creates relPath (and parents) as a directory.
func (a *Adapter) Mkdirs(relPath string) error {
	abs, err := a.resolve(relPath)
	if err != nil {
		return err
	}
	if mkErr := os.MkdirAll(abs, 0o755); mkErr != nil {
		return engineerrors.New(engineerrors.Transient, "mkdirs failed", mkErr).WithDetail("path", relPath)
	}
	return nil
}

// ListMarkdown walks the vault root and returns every ".md" file.
func (a *Adapter) ListMarkdown() ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.Walk(a.root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(a.root, path)
		if relErr != nil {
			return relErr
		}
		out = append(out, FileInfo{
			Path:  filepath.ToSlash(rel),
			MTime: info.ModTime().UnixNano(),
			Size:  info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, engineerrors.New(engineerrors.Transient, "list markdown failed", err)
	}
	return out, nil
}

// Subscribe starts watching the vault root and returns the hybrid
// watcher's debounced batch-event channel and its error channel. Start
// runs the watcher's event loop for as long as ctx stays alive, so it is
// launched in its own goroutine; a failure during its initial setup (for
// example an unreadable subtree) surfaces on the returned error channel
// rather than as Subscribe's own return value. The caller is responsible
// for calling Stop when done.
func (a *Adapter) Subscribe(ctx context.Context) (<-chan []watcher.FileEvent, <-chan error, error) {
	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return nil, nil, engineerrors.New(engineerrors.Fatal, "watcher init failed", err)
	}
	a.w = w
	go func() {
		if startErr := w.Start(ctx, a.root); startErr != nil && ctx.Err() == nil {
			slog.Default().Error("filesystem watcher exited", "root", a.root, "error", startErr)
		}
	}()
	return w.Events(), w.Errors(), nil
}

// Stop stops the active subscription, if any.
func (a *Adapter) Stop() error {
	if a.w == nil {
		return nil
	}
	return a.w.Stop()
}
