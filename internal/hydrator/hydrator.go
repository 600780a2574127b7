// Package hydrator re-attaches a scored chunk reference to its live file
// content at query time: it re-reads and re-sanitises the file, checks the
// chunk's anchor hash, and heals small drifts with a bounded sliding-window
// search before flagging anything as genuinely drifted.
package hydrator

import (
	"strings"

	"github.com/arborlens/vaultengine/internal/chunk"
)

// Filesystem is the minimal read capability the hydrator needs; satisfied
// by internal/fsadapter in production and a fake in tests.
type Filesystem interface {
	Read(path string) ([]byte, error)
}

// Ref identifies a stored chunk the hydrator must re-attach to live text.
type Ref struct {
	Path       string
	Start      int
	End        int
	AnchorHash uint32
}

// Result is a hydrated excerpt, ready for display, plus its drift status.
type Result struct {
	Excerpt string
	Healed  bool
	Drifted bool
}

// Hydrator re-attaches Refs to live file content.
type Hydrator struct {
	fs          Filesystem
	searchRange int
}

// New creates a Hydrator. searchRange bounds the sliding window (in bytes,
// each side) searched when a chunk's exact offsets no longer match.
func New(fs Filesystem, searchRange int) *Hydrator {
	return &Hydrator{fs: fs, searchRange: searchRange}
}

// Hydrate resolves ref against the live file. A hollow ref (empty excerpt
// already, e.g. freshly loaded from the cold store with no text cached) is
// repopulated the same way a drift check would be.
//
// needsReindex is true when the document should be enqueued for
// re-indexing: the anchor no longer matches anywhere in the search window.
func (h *Hydrator) Hydrate(ref Ref) (result Result, needsReindex bool, err error) {
	raw, err := h.fs.Read(ref.Path)
	if err != nil {
		return Result{Drifted: true}, true, err
	}

	sanitisedBody, bodyOffset := chunk.Sanitise(string(raw))

	localStart := ref.Start - bodyOffset
	localEnd := ref.End - bodyOffset
	if window, ok := sliceInBounds(sanitisedBody, localStart, localEnd); ok {
		if chunk.AnchorHash(window) == ref.AnchorHash {
			return Result{Excerpt: strings.TrimSpace(window)}, false, nil
		}
	}

	if window, ok := h.slidingWindowSearch(sanitisedBody, localStart, localEnd, ref.AnchorHash); ok {
		return Result{Excerpt: strings.TrimSpace(window), Healed: true}, false, nil
	}

	return Result{Excerpt: "", Drifted: true}, true, nil
}

func sliceInBounds(s string, start, end int) (string, bool) {
	if start < 0 || end > len(s) || start > end {
		return "", false
	}
	return s[start:end], true
}

// slidingWindowSearch scans [start-searchRange, end+searchRange] for any
// window of the same length whose anchor hash matches want.
func (h *Hydrator) slidingWindowSearch(body string, start, end int, want uint32) (string, bool) {
	length := end - start
	if length <= 0 {
		return "", false
	}
	lo := start - h.searchRange
	if lo < 0 {
		lo = 0
	}
	hi := end + h.searchRange
	if hi > len(body) {
		hi = len(body)
	}

	for pos := lo; pos+length <= hi; pos++ {
		window := body[pos : pos+length]
		if chunk.AnchorHash(window) == want {
			return window, true
		}
	}
	return "", false
}
