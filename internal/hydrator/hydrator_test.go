package hydrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborlens/vaultengine/internal/chunk"
)

type fakeFS struct {
	files map[string]string
	err   error
}

func (f fakeFS) Read(path string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(content), nil
}

func TestHydrate_ExactMatchProducesTrimmedExcerpt(t *testing.T) {
	raw := "prefix\n  spaced  \nsuffix"
	sanitisedBody, bodyOffset := chunk.Sanitise(raw)
	start := bodyOffset + 7
	end := bodyOffset + 17
	anchor := chunk.AnchorHash(sanitisedBody[start-bodyOffset : end-bodyOffset])

	h := New(fakeFS{files: map[string]string{"b.md": raw}}, 32)
	result, needsReindex, err := h.Hydrate(Ref{Path: "b.md", Start: start, End: end, AnchorHash: anchor})

	require.NoError(t, err)
	assert.False(t, needsReindex)
	assert.False(t, result.Drifted)
	assert.False(t, result.Healed)
	assert.Equal(t, "spaced", result.Excerpt)
}

func TestHydrate_FrontmatterTitleCollisionHydratesFromBody(t *testing.T) {
	raw := "---\ntitle: My Header\n---\n\n# My Header\nActual Body"
	sanitisedBody, bodyOffset := chunk.Sanitise(raw)

	bodyIdx := indexOf(sanitisedBody, "My Header")
	require.GreaterOrEqual(t, bodyIdx, 0)
	start := bodyOffset + bodyIdx
	end := start + len("My Header")
	anchor := chunk.AnchorHash(sanitisedBody[bodyIdx : bodyIdx+len("My Header")])

	h := New(fakeFS{files: map[string]string{"c.md": raw}}, 32)
	result, needsReindex, err := h.Hydrate(Ref{Path: "c.md", Start: start, End: end, AnchorHash: anchor})

	require.NoError(t, err)
	assert.False(t, needsReindex)
	assert.Equal(t, "My Header", result.Excerpt)
}

func TestHydrate_SmallShiftIsHealedViaSlidingWindow(t *testing.T) {
	anchor := chunk.AnchorHash("hello")
	// The live file has grown by 3 bytes before the target text, so the
	// stored offsets no longer line up exactly.
	shifted := "0123456789ABCDE***helloFGHIJ"

	h := New(fakeFS{files: map[string]string{"a.md": shifted}}, 16)
	result, needsReindex, err := h.Hydrate(Ref{Path: "a.md", Start: 15, End: 20, AnchorHash: anchor})

	require.NoError(t, err)
	assert.False(t, needsReindex)
	assert.True(t, result.Healed)
	assert.Equal(t, "hello", result.Excerpt)
}

func TestHydrate_BeyondSearchRangeIsFlaggedDrifted(t *testing.T) {
	anchor := chunk.AnchorHash("hello")
	shifted := "hello " + string(make([]byte, 500)) + "tail"

	h := New(fakeFS{files: map[string]string{"a.md": shifted}}, 4)
	result, needsReindex, err := h.Hydrate(Ref{Path: "a.md", Start: 300, End: 305, AnchorHash: anchor})

	require.NoError(t, err)
	assert.True(t, needsReindex)
	assert.True(t, result.Drifted)
	assert.Empty(t, result.Excerpt)
}

func TestHydrate_ReadErrorIsSurfacedAndFlagsReindex(t *testing.T) {
	h := New(fakeFS{err: errors.New("disk fault")}, 16)
	_, needsReindex, err := h.Hydrate(Ref{Path: "missing.md", Start: 0, End: 5})
	assert.Error(t, err)
	assert.True(t, needsReindex)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
