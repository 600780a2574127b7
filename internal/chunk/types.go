// Package chunk splits a document's body into anchored, independently
// embeddable chunks and extracts the metadata (links, headers, tags,
// frontmatter) the rest of the engine needs. Chunk boundaries are byte
// offsets into the original file, so internal/hydrator can re-locate them
// after drift, and each chunk carries an anchor hash for drift detection.
package chunk

// Link is a single wiki- or markdown-style link extracted from a document
// body, resolved down to a bare vault-relative target (no anchor, no
// percent-encoding, no leading slash).
type Link struct {
	Target string // resolved link target, case preserved
	Raw    string // original link text as it appeared in the source
	Source string // "frontmatter" or "body"
}

// Header is a single Markdown ATX heading.
type Header struct {
	Level int
	Text  string
	// Offset is the byte offset of the '#' rune in the original file.
	Offset int
}

// Chunk is a contiguous byte range within a document's sanitised body.
// Offsets are expressed relative to the original file, not the sanitised
// body, so that a drifted file can still be hydrated by re-reading and
// re-sanitising it.
type Chunk struct {
	Start      int
	End        int
	Text       string // verbatim sanitised-body substring [Start:End)
	AnchorHash uint32
	TokenCount int
}

// ParseResult is the complete output of parsing one document.
type ParseResult struct {
	TitleGuess    string
	Headers       []Header
	Tags          []string
	Aliases       []string
	Links         []Link
	Chunks        []Chunk
	SanitisedBody string
	BodyOffset    int // byte offset of first byte after the frontmatter fence
	ContentHash   uint64
}

// Options configures chunking behaviour.
type Options struct {
	MaxChunkChars int
	OverlapRatio  float64
}

// DefaultOptions returns the engine's default chunking behaviour.
func DefaultOptions() Options {
	return Options{
		MaxChunkChars: 2000,
		OverlapRatio:  0.15,
	}
}
