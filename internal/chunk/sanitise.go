package chunk

// Sanitise applies the same transform Parse uses internally (compressed-json
// fence blanking) to an arbitrary byte offset within raw file content. The
// hydrator calls this directly when re-reading a live file, so that its
// hashes are computed against exactly the same bytes the indexer saw.
func Sanitise(raw string) (sanitisedBody string, bodyOffset int) {
	bodyOffset, _ = splitFrontmatter(raw)
	sanitised := sanitiseCompressedJSON(raw, bodyOffset)
	return sanitised[bodyOffset:], bodyOffset
}

// AnchorHash exposes the chunk anchor fingerprint for callers outside this
// package (the hydrator recomputes it against re-sanitised live content).
func AnchorHash(text string) uint32 { return anchorHash(text) }

// ContentHash exposes the document-level change-detection hash.
func ContentHash(sanitisedBody string) uint64 { return fnv1a64(sanitisedBody) }
