package chunk

import "strings"

// chunkBody recursively splits a sanitised body into overlapping chunks no
// larger than opts.MaxChunkChars, falling back through paragraphs,
// sentences, whitespace and finally raw characters. offset is the byte
// offset of body[0] within the original file.
func chunkBody(body string, offset int, opts Options) []Chunk {
	if opts.MaxChunkChars <= 0 {
		opts = DefaultOptions()
	}
	spans := splitRecursive(body, 0, len(body), opts.MaxChunkChars)
	overlap := int(float64(opts.MaxChunkChars) * opts.OverlapRatio)

	chunks := make([]Chunk, 0, len(spans))
	for idx, sp := range spans {
		start := sp[0]
		if idx > 0 && overlap > 0 {
			start = max(0, sp[0]-overlap)
		}
		text := body[start:sp[1]]
		chunks = append(chunks, Chunk{
			Start:      offset + start,
			End:        offset + sp[1],
			Text:       text,
			AnchorHash: anchorHash(text),
			TokenCount: estimateTokens(text),
		})
	}
	return chunks
}

// splitRecursive returns a list of [start,end) spans (relative to body)
// each no larger than maxChars, trying paragraph boundaries first, then
// sentence boundaries, then whitespace, then hard character cuts.
func splitRecursive(body string, from, to, maxChars int) [][2]int {
	if to-from <= maxChars {
		return [][2]int{{from, to}}
	}

	segment := body[from:to]
	if boundaries := findBreaks(segment, "\n\n"); len(boundaries) > 0 {
		return splitOnBreaks(body, from, to, maxChars, boundaries)
	}
	if boundaries := findSentenceBreaks(segment); len(boundaries) > 0 {
		return splitOnBreaks(body, from, to, maxChars, boundaries)
	}
	if boundaries := findBreaks(segment, " "); len(boundaries) > 0 {
		return splitOnBreaks(body, from, to, maxChars, boundaries)
	}
	// Hard character cut.
	var spans [][2]int
	for s := from; s < to; s += maxChars {
		e := min(s+maxChars, to)
		spans = append(spans, [2]int{s, e})
	}
	return spans
}

func findBreaks(segment, sep string) []int {
	var breaks []int
	idx := 0
	for {
		pos := strings.Index(segment[idx:], sep)
		if pos == -1 {
			break
		}
		breaks = append(breaks, idx+pos+len(sep))
		idx += pos + len(sep)
	}
	return breaks
}

func findSentenceBreaks(segment string) []int {
	var breaks []int
	for i, r := range segment {
		if r == '.' || r == '!' || r == '?' {
			if i+1 < len(segment) && (segment[i+1] == ' ' || segment[i+1] == '\n') {
				breaks = append(breaks, i+1)
			}
		}
	}
	return breaks
}

// splitOnBreaks greedily packs content between candidate break points into
// spans no larger than maxChars.
func splitOnBreaks(body string, from, to, maxChars int, breaks []int) [][2]int {
	var spans [][2]int
	segStart := from
	lastBreak := from
	for _, b := range breaks {
		abs := from + b
		if abs-segStart > maxChars {
			if lastBreak > segStart {
				spans = append(spans, [2]int{segStart, lastBreak})
				segStart = lastBreak
			} else {
				// Single span already too big; recurse with a finer splitter.
				spans = append(spans, splitRecursive(body, segStart, abs, maxChars)...)
				segStart = abs
			}
		}
		lastBreak = abs
	}
	if segStart < to {
		if to-segStart > maxChars {
			spans = append(spans, splitRecursive(body, segStart, to, maxChars)...)
		} else {
			spans = append(spans, [2]int{segStart, to})
		}
	}
	return spans
}

func estimateTokens(text string) int {
	const charsPerToken = 4
	n := (len(text) + charsPerToken - 1) / charsPerToken
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
