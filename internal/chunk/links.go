package chunk

import "strings"

// extractLinks scans text for wiki-style [[Target|Alias]] links and
// Markdown [text](url) links, respecting escapes, inline code spans
// (including multi-backtick delimiters) and fenced code blocks. Returned
// links carry no position, so offset is not used; source is stamped onto
// every returned Link.
func extractLinks(text string, offset int, source string) []Link {
	var links []Link
	i := 0
	n := len(text)
	inFence := false
	var fenceDelim string

	for i < n {
		c := text[i]

		// Escape: \x swallows one char.
		if c == '\\' && i+1 < n {
			i += 2
			continue
		}

		if inFence {
			if strings.HasPrefix(text[i:], fenceDelim) {
				inFence = false
				i += len(fenceDelim)
				continue
			}
			i++
			continue
		}

		// Fenced code block (``` or ~~~, any run length >= 3) at line start.
		if (c == '`' || c == '~') && atLineStart(text, i) {
			run := runLength(text, i, c)
			if run >= 3 {
				inFence = true
				fenceDelim = strings.Repeat(string(c), run)
				i += run
				continue
			}
		}

		// Inline code span: matched backtick run of any length.
		if c == '`' {
			run := runLength(text, i, '`')
			delim := strings.Repeat("`", run)
			closeIdx := strings.Index(text[i+run:], delim)
			if closeIdx == -1 {
				i += run
				continue
			}
			i += run + closeIdx + run
			continue
		}

		// Wiki link [[Target|Alias]]
		if c == '[' && i+1 < n && text[i+1] == '[' {
			end := strings.Index(text[i+2:], "]]")
			if end == -1 {
				i += 2
				continue
			}
			inner := text[i+2 : i+2+end]
			if strings.Contains(inner, "\n") {
				// rejected: newline between [[ and ]]
				i += 2
				continue
			}
			target := inner
			if pipe := strings.IndexByte(inner, '|'); pipe != -1 {
				target = inner[:pipe]
			}
			target = strings.TrimSpace(target)
			if target != "" {
				links = append(links, Link{
					Target: decodeLinkTarget(target),
					Raw:    inner,
					Source: source,
				})
			}
			i += 2 + end + 2
			continue
		}

		// Markdown link [text](url)
		if c == '[' {
			closeBracket := matchBracket(text, i)
			if closeBracket != -1 && closeBracket+1 < n && text[closeBracket+1] == '(' {
				closeParen := strings.IndexByte(text[closeBracket+2:], ')')
				if closeParen != -1 {
					url := strings.TrimSpace(text[closeBracket+2 : closeBracket+2+closeParen])
					if !isURLOrMail(url) && url != "" {
						links = append(links, Link{
							Target: decodeLinkTarget(url),
							Raw:    text[i+1 : closeBracket],
							Source: source,
						})
					}
					i = closeBracket + 2 + closeParen + 1
					continue
				}
			}
		}

		i++
	}

	// Adjust offsets is not needed: caller only cares about target/source,
	// but keep offset parameter for API symmetry with future callers that
	// need positional link data.
	_ = offset
	return links
}

func atLineStart(text string, i int) bool {
	return i == 0 || text[i-1] == '\n'
}

func runLength(text string, i int, c byte) int {
	j := i
	for j < len(text) && text[j] == c {
		j++
	}
	return j - i
}

// matchBracket finds the index of the ']' matching the '[' at position i,
// accounting for nested brackets. Returns -1 if unmatched or if a newline
// appears before the match (markdown link text must stay on one line).
func matchBracket(text string, i int) int {
	depth := 0
	for j := i; j < len(text); j++ {
		switch text[j] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return j
			}
		case '\n':
			return -1
		}
	}
	return -1
}
