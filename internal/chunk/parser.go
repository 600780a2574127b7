package chunk

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	frontmatterFence   = "---\n"
	headerPattern      = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t]*$`)
	frontmatterTitle   = regexp.MustCompile(`(?m)^title:\s*["']?(.*?)["']?\s*$`)
	frontmatterTags    = regexp.MustCompile(`(?m)^tags:\s*\[(.*?)\]\s*$`)
	frontmatterAliases = regexp.MustCompile(`(?m)^aliases:\s*\[(.*?)\]\s*$`)
	frontmatterListLn  = regexp.MustCompile(`(?m)^\s*-\s*(\S.*?)\s*$`)
)

// Parse turns raw document text into a ParseResult. It never returns an
// error: malformed input degrades to an empty chunk list with whatever
// links and metadata could still be recovered.
func Parse(raw string, opts Options) ParseResult {
	bodyOffset, frontmatter := splitFrontmatter(raw)
	body := raw[bodyOffset:]

	sanitised := sanitiseCompressedJSON(raw, bodyOffset)

	result := ParseResult{
		BodyOffset: bodyOffset,
	}
	result.Headers = extractHeaders(body, bodyOffset)
	if len(result.Headers) > 0 {
		result.TitleGuess = result.Headers[0].Text
	}
	if frontmatter != "" {
		if m := frontmatterTitle.FindStringSubmatch(frontmatter); m != nil && strings.TrimSpace(m[1]) != "" {
			result.TitleGuess = strings.TrimSpace(m[1])
		}
		result.Tags = extractListField(frontmatter, "tags:", frontmatterTags)
		result.Aliases = extractListField(frontmatter, "aliases:", frontmatterAliases)
	}

	bodyLinks := extractLinks(sanitised[bodyOffset:], bodyOffset, "body")
	fmLinks := extractLinks(frontmatter, 0, "frontmatter")
	result.Links = append(fmLinks, bodyLinks...)

	sanitisedBody := sanitised[bodyOffset:]
	result.SanitisedBody = sanitisedBody
	result.ContentHash = fnv1a64(sanitisedBody)

	if strings.TrimSpace(sanitisedBody) == "" {
		return result
	}

	result.Chunks = chunkBody(sanitisedBody, bodyOffset, opts)
	return result
}

// splitFrontmatter returns the byte offset of the first byte after the
// closing frontmatter fence (or 0 if there is none) and the frontmatter
// text itself (without the fences).
//
// A leading "---" not followed by a second "---\n" fence is treated as
// body content, to avoid mistaking a Markdown horizontal rule for the
// start of frontmatter.
func splitFrontmatter(raw string) (bodyOffset int, frontmatter string) {
	if !strings.HasPrefix(raw, frontmatterFence) {
		return 0, ""
	}
	rest := raw[len(frontmatterFence):]
	idx := strings.Index(rest, "\n---")
	if idx == -1 {
		return 0, ""
	}
	closeStart := len(frontmatterFence) + idx + 1 // position of second "---"
	after := raw[closeStart:]
	if !strings.HasPrefix(after, "---") {
		return 0, ""
	}
	tail := after[3:]
	// Accept "---\n" or "---" at EOF.
	nl := strings.IndexByte(tail, '\n')
	var end int
	if nl == -1 {
		end = closeStart + 3
	} else {
		end = closeStart + 3 + nl + 1
	}
	frontmatter = raw[len(frontmatterFence):closeStart-1]
	return end, frontmatter
}

func extractHeaders(body string, offset int) []Header {
	var headers []Header
	for _, m := range headerPattern.FindAllStringSubmatchIndex(body, -1) {
		level := len(body[m[2]:m[3]])
		text := strings.TrimSpace(body[m[4]:m[5]])
		headers = append(headers, Header{
			Level:  level,
			Text:   text,
			Offset: offset + m[0],
		})
	}
	return headers
}

// extractListField reads a frontmatter list-valued key (tags, aliases) in
// either its bracket form ("key: [a, b]") or YAML block-list form:
//
//	key:
//	  - a
//	  - b
//
// bracketPattern matches the bracket form only; the block-list form is
// located by a plain string search for keyPrefix so it works regardless of
// which field is being read.
func extractListField(frontmatter, keyPrefix string, bracketPattern *regexp.Regexp) []string {
	var values []string
	if m := bracketPattern.FindStringSubmatch(frontmatter); m != nil {
		for _, v := range strings.Split(m[1], ",") {
			v = strings.Trim(strings.TrimSpace(v), `"'`)
			if v != "" {
				values = append(values, v)
			}
		}
		return values
	}
	idx := strings.Index(frontmatter, keyPrefix)
	if idx == -1 {
		return nil
	}
	rest := frontmatter[idx+len(keyPrefix):]
	lines := strings.Split(rest, "\n")
	for _, ln := range lines[1:] {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		if m := frontmatterListLn.FindStringSubmatch(ln); m != nil {
			values = append(values, strings.Trim(m[1], `"'`))
			continue
		}
		break
	}
	return values
}

// sanitiseCompressedJSON replaces each fenced ```compressed-json ... ```
// block with an equal-length run of spaces, preserving absolute offsets
// for everything else in the file.
func sanitiseCompressedJSON(raw string, from int) string {
	const fenceTag = "```compressed-json"
	out := []byte(raw)
	search := from
	for {
		start := strings.Index(string(out[search:]), fenceTag)
		if start == -1 {
			break
		}
		start += search
		closeIdx := strings.Index(string(out[start+len(fenceTag):]), "```")
		if closeIdx == -1 {
			break
		}
		end := start + len(fenceTag) + closeIdx + 3
		for i := start; i < end; i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
		search = end
	}
	return string(out)
}

// decodeLinkTarget strips a trailing #anchor, percent-decodes, and strips
// a single leading '/'.
func decodeLinkTarget(target string) string {
	if idx := strings.IndexByte(target, '#'); idx != -1 {
		target = target[:idx]
	}
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	target = strings.TrimPrefix(target, "/")
	return target
}

func isURLOrMail(url string) bool {
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "mailto:") {
		return true
	}
	schemeIdx := strings.Index(lower, "://")
	return schemeIdx > 0 && schemeIdx < 10
}
