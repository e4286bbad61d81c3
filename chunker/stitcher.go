package chunker

import "unicode/utf8"

// stitch turns pristine segments into final chunk texts by prepending the
// tail of the previous pristine segment to every segment after the first.
// The prefix always comes from the original split, never from a later edit,
// so neighboring chunks stay in sync no matter what the user does to their
// buffers afterwards. Overlap and size are counted in runes; when prefix
// plus segment would exceed chunkSize the segment's own tail is cut, never
// the prefix.
func stitch(segments []string, chunkSize, chunkOverlap int) []string {
	if len(segments) == 0 {
		return []string{}
	}

	out := make([]string, 0, len(segments))
	out = append(out, segments[0])

	for i := 1; i < len(segments); i++ {
		prefix := tailRunes(segments[i-1], chunkOverlap)

		text := prefix + segments[i]
		if utf8.RuneCountInString(text) > chunkSize {
			text = headRunes(text, chunkSize)
		}

		out = append(out, text)
	}

	return out
}

// tailRunes returns the last n runes of s, or all of s when it is shorter.
func tailRunes(s string, n int) string {
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}

	return s[i:]
}

// headRunes returns the first n runes of s, or all of s when it is shorter.
func headRunes(s string, n int) string {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}

	return s[:i]
}
