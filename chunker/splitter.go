package chunker

import (
	"strings"
	"unicode/utf8"
)

// Split partitions text into ordered segments, splitting at the
// highest-priority separator whose pieces fit and falling back to the next
// one only for pieces that are still too large. Separators are retained as
// suffixes, so concatenating the result reproduces text exactly; a retained
// trailing separator rides along without counting against chunkSize. An
// exhausted hierarchy degrades to fixed-width slices, which is also the
// behavior of an empty hierarchy.
func Split(text string, separators []string, chunkSize int) []string {
	if len(text) == 0 {
		return []string{}
	}

	s := splitter{
		text:      text,
		seps:      separators,
		chunkSize: chunkSize,
	}
	s.splitRange(0, len(text), 0)

	return s.out
}

// splitter walks byte ranges of the original text so that no intermediate
// substrings are materialized; chunkSize counts runes, never bytes, so
// multi-byte text is never cut mid-rune. Recursion depth is bounded by the
// hierarchy length: each level strips exactly one separator.
type splitter struct {
	text      string
	seps      []string
	chunkSize int
	out       []string
}

func (s *splitter) splitRange(start, end, sepIdx int) {
	if sepIdx >= len(s.seps) || s.seps[sepIdx] == "" {
		s.splitFixed(start, end)
		return
	}

	sep := s.seps[sepIdx]
	sepRunes := utf8.RuneCountInString(sep)
	accStart, accEnd := -1, -1
	accRunes := 0

	flush := func() {
		if accStart >= 0 {
			s.out = append(s.out, s.text[accStart:accEnd])
		}

		accStart, accEnd, accRunes = -1, -1, 0
	}

	for ps := start; ps < end; {
		// Each piece ends right after its separator occurrence; the final
		// piece may end bare. Only the trailing separator is free: interior
		// ones count toward the budget.
		pe := end
		tail := 0
		if i := strings.Index(s.text[ps:end], sep); i >= 0 {
			pe = ps + i + len(sep)
			tail = sepRunes
		}
		pieceRunes := utf8.RuneCountInString(s.text[ps:pe])

		switch {
		case accStart >= 0 && accRunes+pieceRunes-tail <= s.chunkSize:
			accEnd = pe
			accRunes += pieceRunes
		case pieceRunes-tail > s.chunkSize:
			flush()
			s.splitRange(ps, pe, sepIdx+1)
		case accStart < 0:
			accStart, accEnd, accRunes = ps, pe, pieceRunes
		default:
			flush()
			accStart, accEnd, accRunes = ps, pe, pieceRunes
		}

		ps = pe
	}

	flush()
}

// splitFixed emits fixed-width slices of chunkSize runes, the last one
// possibly shorter. Slices always land on rune boundaries.
func (s *splitter) splitFixed(start, end int) {
	sliceStart := start
	runes := 0

	for pos := start; pos < end; {
		_, w := utf8.DecodeRuneInString(s.text[pos:end])
		pos += w
		runes++

		if runes == s.chunkSize {
			s.out = append(s.out, s.text[sliceStart:pos])
			sliceStart, runes = pos, 0
		}
	}

	if sliceStart < end {
		s.out = append(s.out, s.text[sliceStart:end])
	}
}
