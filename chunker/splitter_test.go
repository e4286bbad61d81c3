package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func Test_Split(t *testing.T) {
	var cases = []struct {
		input  string
		seps   []string
		size   int
		output []string
	}{
		{input: "AAAA BBBB CCCC", seps: []string{" "}, size: 9, output: []string{"AAAA BBBB ", "CCCC"}},
		{input: "", seps: []string{" "}, size: 9, output: []string{}},
		{input: "abcdefg", seps: nil, size: 3, output: []string{"abc", "def", "g"}},
		{input: "abcdefgh", seps: []string{"\n"}, size: 3, output: []string{"abc", "def", "gh"}},
		{input: "    ", seps: []string{" "}, size: 2, output: []string{"   ", " "}},
		{input: "aa\n\nbb\ncc dd", seps: []string{"\n\n", "\n", " "}, size: 5, output: []string{"aa\n\n", "bb\n", "cc dd"}},
		{input: "abcde fghij", seps: []string{" "}, size: 5, output: []string{"abcde ", "fghij"}},
		{input: "no separators here", seps: []string{"|"}, size: 100, output: []string{"no separators here"}},
		{input: "ααα βββ γγγ", seps: []string{" "}, size: 8, output: []string{"ααα βββ ", "γγγ"}},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			out := Split(c.input, c.seps, c.size)
			assert.Equal(t, c.output, out)
		})
	}
}

func Test_Split_Reconstruction(t *testing.T) {
	texts := []string{
		"AAAA BBBB CCCC",
		"one two three four five six seven eight nine ten",
		"para one\n\npara two with a much longer body than the first\n\nshort",
		"| a | b |\n| 1 | 2 |\n",
		"\n\n\n\n",
		"nowhitespaceatallinthisratherlongtoken",
	}

	for i, text := range texts {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			segments := Split(text, []string{"\n\n", "\n", " "}, 10)
			assert.Equal(t, text, strings.Join(segments, ""))
		})
	}
}

func Test_Split_Deterministic(t *testing.T) {
	text := "some text, repeated words, some text again and again"
	seps := []string{", ", " "}

	first := Split(text, seps, 12)
	second := Split(text, seps, 12)

	assert.Equal(t, first, second)
}

func Test_Split_SizeBound(t *testing.T) {
	text := "word " + strings.Repeat("x", 37) + " tail\n\nanother paragraph with several words in it"
	seps := []string{"\n\n", " "}
	size := 10

	for _, seg := range Split(text, seps, size) {
		eff := len(seg)
		for _, sep := range seps {
			if strings.HasSuffix(seg, sep) {
				eff = len(seg) - len(sep)
				break
			}
		}

		assert.LessOrEqual(t, eff, size, "segment %q", seg)
	}
}

func Test_Split_RuneSized(t *testing.T) {
	// chunkSize counts runes: fixed-width slices of multi-byte text must
	// land on rune boundaries, never mid-rune.
	out := Split("ééééé", nil, 3)
	assert.Equal(t, []string{"ééé", "éé"}, out)

	for _, seg := range out {
		assert.True(t, utf8.ValidString(seg), "segment %q", seg)
	}

	assert.Equal(t, "ééééé", strings.Join(out, ""))
}

func Test_Split_ExactSizePieceNotSplit(t *testing.T) {
	// A piece of exactly chunkSize stays whole instead of falling through
	// to the next separator.
	out := Split("abcde", []string{" ", ""}, 5)
	assert.Equal(t, []string{"abcde"}, out)
}
