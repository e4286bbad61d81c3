package chunker

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
)

const tokenCacheSize = 4096

// TokenCounter estimates per-chunk token counts for display. Counts are
// approximate: cl100k_base when the encoding can be loaded, chars/4
// otherwise. Safe for concurrent use over a fixed chunk snapshot.
type TokenCounter struct {
	enc   *tiktoken.Tiktoken
	cache *lru.Cache[string, int]
}

func NewTokenCounter() *TokenCounter {
	cache, _ := lru.New[string, int](tokenCacheSize)

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}

	return &TokenCounter{
		enc:   enc,
		cache: cache,
	}
}

func (tc *TokenCounter) Count(text string) int {
	if n, ok := tc.cache.Get(text); ok {
		return n
	}

	var n int
	if tc.enc != nil {
		n = len(tc.enc.Encode(text, nil, nil))
	} else {
		n = (len(text) + 3) / 4
	}

	tc.cache.Add(text, n)
	return n
}
