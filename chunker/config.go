package chunker

import (
	"errors"
	"fmt"
	"slices"
)

// ErrConfiguration marks a chunking configuration rejected before any split
// runs. Callers that want to clamp values instead of failing must do so
// before handing the config to the engine.
var ErrConfiguration = errors.New("invalid chunking configuration")

// Config describes a single chunking run. Separators are literal strings in
// priority order, coarsest first; an empty list falls back to fixed-width
// character splitting. A config is immutable once handed to ChunkDocuments:
// changing any field means starting a new run.
type Config struct {
	Separators   []string
	ChunkSize    int
	ChunkOverlap int
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfiguration, c.ChunkSize)
	}

	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must be non-negative, got %d", ErrConfiguration, c.ChunkOverlap)
	}

	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrConfiguration, c.ChunkOverlap, c.ChunkSize)
	}

	seen := make(map[string]struct{}, len(c.Separators))
	for _, s := range c.Separators {
		if _, ok := seen[s]; ok {
			return fmt.Errorf("%w: duplicate separator %q", ErrConfiguration, s)
		}

		seen[s] = struct{}{}
	}

	return nil
}

// WithSeparator returns a copy of the config with sep toggled: appended at
// the lowest priority if absent, removed if present.
func (c Config) WithSeparator(sep string) Config {
	res := c
	res.Separators = slices.Clone(c.Separators)

	i := slices.Index(res.Separators, sep)
	if i < 0 {
		res.Separators = append(res.Separators, sep)
		return res
	}

	res.Separators = slices.Delete(res.Separators, i, i+1)
	return res
}

// WithSeparatorOrder returns a copy of the config with sep moved to
// priority position pos (clamped to the valid range). Asking for a
// separator that is not in the hierarchy is a no-op.
func (c Config) WithSeparatorOrder(sep string, pos int) Config {
	res := c
	res.Separators = slices.Clone(c.Separators)

	i := slices.Index(res.Separators, sep)
	if i < 0 {
		return res
	}

	res.Separators = slices.Delete(res.Separators, i, i+1)
	pos = max(0, min(pos, len(res.Separators)))
	res.Separators = slices.Insert(res.Separators, pos, sep)
	return res
}

// DefaultSeparators splits at paragraph breaks first, then line breaks,
// then words. Markdown tables and lists survive as long as they fit a chunk.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", " "}
}
