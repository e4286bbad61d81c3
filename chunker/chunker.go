package chunker

import (
	"golang.org/x/sync/errgroup"
)

// SourceDocument is the parser-side input: extracted plain text plus the
// file it came from. Position in the slice passed to Chunk defines
// aggregation order.
type SourceDocument struct {
	Filename string
	RawText  string
}

// Chunk is the atomic unit handed downstream: a bounded span of document
// text with provenance. Index is the chunk's position in the full aggregate
// sequence, contiguous from 0.
type Chunk struct {
	Index      int
	Text       string
	SourceFile string
}

// ChunkDocuments splits every document independently and concatenates the
// results in document order. Overlap never crosses a file boundary.
// Documents are processed concurrently, but the output order depends only on
// the input order, never on scheduling.
func ChunkDocuments(docs []SourceDocument, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	perDoc := make([][]string, len(docs))
	var g errgroup.Group

	for i, doc := range docs {
		g.Go(func() error {
			segments := Split(doc.RawText, cfg.Separators, cfg.ChunkSize)
			perDoc[i] = stitch(segments, cfg.ChunkSize, cfg.ChunkOverlap)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(docs))
	for i, texts := range perDoc {
		for _, text := range texts {
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				Text:       text,
				SourceFile: docs[i].Filename,
			})
		}
	}

	return chunks, nil
}

// Reindex restores the contiguous 0..n-1 index invariant in place, for use
// after a chunk is removed from a set.
func Reindex(chunks []Chunk) {
	for i := range chunks {
		chunks[i].Index = i
	}
}
