// Package session owns the live chunk set for one editing session. It is
// the single writer: every mutation goes through it, the content hash is
// recomputed eagerly after each one, and readers get snapshot copies.
package session

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/chunkcanvas/chunkcanvas-mcp/chunker"
)

// State tracks where the chunk set is in its lifecycle. A full re-chunk
// always lands back in Chunked, discarding manual edits: changed parameters
// or sources shift segment boundaries, so prior edits no longer apply.
type State int

const (
	Unchunked State = iota
	Chunked
	Edited
)

func (s State) String() string {
	switch s {
	case Chunked:
		return "chunked"
	case Edited:
		return "edited"
	default:
		return "unchunked"
	}
}

type Session struct {
	log *slog.Logger

	mu     sync.Mutex
	cfg    chunker.Config
	docs   []chunker.SourceDocument
	chunks []chunker.Chunk
	hash   chunker.ContentHash
	state  State
	gen    uint64
}

func New(log *slog.Logger, cfg chunker.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		log:  log,
		cfg:  cfg,
		hash: chunker.ComputeHash(nil),
	}, nil
}

// SetConfig replaces the chunking configuration. The chunk set is not
// rebuilt until the next Rechunk; any in-flight background re-chunk is
// invalidated.
func (s *Session) SetConfig(cfg chunker.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.gen++
	return nil
}

// SetDocuments replaces the full ordered document list.
func (s *Session) SetDocuments(docs []chunker.SourceDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = slices.Clone(docs)
	s.gen++
}

// PutDocument updates a document in place when its filename is already
// known, keeping its position in the aggregation order, and appends it
// otherwise.
func (s *Session) PutDocument(doc chunker.SourceDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.docs, func(d chunker.SourceDocument) bool {
		return d.Filename == doc.Filename
	})
	if i < 0 {
		s.docs = append(s.docs, doc)
	} else {
		s.docs[i] = doc
	}

	s.gen++
}

// RemoveDocument drops a document from the session. Removing an unknown
// filename is a no-op.
func (s *Session) RemoveDocument(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.docs)
	s.docs = slices.DeleteFunc(s.docs, func(d chunker.SourceDocument) bool {
		return d.Filename == filename
	})
	if len(s.docs) != before {
		s.gen++
	}
}

// Rechunk rebuilds the chunk set from the pristine sources with the current
// configuration. Manual edits are discarded: boundaries may have shifted,
// so prior edits no longer apply to any particular chunk.
func (s *Session) Rechunk() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, err := chunker.ChunkDocuments(s.docs, s.cfg)
	if err != nil {
		return err
	}

	s.chunks = chunks
	s.hash = chunker.ComputeHash(chunks)
	s.state = Chunked

	s.log.Info("rechunked",
		slog.Int("documents", len(s.docs)),
		slog.Int("chunks", len(chunks)),
		slog.String("hash", string(s.hash)))

	return nil
}

// EditChunk replaces the text of one chunk. Neighboring chunks are
// untouched: overlap prefixes were fixed at chunking time from the pristine
// segments and do not track edits. Editing to the identical text is a no-op.
func (s *Session) EditChunk(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.chunks) {
		return fmt.Errorf("chunk index %d out of range [0, %d)", index, len(s.chunks))
	}

	if s.chunks[index].Text == text {
		return nil
	}

	s.gen++
	s.chunks[index].Text = text
	s.hash = chunker.ComputeHash(s.chunks)
	s.state = Edited

	return nil
}

// DeleteChunk removes one chunk and re-indexes the rest so indices stay
// contiguous from 0.
func (s *Session) DeleteChunk(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.chunks) {
		return fmt.Errorf("chunk index %d out of range [0, %d)", index, len(s.chunks))
	}

	s.gen++
	s.chunks = slices.Delete(s.chunks, index, index+1)
	chunker.Reindex(s.chunks)
	s.hash = chunker.ComputeHash(s.chunks)
	s.state = Edited

	return nil
}

// beginRechunk hands out the inputs for an asynchronous re-chunk together
// with the generation they were taken at.
func (s *Session) beginRechunk() ([]chunker.SourceDocument, chunker.Config, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.docs), s.cfg, s.gen
}

// commitRechunk installs an asynchronously computed chunk set, unless a
// newer mutation has landed since the matching beginRechunk. Chunking is
// deterministic in the documents and config, so two commits from the same
// generation install identical data and need not supersede each other.
func (s *Session) commitRechunk(gen uint64, chunks []chunker.Chunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return false
	}

	s.chunks = chunks
	s.hash = chunker.ComputeHash(chunks)
	s.state = Chunked

	s.log.Info("rechunked",
		slog.Int("documents", len(s.docs)),
		slog.Int("chunks", len(chunks)),
		slog.String("hash", string(s.hash)))

	return true
}

// Chunks returns a copy of the current chunk set.
func (s *Session) Chunks() []chunker.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.chunks)
}

// Snapshot returns a consistent copy of the chunk set together with the
// hash it corresponds to, for embedding or upload. The caller must tag the
// resulting artifact with the returned hash.
func (s *Session) Snapshot() ([]chunker.Chunk, chunker.ContentHash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.chunks), s.hash
}

func (s *Session) Hash() chunker.ContentHash {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hash
}

func (s *Session) Config() chunker.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg
}

func (s *Session) Documents() []chunker.SourceDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.docs)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}
