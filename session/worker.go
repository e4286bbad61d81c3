package session

import (
	"context"
	"errors"
	"sync"

	"github.com/chunkcanvas/chunkcanvas-mcp/chunker"
)

// ErrSuperseded is reported when a re-chunk result was discarded because a
// newer request or mutation landed while it was in flight.
var ErrSuperseded = errors.New("rechunk superseded by a newer request")

// Rechunker runs re-chunks off the caller's goroutine with latest-wins
// semantics: triggering a new re-chunk cancels any in-flight one, and an
// in-flight result is dropped if the session mutated after it started.
type Rechunker struct {
	session *Session

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewRechunker(s *Session) *Rechunker {
	return &Rechunker{session: s}
}

// Trigger starts a background re-chunk and returns a channel that receives
// the outcome: nil on commit, ErrSuperseded on discard, or a configuration
// error.
func (r *Rechunker) Trigger(ctx context.Context) <-chan error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	docs, cfg, gen := r.session.beginRechunk()

	done := make(chan error, 1)
	go func() {
		defer cancel()

		chunks, err := chunker.ChunkDocuments(docs, cfg)
		if err != nil {
			done <- err
			return
		}

		if ctx.Err() != nil || !r.session.commitRechunk(gen, chunks) {
			done <- ErrSuperseded
			return
		}

		done <- nil
	}()

	return done
}

// Stop cancels any in-flight re-chunk.
func (r *Rechunker) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
