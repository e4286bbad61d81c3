package session

import (
	"context"
	"errors"
	"testing"

	"github.com/chunkcanvas/chunkcanvas-mcp/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Rechunker_Commits(t *testing.T) {
	s := testSession(t)
	s.SetDocuments([]chunker.SourceDocument{{Filename: "f.txt", RawText: "AAAA BBBB CCCC"}})

	r := NewRechunker(s)
	defer r.Stop()

	require.NoError(t, <-r.Trigger(context.Background()))

	assert.Equal(t, Chunked, s.State())
	assert.Equal(t, []string{"AAAA BBBB ", "CCCC"}, chunkTexts(s.Chunks()))
}

func Test_Rechunker_CanceledContextDiscards(t *testing.T) {
	s := testSession(t)
	s.SetDocuments([]chunker.SourceDocument{{Filename: "f.txt", RawText: "AAAA BBBB CCCC"}})

	r := NewRechunker(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, <-r.Trigger(ctx), ErrSuperseded)
	assert.Equal(t, Unchunked, s.State())
}

func Test_Rechunker_LatestWins(t *testing.T) {
	s := testSession(t)
	s.SetDocuments([]chunker.SourceDocument{{Filename: "f.txt", RawText: "AAAA BBBB CCCC"}})

	r := NewRechunker(s)
	defer r.Stop()

	first := r.Trigger(context.Background())
	second := r.Trigger(context.Background())

	require.NoError(t, <-second)
	assert.Equal(t, Chunked, s.State())

	// The first request either finished before the second started or was
	// superseded by it; it never overwrites the newer result.
	err := <-first
	assert.True(t, err == nil || errors.Is(err, ErrSuperseded))
}

func Test_commitRechunk_StaleGenerationDiscarded(t *testing.T) {
	s := testSession(t)
	s.SetDocuments([]chunker.SourceDocument{{Filename: "f.txt", RawText: "AAAA BBBB CCCC"}})
	require.NoError(t, s.Rechunk())

	docs, cfg, gen := s.beginRechunk()
	chunks, err := chunker.ChunkDocuments(docs, cfg)
	require.NoError(t, err)

	// A mutation lands while the rechunk is in flight.
	require.NoError(t, s.EditChunk(0, "edited"))

	assert.False(t, s.commitRechunk(gen, chunks))
	assert.Equal(t, "edited", s.Chunks()[0].Text)
}
