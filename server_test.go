package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/chunkcanvas/chunkcanvas-mcp/chunker"
	"github.com/chunkcanvas/chunkcanvas-mcp/docstore"
	"github.com/chunkcanvas/chunkcanvas-mcp/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChunkStore struct {
	mu            sync.Mutex
	uploads       []docstore.Batch
	forgets       []string
	retrieveCalls int
}

func (s *fakeChunkStore) Upload(ctx context.Context, b docstore.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, b)
	return nil
}

func (s *fakeChunkStore) Retrieve(ctx context.Context, query string) ([]docstore.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrieveCalls++
	return []docstore.SearchResult{{Text: "AAAA BBBB ", File: "f.txt", Index: 0, Score: 0.9}}, nil
}

func (s *fakeChunkStore) Forget(ctx context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgets = append(s.forgets, batchID)
	return nil
}

func testCanvasServer(t *testing.T) (*canvasServer, *fakeChunkStore) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sess, err := session.New(log, chunker.Config{
		Separators:   []string{" "},
		ChunkSize:    9,
		ChunkOverlap: 0,
	})
	require.NoError(t, err)

	sess.SetDocuments([]chunker.SourceDocument{{Filename: "f.txt", RawText: "AAAA BBBB CCCC"}})
	require.NoError(t, sess.Rechunk())

	store := &fakeChunkStore{}
	cs := &canvasServer{
		log:       log,
		session:   sess,
		rechunker: session.NewRechunker(sess),
		store:     store,
		tokens:    chunker.NewTokenCounter(),
	}

	return cs, store
}

func callReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func Test_UploadEmbeddings(t *testing.T) {
	cs, store := testCanvasServer(t)

	res, err := cs.uploadEmbeddings(context.Background(), callReq(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	require.Len(t, store.uploads, 1)
	b := store.uploads[0]
	assert.Equal(t, string(cs.session.Hash()), b.Hash)
	assert.Len(t, b.Chunks, 2)
	assert.Equal(t, "f.txt", b.Chunks[0].SourceFile)
}

func Test_UploadEmbeddings_NoopWhenFresh(t *testing.T) {
	cs, store := testCanvasServer(t)

	res, err := cs.uploadEmbeddings(context.Background(), callReq(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = cs.uploadEmbeddings(context.Background(), callReq(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Len(t, store.uploads, 1)
}

func Test_UploadEmbeddings_ForgetsPreviousBatch(t *testing.T) {
	cs, store := testCanvasServer(t)

	_, err := cs.uploadEmbeddings(context.Background(), callReq(nil))
	require.NoError(t, err)

	require.NoError(t, cs.session.EditChunk(0, "edited"))

	_, err = cs.uploadEmbeddings(context.Background(), callReq(nil))
	require.NoError(t, err)

	require.Len(t, store.uploads, 2)
	assert.Equal(t, []string{store.uploads[0].ID}, store.forgets)
	assert.NotEqual(t, store.uploads[0].Hash, store.uploads[1].Hash)
}

func Test_Search_BlockedWhenStale(t *testing.T) {
	cs, store := testCanvasServer(t)

	_, err := cs.uploadEmbeddings(context.Background(), callReq(nil))
	require.NoError(t, err)

	res, err := cs.search(context.Background(), callReq(map[string]any{"query": "bananas"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 1, store.retrieveCalls)

	// Any edit makes the uploaded embeddings stale: searching must be
	// refused instead of serving mismatched vectors.
	require.NoError(t, cs.session.EditChunk(0, "edited"))

	res, err = cs.search(context.Background(), callReq(map[string]any{"query": "bananas"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, 1, store.retrieveCalls)
}

func Test_Search_RequiresUpload(t *testing.T) {
	cs, store := testCanvasServer(t)

	res, err := cs.search(context.Background(), callReq(map[string]any{"query": "bananas"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Zero(t, store.retrieveCalls)
}

func Test_EditChunkTool(t *testing.T) {
	cs, _ := testCanvasServer(t)

	res, err := cs.editChunk(context.Background(), callReq(map[string]any{
		"index": 1,
		"text":  "replacement",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	chunks := cs.session.Chunks()
	assert.Equal(t, "replacement", chunks[1].Text)
	assert.Equal(t, "AAAA BBBB ", chunks[0].Text)
	assert.Equal(t, session.Edited, cs.session.State())
}

func Test_EditChunkTool_OutOfRange(t *testing.T) {
	cs, _ := testCanvasServer(t)

	res, err := cs.editChunk(context.Background(), callReq(map[string]any{
		"index": 99,
		"text":  "replacement",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func Test_DeleteChunkTool(t *testing.T) {
	cs, _ := testCanvasServer(t)

	res, err := cs.deleteChunk(context.Background(), callReq(map[string]any{"index": 0}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	chunks := cs.session.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "CCCC", chunks[0].Text)
}

func Test_ConfigureChunkingTool(t *testing.T) {
	cs, _ := testCanvasServer(t)
	defer cs.rechunker.Stop()

	res, err := cs.configureChunking(context.Background(), callReq(map[string]any{
		"chunk_size":    5,
		"chunk_overlap": 0,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	cfg := cs.session.Config()
	assert.Equal(t, 5, cfg.ChunkSize)
	assert.Equal(t, []string{" "}, cfg.Separators)
	assert.Equal(t, session.Chunked, cs.session.State())
}

func Test_ConfigureChunkingTool_ToggleSeparator(t *testing.T) {
	cs, _ := testCanvasServer(t)
	defer cs.rechunker.Stop()

	res, err := cs.configureChunking(context.Background(), callReq(map[string]any{
		"chunk_size":       9,
		"chunk_overlap":    0,
		"toggle_separator": "\n",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{" ", "\n"}, cs.session.Config().Separators)

	// Toggling the same separator again removes it.
	res, err = cs.configureChunking(context.Background(), callReq(map[string]any{
		"chunk_size":       9,
		"chunk_overlap":    0,
		"toggle_separator": "\n",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{" "}, cs.session.Config().Separators)
}

func Test_ConfigureChunkingTool_MoveSeparator(t *testing.T) {
	cs, _ := testCanvasServer(t)
	defer cs.rechunker.Stop()

	res, err := cs.configureChunking(context.Background(), callReq(map[string]any{
		"chunk_size":         9,
		"chunk_overlap":      0,
		"separators":         []any{"\n\n", "\n", " "},
		"move_separator":     " ",
		"separator_position": 0,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{" ", "\n\n", "\n"}, cs.session.Config().Separators)
}

func Test_ConfigureChunkingTool_RejectsInvalid(t *testing.T) {
	cs, _ := testCanvasServer(t)

	res, err := cs.configureChunking(context.Background(), callReq(map[string]any{
		"chunk_size":    5,
		"chunk_overlap": 7,
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	assert.Equal(t, 9, cs.session.Config().ChunkSize)
}

func Test_ListChunksTool(t *testing.T) {
	cs, _ := testCanvasServer(t)

	res, err := cs.listChunks(context.Background(), callReq(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}
