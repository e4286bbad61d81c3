package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chunkcanvas/chunkcanvas-mcp/chunker"
	"github.com/chunkcanvas/chunkcanvas-mcp/docstore"
	"github.com/chunkcanvas/chunkcanvas-mcp/session"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type chunkStore interface {
	Upload(ctx context.Context, b docstore.Batch) error
	Retrieve(ctx context.Context, query string) ([]docstore.SearchResult, error)
	Forget(ctx context.Context, batchID string) error
}

type canvasServer struct {
	log       *slog.Logger
	session   *session.Session
	rechunker *session.Rechunker
	store     chunkStore
	tokens    *chunker.TokenCounter

	mu       sync.Mutex
	uploaded docstore.BatchInfo
}

// NewCanvasServer exposes the chunking session over MCP: inspecting and
// editing chunks, changing the chunking configuration, uploading hash-tagged
// embeddings and searching them. Search and upload refuse to act on a stale
// upload instead of serving mismatched vectors.
func NewCanvasServer(log *slog.Logger, sess *session.Session, rechunker *session.Rechunker, store chunkStore, tokens *chunker.TokenCounter) *server.MCPServer {
	cs := &canvasServer{
		log:       log,
		session:   sess,
		rechunker: rechunker,
		store:     store,
		tokens:    tokens,
	}

	srv := server.NewMCPServer("ChunkCanvas", "0.1.0", server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("list_chunks",
		mcp.WithDescription("List the current chunks with provenance, token counts and the content hash of the set"),
	), cs.listChunks)

	srv.AddTool(mcp.NewTool("edit_chunk",
		mcp.WithDescription("Replace the text of a single chunk. Neighboring chunks and their overlap prefixes are not touched"),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("0-based chunk index")),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Replacement chunk text")),
	), cs.editChunk)

	srv.AddTool(mcp.NewTool("delete_chunk",
		mcp.WithDescription("Delete a single chunk; the remaining chunks are re-indexed"),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("0-based chunk index")),
	), cs.deleteChunk)

	srv.AddTool(mcp.NewTool("configure_chunking",
		mcp.WithDescription("Change chunk size, overlap or separators and re-chunk all documents. Manual edits are discarded"),
		mcp.WithNumber("chunk_size",
			mcp.Required(),
			mcp.Description("Maximum characters per chunk")),
		mcp.WithNumber("chunk_overlap",
			mcp.Required(),
			mcp.Description("Characters of the previous chunk carried into the next one, must be smaller than chunk_size")),
		mcp.WithArray("separators",
			mcp.Description("Separator hierarchy, highest priority first; omitted keeps the current one")),
		mcp.WithString("toggle_separator",
			mcp.Description("Separator to toggle: appended at the lowest priority if absent, removed if present")),
		mcp.WithString("move_separator",
			mcp.Description("Separator to move to separator_position; unknown separators are ignored")),
		mcp.WithNumber("separator_position",
			mcp.Description("0-based priority position for move_separator, clamped to the hierarchy")),
	), cs.configureChunking)

	srv.AddTool(mcp.NewTool("upload_embeddings",
		mcp.WithDescription("Embed the current chunks and upsert them into the vector store, tagged with the current content hash"),
	), cs.uploadEmbeddings)

	srv.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search the uploaded chunks. Refused when chunks changed since the last upload"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query")),
	), cs.search)

	return srv
}

func (cs *canvasServer) listChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chunks, hash := cs.session.Snapshot()

	head, err := json.Marshal(struct {
		State  string `json:"state"`
		Hash   string `json:"content_hash"`
		Chunks int    `json:"chunks"`
	}{
		State:  cs.session.State().String(),
		Hash:   string(hash),
		Chunks: len(chunks),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	response := fmt.Sprintf("%s\n", string(head))
	for _, c := range chunks {
		raw, err := json.Marshal(struct {
			Index  int    `json:"index"`
			File   string `json:"file"`
			Tokens int    `json:"tokens"`
			Text   string `json:"text"`
		}{
			Index:  c.Index,
			File:   c.SourceFile,
			Tokens: cs.tokens.Count(c.Text),
			Text:   c.Text,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		response += fmt.Sprintf("%s\n", string(raw))
	}

	return mcp.NewToolResultText(response), nil
}

func (cs *canvasServer) editChunk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := request.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := cs.session.EditChunk(index, text); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return cs.summary()
}

func (cs *canvasServer) deleteChunk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := request.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := cs.session.DeleteChunk(index); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return cs.summary()
}

func (cs *canvasServer) configureChunking(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	size, err := request.RequireInt("chunk_size")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	overlap, err := request.RequireInt("chunk_overlap")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg := cs.session.Config()
	cfg.ChunkSize = size
	cfg.ChunkOverlap = overlap
	cfg.Separators = request.GetStringSlice("separators", cfg.Separators)

	if sep := request.GetString("toggle_separator", ""); sep != "" {
		cfg = cfg.WithSeparator(sep)
	}

	if sep := request.GetString("move_separator", ""); sep != "" {
		cfg = cfg.WithSeparatorOrder(sep, request.GetInt("separator_position", 0))
	}

	if err := cs.session.SetConfig(cfg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := <-cs.rechunker.Trigger(ctx); err != nil {
		if errors.Is(err, session.ErrSuperseded) {
			return mcp.NewToolResultText("superseded by a newer chunking request"), nil
		}

		return mcp.NewToolResultError(err.Error()), nil
	}

	return cs.summary()
}

func (cs *canvasServer) uploadEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chunks, hash := cs.session.Snapshot()
	if len(chunks) == 0 {
		return mcp.NewToolResultError("nothing to upload: the session has no chunks"), nil
	}

	cs.mu.Lock()
	prev := cs.uploaded
	cs.mu.Unlock()

	if prev.Hash == string(hash) {
		return mcp.NewToolResultText("embeddings are already up to date"), nil
	}

	batch := docstore.Batch{
		ID:     uuid.NewString(),
		Hash:   string(hash),
		Chunks: make([]docstore.Chunk, 0, len(chunks)),
	}
	for _, c := range chunks {
		batch.Chunks = append(batch.Chunks, docstore.Chunk{
			Index:      c.Index,
			Text:       c.Text,
			SourceFile: c.SourceFile,
		})
	}

	if chunker.IsStale(cs.session.Hash(), hash) {
		return mcp.NewToolResultError("chunks changed while preparing the upload, try again"), nil
	}

	if prev.ID != "" {
		if err := cs.store.Forget(ctx, prev.ID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	if err := cs.store.Upload(ctx, batch); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cs.mu.Lock()
	cs.uploaded = docstore.BatchInfo{ID: batch.ID, Hash: batch.Hash}
	cs.mu.Unlock()

	cs.log.Info("uploaded embeddings",
		slog.String("batch", batch.ID),
		slog.Int("chunks", len(batch.Chunks)),
		slog.String("hash", batch.Hash))

	raw, err := json.Marshal(struct {
		BatchID string `json:"batch_id"`
		Chunks  int    `json:"chunks"`
		Hash    string `json:"content_hash"`
	}{
		BatchID: batch.ID,
		Chunks:  len(batch.Chunks),
		Hash:    batch.Hash,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(string(raw)), nil
}

func (cs *canvasServer) search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cs.mu.Lock()
	uploaded := cs.uploaded
	cs.mu.Unlock()

	if uploaded.ID == "" {
		return mcp.NewToolResultError("no embeddings uploaded yet, run upload_embeddings first"), nil
	}

	if chunker.IsStale(cs.session.Hash(), chunker.ContentHash(uploaded.Hash)) {
		return mcp.NewToolResultError("chunks changed since the last upload, run upload_embeddings to regenerate embeddings before searching"), nil
	}

	res, err := cs.store.Retrieve(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response string
	for _, r := range res {
		raw, err := json.Marshal(struct {
			Score float32 `json:"score"`
			File  string  `json:"file"`
			Index int     `json:"index"`
			Text  string  `json:"text"`
		}{
			Score: r.Score,
			File:  r.File,
			Index: r.Index,
			Text:  r.Text,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		response += fmt.Sprintf("%s\n", string(raw))
	}

	return mcp.NewToolResultText(response), nil
}

func (cs *canvasServer) summary() (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(struct {
		State  string `json:"state"`
		Hash   string `json:"content_hash"`
		Chunks int    `json:"chunks"`
	}{
		State:  cs.session.State().String(),
		Hash:   string(cs.session.Hash()),
		Chunks: len(cs.session.Chunks()),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(string(raw)), nil
}
