package docstore

import (
	"context"
	"fmt"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

const (
	SourceFile  = "source_file"
	ChunkIndex  = "chunk_index"
	ContentHash = "content_hash"
	BatchID     = "batch_id"
)

// collection is the slice of chroma.Collection the store actually uses,
// kept narrow so tests can fake it.
type collection interface {
	Add(ctx context.Context, opts ...chroma.CollectionAddOption) error
	Query(ctx context.Context, opts ...chroma.CollectionQueryOption) (chroma.QueryResult, error)
	Delete(ctx context.Context, opts ...chroma.CollectionDeleteOption) error
	Get(ctx context.Context, opts ...chroma.CollectionGetOption) (chroma.GetResult, error)
}

type ChromaStore struct {
	results     int
	requestSize int
	col         collection
}

type ChromaStoreConfig struct {
	BaseURL       string
	Collection    string
	EmbeddingFunc embeddings.EmbeddingFunction
	Results       int
	RequestSize   int
	Reset         bool
}

func NewChromaStore(ctx context.Context, cfg ChromaStoreConfig) (*ChromaStore, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	name := cfg.Collection
	if name == "" {
		name = "chunkcanvas"
	}

	if cfg.Reset {
		err = client.DeleteCollection(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to reset collection %s: %w", name, err)
		}
	}

	col, err := client.GetOrCreateCollection(ctx, name,
		chroma.WithEmbeddingFunctionCreate(cfg.EmbeddingFunc))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}

	return &ChromaStore{
		results:     cfg.Results,
		requestSize: cfg.RequestSize,
		col:         col,
	}, nil
}

// Upload upserts a chunk batch, one record per chunk, each carrying its
// provenance and the batch's content hash tag. Requests are bucketed so no
// single call exceeds the configured request size in characters.
func (ds *ChromaStore) Upload(ctx context.Context, b Batch) error {
	for _, bucket := range splitBuckets(b.Chunks, ds.requestSize) {
		texts := make([]string, 0, len(bucket))
		metas := make([]chroma.DocumentMetadata, 0, len(bucket))
		for _, c := range bucket {
			texts = append(texts, c.Text)
			metas = append(metas, chroma.NewDocumentMetadata(
				chroma.NewStringAttribute(SourceFile, c.SourceFile),
				chroma.NewIntAttribute(ChunkIndex, int64(c.Index)),
				chroma.NewStringAttribute(ContentHash, b.Hash),
				chroma.NewStringAttribute(BatchID, b.ID),
			))
		}

		err := ds.col.Add(ctx,
			chroma.WithTexts(texts...),
			chroma.WithIDGenerator(chroma.NewULIDGenerator()),
			chroma.WithMetadatas(metas...),
		)
		if err != nil {
			return fmt.Errorf("failed to upload batch %s: %w", b.ID, err)
		}
	}

	return nil
}

func (ds *ChromaStore) Retrieve(ctx context.Context, query string) ([]SearchResult, error) {
	r, err := ds.col.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(ds.results),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve texts: %w", err)
	}

	docs := r.GetDocumentsGroups()[0]
	metadatas := r.GetMetadatasGroups()[0]
	scores := r.GetDistancesGroups()[0]

	res := make([]SearchResult, 0, len(docs))
	for i := range docs {
		file, _ := metadatas[i].GetString(SourceFile)
		index, _ := metadatas[i].GetInt(ChunkIndex)
		res = append(res, SearchResult{
			Text:  docs[i].ContentString(),
			File:  file,
			Index: int(index),
			Score: float32(scores[i]),
		})
	}

	return res, nil
}

// Forget removes every record of a previously uploaded batch.
func (ds *ChromaStore) Forget(ctx context.Context, batchID string) error {
	err := ds.col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(BatchID, batchID)))
	if err != nil {
		return fmt.Errorf("failed to forget batch %s: %w", batchID, err)
	}

	return nil
}

// GetBatches lists the distinct batches currently in the store.
func (ds *ChromaStore) GetBatches(ctx context.Context) ([]BatchInfo, error) {
	res, err := ds.col.Get(ctx)
	if err != nil {
		return nil, err
	}

	var batches []BatchInfo
	seen := make(map[BatchInfo]struct{})

	for _, meta := range res.GetMetadatas() {
		id, _ := meta.GetString(BatchID)
		hash, _ := meta.GetString(ContentHash)
		info := BatchInfo{ID: id, Hash: hash}

		if _, ok := seen[info]; ok {
			continue
		}

		seen[info] = struct{}{}
		batches = append(batches, info)
	}

	return batches, nil
}

// splitBuckets greedily packs chunks into buckets whose cumulative text
// length stays within requestSize. A non-positive requestSize disables
// bucketing; a single oversized chunk still travels alone.
func splitBuckets(chunks []Chunk, requestSize int) [][]Chunk {
	if len(chunks) == 0 {
		return nil
	}

	if requestSize <= 0 {
		return [][]Chunk{chunks}
	}

	var buckets [][]Chunk
	var bucket []Chunk
	size := 0

	for _, c := range chunks {
		if len(bucket) > 0 && size+len(c.Text) > requestSize {
			buckets = append(buckets, bucket)
			bucket, size = nil, 0
		}

		bucket = append(bucket, c)
		size += len(c.Text)
	}

	return append(buckets, bucket)
}
