package docstore

// Chunk is one upsert record: text plus provenance.
type Chunk struct {
	Index      int
	Text       string
	SourceFile string
}

// Batch is a consistent chunk snapshot destined for the store, tagged with
// the content hash it was computed against.
type Batch struct {
	ID     string
	Hash   string
	Chunks []Chunk
}

// BatchInfo identifies a previously uploaded batch and its hash tag.
type BatchInfo struct {
	ID   string
	Hash string
}

type SearchResult struct {
	Text  string
	File  string
	Index int
	Score float32
}
