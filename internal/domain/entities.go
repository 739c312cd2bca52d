package domain

// Document is the unit of ingestion. Immutable once indexed; indexing the
// same ID again replaces every record derived from the previous version.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Chunk is a bounded span of a document's text, the unit that gets embedded
// and indexed. Start and End are rune offsets into the document text.
type Chunk struct {
	ID    string
	DocID string
	Start int
	End   int
	Text  string
}

// IndexRecord is what the vector store persists per chunk. Seq is an
// insertion sequence number assigned by the store on first insert and kept
// across overwrites; search uses it to break score ties deterministically.
type IndexRecord struct {
	ChunkID  string
	DocID    string
	Vector   []float32
	Text     string
	Metadata map[string]string
	Seq      uint64
}

// ScoredChunk is a single search result. Higher score is more similar.
type ScoredChunk struct {
	ChunkID  string
	DocID    string
	Score    float64
	Text     string
	Metadata map[string]string
}
