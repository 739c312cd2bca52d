package port

import (
	"context"

	"semdex/internal/domain"
)

// VectorStore persists index records and performs nearest-neighbor search.
// All write operations are atomic per call: a concurrent Search observes
// either the pre- or post-mutation state, never a torn record.
type VectorStore interface {
	// Upsert adds or replaces records by chunk ID. A record that overwrites
	// an existing chunk ID keeps that chunk's original insertion sequence.
	Upsert(ctx context.Context, records []domain.IndexRecord) error

	// Delete removes records by chunk ID. Unknown IDs are ignored.
	Delete(ctx context.Context, chunkIDs []string) error

	// Search returns up to k records most similar to the query vector,
	// descending by cosine similarity, ties broken by insertion order
	// (earlier wins). A non-nil filter keeps only records whose metadata
	// contains every key/value pair.
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]domain.ScoredChunk, error)

	// IDsByDoc returns the chunk IDs derived from a document.
	IDsByDoc(ctx context.Context, docID string) ([]string, error)

	// FetchByDoc returns the full records derived from a document, in
	// insertion order.
	FetchByDoc(ctx context.Context, docID string) ([]domain.IndexRecord, error)

	// Count returns the number of records in the store.
	Count(ctx context.Context) (int, error)

	Close() error
}
