package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"semdex/internal/adapter/cache"
	"semdex/internal/adapter/chunker"
	"semdex/internal/domain"
	"semdex/internal/port"
)

// Indexer ingests documents: chunk, embed, upsert. Safe for concurrent use;
// calls for the same document ID are serialized so a re-index never
// interleaves with another writer of the same document.
type Indexer struct {
	store       port.VectorStore
	embedder    port.Embedder
	queryCache  *cache.QueryCache
	embedBatch  int
	concurrency int

	mu       sync.Mutex
	docLocks map[string]*docLock
}

// docLock serializes writers of one document ID. refs counts holders and
// waiters so the entry can be dropped once nobody references it.
type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewIndexer wires an Indexer. queryCache may be nil. embedBatch caps texts
// per embedding call; concurrency caps in-flight embedding calls.
func NewIndexer(store port.VectorStore, embedder port.Embedder, queryCache *cache.QueryCache, embedBatch, concurrency int) *Indexer {
	if embedBatch <= 0 {
		embedBatch = 64
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Indexer{
		store:       store,
		embedder:    embedder,
		queryCache:  queryCache,
		embedBatch:  embedBatch,
		concurrency: concurrency,
		docLocks:    make(map[string]*docLock),
	}
}

// IndexDocument chunks the document, embeds every chunk and upserts the
// records with the document's metadata attached. Re-indexing an already
// indexed ID replaces the prior chunk set completely: the new chunks are
// embedded before anything is deleted, and if the upsert fails the prior
// chunk set is restored. Returns the chunk IDs now in the store for this
// document.
func (ix *Indexer) IndexDocument(ctx context.Context, doc domain.Document, chunkSize, chunkOverlap int) ([]string, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: document ID is empty", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: document %q has no text", domain.ErrInvalidInput, doc.ID)
	}

	ck, err := chunker.New(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks := ck.Chunk(doc)

	vectors, err := ix.embedChunks(ctx, doc.ID, chunks)
	if err != nil {
		return nil, err
	}

	records := make([]domain.IndexRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = domain.IndexRecord{
			ChunkID:  chunk.ID,
			DocID:    doc.ID,
			Vector:   vectors[i],
			Text:     chunk.Text,
			Metadata: cloneMetadata(doc.Metadata),
		}
	}

	unlock := ix.lockDoc(doc.ID)
	defer unlock()

	prior, err := ix.store.FetchByDoc(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching prior chunks of doc %q: %w", doc.ID, err)
	}

	if err := ix.swapDocRecords(ctx, doc.ID, prior, records); err != nil {
		return nil, err
	}

	if ix.queryCache != nil {
		ix.queryCache.Invalidate()
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ChunkID
	}
	return ids, nil
}

// swapDocRecords replaces a document's chunk set. On upsert failure the
// prior set is put back so the store never holds a mix of old and new
// chunks for one document.
func (ix *Indexer) swapDocRecords(ctx context.Context, docID string, prior, next []domain.IndexRecord) error {
	priorIDs := recordIDs(prior)
	if err := ix.store.Delete(ctx, priorIDs); err != nil {
		return fmt.Errorf("deleting prior chunks of doc %q: %w", docID, err)
	}

	upsertErr := ix.store.Upsert(ctx, next)
	if upsertErr == nil {
		return nil
	}

	// Roll back: remove whatever landed, then restore the snapshot with its
	// original sequence numbers.
	var restoreErr error
	if err := ix.store.Delete(context.WithoutCancel(ctx), recordIDs(next)); err != nil {
		restoreErr = err
	} else if err := ix.store.Upsert(context.WithoutCancel(ctx), prior); err != nil {
		restoreErr = err
	}

	if restoreErr != nil {
		return fmt.Errorf("indexing doc %q failed and the prior chunk set could not be restored, explicit re-index required: %w",
			docID, errors.Join(upsertErr, restoreErr))
	}
	return fmt.Errorf("indexing doc %q (prior chunk set restored): %w", docID, upsertErr)
}

// DeleteDocument cascade-deletes every record derived from the document.
func (ix *Indexer) DeleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return fmt.Errorf("%w: document ID is empty", domain.ErrInvalidInput)
	}

	unlock := ix.lockDoc(docID)
	defer unlock()

	ids, err := ix.store.IDsByDoc(ctx, docID)
	if err != nil {
		return fmt.Errorf("listing chunks of doc %q: %w", docID, err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := ix.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("deleting chunks of doc %q: %w", docID, err)
	}

	if ix.queryCache != nil {
		ix.queryCache.Invalidate()
	}
	return nil
}

// embedChunks embeds chunk texts in batches, several batches in flight.
func (ix *Indexer) embedChunks(ctx context.Context, docID string, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	for start := 0; start < len(texts); start += ix.embedBatch {
		end := start + ix.embedBatch
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			batch, err := ix.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d of doc %q: %w", start, end-1, docID, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (ix *Indexer) lockDoc(docID string) func() {
	ix.mu.Lock()
	lock, ok := ix.docLocks[docID]
	if !ok {
		lock = &docLock{}
		ix.docLocks[docID] = lock
	}
	lock.refs++
	ix.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		ix.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(ix.docLocks, docID)
		}
		ix.mu.Unlock()
	}
}

func recordIDs(records []domain.IndexRecord) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ChunkID
	}
	return ids
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	clone := make(map[string]string, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	return clone
}
