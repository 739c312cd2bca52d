package store

import (
	"context"
	"fmt"
	"sync"

	"semdex/internal/domain"
)

// MemoryStore is an in-process VectorStore for tests and offline demos.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	minScore  float64
	records   map[string]domain.IndexRecord
	nextSeq   uint64
}

func NewMemoryStore(dimension int, minScore float64) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		minScore:  minScore,
		records:   make(map[string]domain.IndexRecord),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything so a failed call
	// leaves no partial state.
	for _, rec := range records {
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: upsert %q: expected %d, got %d", domain.ErrDimensionMismatch, rec.ChunkID, s.dimension, len(rec.Vector))
		}
	}

	for _, rec := range records {
		if existing, ok := s.records[rec.ChunkID]; ok {
			rec.Seq = existing.Seq
		} else if rec.Seq == 0 {
			s.nextSeq++
			rec.Seq = s.nextSeq
		} else if rec.Seq > s.nextSeq {
			s.nextSeq = rec.Seq
		}
		s.records[rec.ChunkID] = rec
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, chunkIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range chunkIDs {
		delete(s.records, id)
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidInput, k)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, store dimension %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}

	s.mu.RLock()
	records := make([]domain.IndexRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	return rankRecords(records, vector, k, filter, s.minScore), nil
}

func (s *MemoryStore) IDsByDoc(ctx context.Context, docID string) ([]string, error) {
	records, err := s.FetchByDoc(ctx, docID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ChunkID
	}
	return ids, nil
}

func (s *MemoryStore) FetchByDoc(ctx context.Context, docID string) ([]domain.IndexRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []domain.IndexRecord
	for _, rec := range s.records {
		if rec.DocID == docID {
			records = append(records, rec)
		}
	}
	sortBySeq(records)
	return records, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
