package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"semdex/internal/domain"
)

var bucketRecords = []byte("records")

// BoltStore implements VectorStore on a BoltDB file. All records are kept in
// an in-memory cache for brute-force search; the database is the durable
// copy. Every Upsert and Delete runs in a single bolt transaction, so a
// concurrent Search sees either the old or the new state of a batch.
type BoltStore struct {
	db        *bbolt.DB
	dimension int
	minScore  float64

	mu      sync.RWMutex
	records map[string]domain.IndexRecord
}

type storedRecord struct {
	DocID    string            `json:"d"`
	Vector   []float32         `json:"v"`
	Text     string            `json:"t"`
	Metadata map[string]string `json:"m,omitempty"`
	Seq      uint64            `json:"s"`
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string, dimension int, minScore float64) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening bolt db: %v", domain.ErrStoreUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating records bucket: %v", domain.ErrStoreUnavailable, err)
	}

	s := &BoltStore{
		db:        db,
		dimension: dimension,
		minScore:  minScore,
		records:   make(map[string]domain.IndexRecord),
	}
	if err := s.loadRecords(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) loadRecords() error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // skip corrupted entries
			}
			s.records[string(k)] = toRecord(string(k), stored)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: loading records: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func toRecord(chunkID string, stored storedRecord) domain.IndexRecord {
	return domain.IndexRecord{
		ChunkID:  chunkID,
		DocID:    stored.DocID,
		Vector:   stored.Vector,
		Text:     stored.Text,
		Metadata: stored.Metadata,
		Seq:      stored.Seq,
	}
}

func (s *BoltStore) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, rec := range records {
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: upsert %q: expected %d, got %d", domain.ErrDimensionMismatch, rec.ChunkID, s.dimension, len(rec.Vector))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]domain.IndexRecord, 0, len(records))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for _, rec := range records {
			if existing, ok := s.records[rec.ChunkID]; ok {
				rec.Seq = existing.Seq
			} else if rec.Seq == 0 {
				seq, err := b.NextSequence()
				if err != nil {
					return err
				}
				rec.Seq = seq
			} else if rec.Seq > b.Sequence() {
				if err := b.SetSequence(rec.Seq); err != nil {
					return err
				}
			}

			data, err := json.Marshal(storedRecord{
				DocID:    rec.DocID,
				Vector:   rec.Vector,
				Text:     rec.Text,
				Metadata: rec.Metadata,
				Seq:      rec.Seq,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(rec.ChunkID), data); err != nil {
				return err
			}
			staged = append(staged, rec)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrStoreUnavailable, err)
	}

	// Commit succeeded; only now make the batch visible to searches.
	for _, rec := range staged {
		s.records[rec.ChunkID] = rec
	}
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, chunkIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for _, id := range chunkIDs {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrStoreUnavailable, err)
	}

	for _, id := range chunkIDs {
		delete(s.records, id)
	}
	return nil
}

func (s *BoltStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]domain.ScoredChunk, error) {
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

func (s *BoltStore) IDsByDoc(ctx context.Context, docID string) ([]string, error) {
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

func (s *BoltStore) FetchByDoc(ctx context.Context, docID string) ([]domain.IndexRecord, error) {
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

func (s *BoltStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
