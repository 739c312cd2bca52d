package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"semdex/internal/domain"
)

// SQLiteStore implements VectorStore on a SQLite database, one row per
// chunk. Similarity is computed in Go over scanned rows; the table shape
// mirrors a vector-database collection: chunk id, owning document id,
// vector, text and metadata.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	minScore  float64
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	chunk_id TEXT PRIMARY KEY,
	doc_id   TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	vector   BLOB NOT NULL,
	text     TEXT NOT NULL,
	metadata TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_doc ON records(doc_id);
`

// NewSQLiteStore opens (or creates) the database file at path with WAL mode
// for concurrent readers.
func NewSQLiteStore(path string, dimension int, minScore float64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite db: %v", domain.ErrStoreUnavailable, err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", domain.ErrStoreUnavailable, err)
	}

	return &SQLiteStore{db: db, dimension: dimension, minScore: minScore}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	for _, rec := range records {
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: upsert %q: expected %d, got %d", domain.ErrDimensionMismatch, rec.ChunkID, s.dimension, len(rec.Vector))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var nextSeq uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM records`).Scan(&nextSeq); err != nil {
		return fmt.Errorf("%w: reading sequence: %v", domain.ErrStoreUnavailable, err)
	}

	// seq is never updated on conflict, so an overwritten chunk keeps its
	// original insertion order.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (chunk_id, doc_id, seq, vector, text, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			doc_id   = excluded.doc_id,
			vector   = excluded.vector,
			text     = excluded.text,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing statement: %v", domain.ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		seq := rec.Seq
		if seq == 0 {
			nextSeq++
			seq = nextSeq
		} else if seq > nextSeq {
			nextSeq = seq
		}

		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata for %q: %w", rec.ChunkID, err)
		}

		if _, err := stmt.ExecContext(ctx, rec.ChunkID, rec.DocID, int64(seq),
			float32SliceToBytes(rec.Vector), rec.Text, string(metadataJSON)); err != nil {
			return fmt.Errorf("%w: upsert %q: %v", domain.ErrStoreUnavailable, rec.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing upsert: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, chunkIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM records WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("%w: preparing statement: %v", domain.ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("%w: delete %q: %v", domain.ErrStoreUnavailable, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing delete: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]domain.ScoredChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidInput, k)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, store dimension %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}

	records, err := s.scanRecords(ctx, `SELECT chunk_id, doc_id, seq, vector, text, metadata FROM records`)
	if err != nil {
		return nil, err
	}
	return rankRecords(records, vector, k, filter, s.minScore), nil
}

func (s *SQLiteStore) IDsByDoc(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM records WHERE doc_id = ? ORDER BY seq`, docID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chunks for doc %q: %v", domain.ErrStoreUnavailable, docID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk id: %v", domain.ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating chunk ids: %v", domain.ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *SQLiteStore) FetchByDoc(ctx context.Context, docID string) ([]domain.IndexRecord, error) {
	return s.scanRecords(ctx,
		`SELECT chunk_id, doc_id, seq, vector, text, metadata FROM records WHERE doc_id = ? ORDER BY seq`, docID)
}

func (s *SQLiteStore) scanRecords(ctx context.Context, query string, args ...any) ([]domain.IndexRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying records: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []domain.IndexRecord
	for rows.Next() {
		var rec domain.IndexRecord
		var seq int64
		var vectorBlob []byte
		var metadataJSON string
		if err := rows.Scan(&rec.ChunkID, &rec.DocID, &seq, &vectorBlob, &rec.Text, &metadataJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning record: %v", domain.ErrStoreUnavailable, err)
		}
		rec.Seq = uint64(seq)
		rec.Vector = bytesToFloat32Slice(vectorBlob)
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata for %q: %w", rec.ChunkID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating records: %v", domain.ErrStoreUnavailable, err)
	}
	return records, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting records: %v", domain.ErrStoreUnavailable, err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
