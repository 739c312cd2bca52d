package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"semdex/internal/domain"
)

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := NewSQLiteStore(path, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	return s, path
}

func TestSQLiteStoreRoundtrip(t *testing.T) {
	s, _ := newTestSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	err := s.Upsert(ctx, []domain.IndexRecord{
		rec("c1", "d1", []float32{1, 0}, map[string]string{"path": "a.md"}),
		rec("c2", "d1", []float32{0, 1}, map[string]string{"path": "a.md"}),
		rec("c3", "d2", []float32{0.5, 0.5}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ChunkID != "c1" {
		t.Errorf("expected c1 first, got %s", results[0].ChunkID)
	}
	if results[0].Metadata["path"] != "a.md" {
		t.Errorf("metadata lost in roundtrip: %+v", results[0].Metadata)
	}
	if results[0].Text != "text of c1" {
		t.Errorf("text lost in roundtrip: %q", results[0].Text)
	}
}

func TestSQLiteStorePersistence(t *testing.T) {
	s, path := newTestSQLiteStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []domain.IndexRecord{
		rec("c1", "d1", []float32{1, 0}, nil),
		rec("c2", "d1", []float32{1, 0}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	results, err := reopened.Search(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ChunkID != "c1" {
		t.Fatalf("unexpected results after reopen: %+v", results)
	}
}

func TestSQLiteStoreOverwriteKeepsSeq(t *testing.T) {
	s, _ := newTestSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	if err := s.Upsert(ctx, []domain.IndexRecord{rec("c1", "d1", []float32{1, 0}, nil)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, []domain.IndexRecord{rec("c2", "d1", []float32{1, 0}, nil)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, []domain.IndexRecord{rec("c1", "d1", []float32{1, 0}, nil)}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ChunkID != "c1" {
		t.Errorf("overwritten chunk lost its insertion order: got %s first", results[0].ChunkID)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("overwrite should not grow the store: count %d", count)
	}
}

func TestSQLiteStoreDocLookupAndDelete(t *testing.T) {
	s, _ := newTestSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	err := s.Upsert(ctx, []domain.IndexRecord{
		rec("c1", "d1", []float32{1, 0}, nil),
		rec("c2", "d1", []float32{0, 1}, nil),
		rec("c3", "d2", []float32{1, 0}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}

	records, err := s.FetchByDoc(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].ChunkID != "c1" || records[1].ChunkID != "c2" {
		t.Fatalf("unexpected records for d1: %+v", records)
	}

	ids, err := s.IDsByDoc(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, ids); err != nil {
		t.Fatal(err)
	}

	remaining, err := s.IDsByDoc(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("cascade delete incomplete: %v", remaining)
	}
}

func TestSQLiteStoreDimensionMismatch(t *testing.T) {
	s, _ := newTestSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	if err := s.Upsert(ctx, []domain.IndexRecord{rec("c1", "d1", []float32{1, 0, 0}, nil)}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("upsert: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := s.Search(ctx, []float32{1}, 1, nil); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("search: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := s.Search(ctx, []float32{1, 0}, 0, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad k: expected ErrInvalidInput, got %v", err)
	}
}

func TestSQLiteStoreMetadataFilter(t *testing.T) {
	s, _ := newTestSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	err := s.Upsert(ctx, []domain.IndexRecord{
		rec("c1", "d1", []float32{1, 0}, map[string]string{"lang": "en"}),
		rec("c2", "d2", []float32{1, 0}, map[string]string{"lang": "de"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 10, map[string]string{"lang": "en"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Fatalf("filter failed: %+v", results)
	}
}
