package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"semdex/internal/adapter/cache"
	"semdex/internal/adapter/embedding"
	"semdex/internal/adapter/store"
	"semdex/internal/domain"
)

func newTestEngine(t *testing.T) (*QueryEngine, *Indexer) {
	t.Helper()
	st := store.NewMemoryStore(testDim, 0)
	embedder := embedding.NewMockEmbedder(testDim)
	ix := NewIndexer(st, embedder, nil, 2, 2)
	return NewQueryEngine(st, embedder, nil, false, 0), ix
}

func TestQueryRanksIndexedDocumentFirst(t *testing.T) {
	engine, ix := newTestEngine(t)
	ctx := context.Background()

	docs := []domain.Document{
		{ID: "doc1", Text: "The quick brown fox jumps."},
		{ID: "doc2", Text: "Lorem ipsum dolor sit amet."},
		{ID: "doc3", Text: "Completely different subject matter."},
	}
	for _, doc := range docs {
		if _, err := ix.IndexDocument(ctx, doc, 10, 2); err != nil {
			t.Fatal(err)
		}
	}

	results, err := engine.Query(ctx, "quick fox", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].DocID != "doc1" {
		t.Errorf("expected doc1 on top, got %s", results[0].DocID)
	}
}

func TestQueryInvalidInput(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Query(ctx, "", 5, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty query: expected ErrInvalidInput, got %v", err)
	}
	if _, err := engine.Query(ctx, "   \t\n", 5, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("whitespace query: expected ErrInvalidInput, got %v", err)
	}
	if _, err := engine.Query(ctx, "fine", 0, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("k=0: expected ErrInvalidInput, got %v", err)
	}
}

func TestQueryStableOrdering(t *testing.T) {
	engine, ix := newTestEngine(t)
	ctx := context.Background()

	for _, doc := range []domain.Document{
		{ID: "doc1", Text: "The quick brown fox jumps."},
		{ID: "doc2", Text: "A quick brown dog runs."},
		{ID: "doc3", Text: "Foxes and dogs are animals."},
	} {
		if _, err := ix.IndexDocument(ctx, doc, 15, 3); err != nil {
			t.Fatal(err)
		}
	}

	first, err := engine.Query(ctx, "quick brown animals", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Query(ctx, "quick  brown\tanimals", 5, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Same query (after normalization) against an unchanged index gives the
	// same total order.
	if !reflect.DeepEqual(first, second) {
		t.Errorf("ordering not stable:\n%+v\n%+v", first, second)
	}
}

func TestQueryMetadataFilter(t *testing.T) {
	engine, ix := newTestEngine(t)
	ctx := context.Background()

	for _, doc := range []domain.Document{
		{ID: "doc1", Text: "The quick brown fox jumps.", Metadata: map[string]string{"lang": "en"}},
		{ID: "doc2", Text: "The quick brown fox leaps.", Metadata: map[string]string{"lang": "de"}},
	} {
		if _, err := ix.IndexDocument(ctx, doc, 30, 0); err != nil {
			t.Fatal(err)
		}
	}

	results, err := engine.Query(ctx, "quick fox", 10, map[string]string{"lang": "de"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected filtered results")
	}
	for _, r := range results {
		if r.Metadata["lang"] != "de" {
			t.Errorf("filter leaked record %s with lang %q", r.ChunkID, r.Metadata["lang"])
		}
	}
}

func TestQueryPropagatesCollaboratorErrors(t *testing.T) {
	st := store.NewMemoryStore(testDim, 0)
	embedder := embedding.NewMockEmbedder(testDim + 1) // wrong dimension
	engine := NewQueryEngine(st, embedder, nil, false, 0)

	if _, err := engine.Query(context.Background(), "anything", 5, nil); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestQueryCacheInvalidatedByIndexing(t *testing.T) {
	st := store.NewMemoryStore(testDim, 0)
	embedder := embedding.NewMockEmbedder(testDim)
	qc := cache.NewQueryCache(10, time.Minute)
	ix := NewIndexer(st, embedder, qc, 2, 2)
	engine := NewQueryEngine(st, embedder, qc, false, 0)
	ctx := context.Background()

	if _, err := ix.IndexDocument(ctx, domain.Document{ID: "doc1", Text: "Lorem ipsum dolor sit amet."}, 30, 0); err != nil {
		t.Fatal(err)
	}

	before, err := engine.Query(ctx, "quick fox", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 0 && before[0].DocID == "doc2" {
		t.Fatal("doc2 not yet indexed")
	}

	if _, err := ix.IndexDocument(ctx, domain.Document{ID: "doc2", Text: "The quick brown fox jumps."}, 30, 0); err != nil {
		t.Fatal(err)
	}

	after, err := engine.Query(ctx, "quick fox", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) == 0 || after[0].DocID != "doc2" {
		t.Errorf("cache served stale results after indexing: %+v", after)
	}
}

func TestRerankByOverlapPromotesKeywordMatches(t *testing.T) {
	engine := NewQueryEngine(nil, nil, nil, true, 0.5)

	results := []domain.ScoredChunk{
		{ChunkID: "c1", Score: 0.80, Text: "unrelated content entirely"},
		{ChunkID: "c2", Score: 0.78, Text: "connection pooling for databases"},
	}

	reranked := engine.rerankByOverlap("connection pooling", results)
	if reranked[0].ChunkID != "c2" {
		t.Errorf("keyword match not promoted: got %s first", reranked[0].ChunkID)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  hello   world  ": "hello world",
		"one\ttwo\nthree":   "one two three",
		"   ":               "",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
