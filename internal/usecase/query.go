package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"semdex/internal/adapter/cache"
	"semdex/internal/domain"
	"semdex/internal/port"
)

// QueryEngine answers top-K similarity queries. Stateless per request;
// collaborator failures propagate unchanged.
type QueryEngine struct {
	store        port.VectorStore
	embedder     port.Embedder
	queryCache   *cache.QueryCache
	rerank       bool
	rerankWeight float64
}

// NewQueryEngine wires a QueryEngine. queryCache may be nil. When rerank is
// enabled, rerankWeight in (0, 1] blends keyword overlap with the vector
// score.
func NewQueryEngine(store port.VectorStore, embedder port.Embedder, queryCache *cache.QueryCache, rerank bool, rerankWeight float64) *QueryEngine {
	if rerankWeight <= 0 || rerankWeight > 1 {
		rerankWeight = 0.3
	}
	return &QueryEngine{
		store:        store,
		embedder:     embedder,
		queryCache:   queryCache,
		rerank:       rerank,
		rerankWeight: rerankWeight,
	}
}

// Query normalizes the text, embeds it and returns up to k chunks in a
// stable total order: descending by score, earlier-indexed chunk first on
// ties. Repeating a query against an unchanged index yields the same order.
func (q *QueryEngine) Query(ctx context.Context, text string, k int, filter map[string]string) ([]domain.ScoredChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidInput, k)
	}
	normalized := normalize(text)
	if normalized == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrInvalidInput)
	}

	if q.queryCache != nil {
		if results, ok := q.queryCache.Get(normalized, k, filter); ok {
			return results, nil
		}
	}

	vectors, err := q.embedder.Embed(ctx, []string{normalized})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedding returned %d vectors for one query", domain.ErrModelUnavailable, len(vectors))
	}

	// Over-fetch when reranking so keyword overlap can promote candidates
	// from beyond the first k.
	fetchK := k
	if q.rerank {
		fetchK = k * 2
	}

	results, err := q.store.Search(ctx, vectors[0], fetchK, filter)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	if q.rerank {
		results = q.rerankByOverlap(normalized, results)
	}
	if len(results) > k {
		results = results[:k]
	}

	if q.queryCache != nil {
		q.queryCache.Put(normalized, k, filter, results)
	}
	return results, nil
}

// rerankByOverlap blends the vector score with the fraction of query terms
// present in each chunk. The sort is stable, so chunks the blend cannot
// separate keep their similarity order.
func (q *QueryEngine) rerankByOverlap(query string, results []domain.ScoredChunk) []domain.ScoredChunk {
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return results
	}

	reranked := make([]domain.ScoredChunk, len(results))
	for i, r := range results {
		chunkTerms := terms(r.Text)
		matched := 0
		for term := range queryTerms {
			if chunkTerms[term] {
				matched++
			}
		}
		overlap := float64(matched) / float64(len(queryTerms))
		r.Score = (1-q.rerankWeight)*r.Score + q.rerankWeight*overlap
		reranked[i] = r
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked
}

// normalize trims and collapses whitespace runs to single spaces.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func terms(text string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		set[f] = true
	}
	return set
}
