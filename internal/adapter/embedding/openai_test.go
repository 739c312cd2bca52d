package embedding

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"semdex/internal/domain"
)

func TestOpenAIEmbedderRejectsBadInputBeforeNetwork(t *testing.T) {
	t.Setenv("TEST_API_KEY", "test-key")

	e, err := NewCompatibleEmbedder("TEST_API_KEY", "text-embedding-3-small", "http://127.0.0.1:1", Options{MaxTextLen: 10})
	if err != nil {
		t.Fatal(err)
	}

	// The base URL is unreachable, so these only pass if validation runs
	// before any request.
	if _, err := e.Embed(context.Background(), []string{""}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty text: expected ErrInvalidInput, got %v", err)
	}
	if _, err := e.Embed(context.Background(), []string{strings.Repeat("x", 11)}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("oversized text: expected ErrInvalidInput, got %v", err)
	}
}

func TestOpenAIEmbedderUnreachableEndpoint(t *testing.T) {
	t.Setenv("TEST_API_KEY", "test-key")

	e, err := NewCompatibleEmbedder("TEST_API_KEY", "text-embedding-3-small", "http://127.0.0.1:1", Options{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Embed(context.Background(), []string{"hello"}); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestOpenAIEmbedderMisindexedResponse(t *testing.T) {
	t.Setenv("TEST_API_KEY", "test-key")

	// Two inputs, but both response entries claim index 0, leaving the
	// second slot unfilled.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"test-model","usage":{"prompt_tokens":0,"total_tokens":0},` +
			`"data":[{"object":"embedding","index":0,"embedding":[1,0]},{"object":"embedding","index":0,"embedding":[0,1]}]}`))
	}))
	defer srv.Close()

	e, err := NewCompatibleEmbedder("TEST_API_KEY", "test-model", srv.URL, Options{Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Embed(context.Background(), []string{"one", "two"}); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable for unfilled embedding slot, got %v", err)
	}
}

func TestOpenAIEmbedderMissingAPIKey(t *testing.T) {
	if _, err := NewCompatibleEmbedder("SEMDEX_TEST_UNSET_KEY", "text-embedding-3-small", "", Options{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestOpenAIEmbedderEmptyBatch(t *testing.T) {
	t.Setenv("TEST_API_KEY", "test-key")

	e, err := NewCompatibleEmbedder("TEST_API_KEY", "text-embedding-3-small", "", Options{})
	if err != nil {
		t.Fatal(err)
	}

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %d vectors", len(vectors))
	}
}

func TestModelDimensionDefaults(t *testing.T) {
	t.Setenv("TEST_API_KEY", "test-key")

	cases := []struct {
		model string
		dim   int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
	}

	for _, tc := range cases {
		e, err := NewCompatibleEmbedder("TEST_API_KEY", tc.model, "", Options{})
		if err != nil {
			t.Fatal(err)
		}
		if e.Dimension() != tc.dim {
			t.Errorf("%s: expected dimension %d, got %d", tc.model, tc.dim, e.Dimension())
		}
	}
}

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	l2normalize(v)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("expected unit vector, squared norm = %f", norm)
	}

	// Zero vector stays zero instead of dividing by zero.
	zero := []float32{0, 0}
	l2normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
