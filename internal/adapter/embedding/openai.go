package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"semdex/internal/domain"
)

// OpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint.
// Vectors come back L2-normalized, so cosine similarity and inner product
// agree downstream. For a fixed model version the output is deterministic
// best-effort; some serving stacks are not bit-identical across calls, only
// semantically stable.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimension  int
	batchSize  int
	maxTextLen int
	limiter    *rate.Limiter
}

// Options tune batching and throttling. Zero values fall back to defaults.
type Options struct {
	// Dimension overrides the dimension inferred from the model name.
	Dimension int
	// BatchSize caps how many texts go into one API request.
	BatchSize int
	// MaxTextLen caps the rune length of a single input text.
	MaxTextLen int
	// RequestsPerSecond throttles API calls; 0 disables throttling.
	RequestsPerSecond float64
}

const (
	defaultBatchSize  = 100
	defaultMaxTextLen = 32768
)

// NewOpenAIEmbedder reads the API key from the named environment variable
// and targets the OpenAI API.
func NewOpenAIEmbedder(apiKeyEnv, model string, opts Options) (*OpenAIEmbedder, error) {
	return NewCompatibleEmbedder(apiKeyEnv, model, "", opts)
}

// NewOllamaEmbedder targets a local Ollama server, which speaks the
// OpenAI-compatible protocol and ignores the API key.
func NewOllamaEmbedder(model, baseURL string, opts Options) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	if opts.Dimension == 0 {
		switch model {
		case "nomic-embed-text":
			opts.Dimension = 768
		case "mxbai-embed-large":
			opts.Dimension = 1024
		case "all-minilm":
			opts.Dimension = 384
		default:
			opts.Dimension = 768
		}
	}
	return newEmbedder("ollama", model, baseURL, opts)
}

// NewCompatibleEmbedder targets any OpenAI-compatible endpoint. An empty
// baseURL means the OpenAI API itself.
func NewCompatibleEmbedder(apiKeyEnv, model, baseURL string, opts Options) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if opts.Dimension == 0 {
		switch model {
		case "text-embedding-3-small", "text-embedding-ada-002":
			opts.Dimension = 1536
		case "text-embedding-3-large":
			opts.Dimension = 3072
		default:
			opts.Dimension = 1536
		}
	}
	return newEmbedder(apiKey, model, baseURL, opts)
}

func newEmbedder(apiKey, model, baseURL string, opts Options) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxTextLen <= 0 {
		opts.MaxTextLen = defaultMaxTextLen
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimension:  opts.Dimension,
		batchSize:  opts.BatchSize,
		maxTextLen: opts.MaxTextLen,
		limiter:    limiter,
	}, nil
}

// Embed validates every input before the first network call, then embeds in
// batches of at most the configured size.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", domain.ErrInvalidInput, i)
		}
		if len([]rune(text)) > e.maxTextLen {
			return nil, fmt.Errorf("%w: text %d exceeds max length %d", domain.ErrInvalidInput, i, e.maxTextLen)
		}
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrModelUnavailable, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			continue
		}
		v := make([]float32, len(data.Embedding))
		for i := range data.Embedding {
			v[i] = float32(data.Embedding[i])
		}
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: model returned dimension %d, configured %d", domain.ErrDimensionMismatch, len(v), e.dimension)
		}
		l2normalize(v)
		vectors[data.Index] = v
	}

	// Duplicate or out-of-range response indices leave slots unfilled.
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", domain.ErrModelUnavailable, i)
		}
	}
	return vectors, nil
}

// Dimension returns the embedding vector dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// l2normalize scales a vector to unit length in place.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
