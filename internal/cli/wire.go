package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"semdex/config"
	"semdex/internal/adapter/embedding"
	"semdex/internal/adapter/store"
	"semdex/internal/port"
)

// newEmbedder builds the configured embedding client.
func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	opts := embedding.Options{
		Dimension:         cfg.Embedding.Dimension,
		BatchSize:         cfg.Embedding.BatchSize,
		MaxTextLen:        cfg.Embedding.MaxTextLen,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}

	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, opts)
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL, opts)
	case "compatible":
		return embedding.NewCompatibleEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL, opts)
	case "mock":
		dim := cfg.Embedding.Dimension
		if dim <= 0 {
			dim = 256
		}
		return embedding.NewMockEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// openStore opens the configured vector store backend with the embedder's
// dimension. The dimension is fixed for the lifetime of an index.
func openStore(cfg *config.Config, rootDir string, dimension int) (port.VectorStore, error) {
	switch cfg.Store.Backend {
	case "bolt":
		return store.NewBoltStore(cfg.StorePath(rootDir), dimension, cfg.Store.MinScore)
	case "sqlite":
		return store.NewSQLiteStore(cfg.StorePath(rootDir), dimension, cfg.Store.MinScore)
	case "memory":
		return store.NewMemoryStore(dimension, cfg.Store.MinScore), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// docIDFromPath derives a stable document ID from a file's path relative to
// the indexed root.
func docIDFromPath(relPath string) string {
	hash := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(hash[:8])
}
