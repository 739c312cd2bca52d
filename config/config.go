package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
}

// StoreConfig selects and tunes the vector store backend.
type StoreConfig struct {
	Backend  string  `yaml:"backend"` // "bolt", "sqlite", "memory"
	Path     string  `yaml:"path"`    // database file; empty = default under the data dir
	MinScore float64 `yaml:"min_score"` // drop results below this similarity (0 = disabled)
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // "openai", "ollama", "compatible", "mock"
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Dimension         int     `yaml:"dimension"` // 0 = infer from model
	BatchSize         int     `yaml:"batch_size"`
	MaxTextLen        int     `yaml:"max_text_len"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unthrottled
}

// IndexConfig holds ingestion configuration.
type IndexConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`    // runes per chunk
	ChunkOverlap int      `yaml:"chunk_overlap"` // runes shared by consecutive chunks
	Concurrency  int      `yaml:"concurrency"`   // concurrent embedding batches
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
}

// QueryConfig holds retrieval configuration.
type QueryConfig struct {
	TopK         int     `yaml:"top_k"`
	Rerank       bool    `yaml:"rerank"`
	RerankWeight float64 `yaml:"rerank_weight"`
	CacheSize    int     `yaml:"cache_size"`
	CacheTTLSecs int     `yaml:"cache_ttl_seconds"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "bolt",
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			APIKeyEnv:  "OPENAI_API_KEY",
			BatchSize:  100,
			MaxTextLen: 32768,
		},
		Index: IndexConfig{
			ChunkSize:    1200,
			ChunkOverlap: 200,
			Concurrency:  4,
			Includes:     []string{"**/*.md", "**/*.txt"},
			Excludes:     []string{"**/node_modules/**", "**/.git/**", "**/.semdex/**"},
		},
		Query: QueryConfig{
			TopK:         10,
			Rerank:       false,
			RerankWeight: 0.3,
			CacheSize:    100,
			CacheTTLSecs: 300,
		},
	}
}

// Load loads configuration from a YAML file, layered over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for semdex.yaml,
// then .semdex/config.yaml), falling back to defaults.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "semdex.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".semdex", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath returns the vector store file path for the data directory,
// honoring an explicit override.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	name := "index.db"
	if c.Store.Backend == "sqlite" {
		name = "index.sqlite"
	}
	return filepath.Join(dir, ".semdex", name)
}

// EnsureDataDir ensures the .semdex directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".semdex"), 0755)
}
