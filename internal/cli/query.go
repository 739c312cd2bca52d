package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"semdex/internal/adapter/cache"
	"semdex/internal/usecase"
)

var (
	queryText    string
	queryTopK    int
	queryJSON    bool
	queryFilters []string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed documents",
	Long: `Search for the chunks most similar to the query text.

Examples:
  semdex query -q "connection pooling"
  semdex query -q "error handling" --top-k 5 --json
  semdex query -q "setup" --filter path=docs/install.md`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "metadata equality filter, key=value (repeatable)")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	path := GetRootDir()

	storePath := cfg.StorePath(path)
	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'semdex index' first")
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	st, err := openStore(cfg, path, embedder.Dimension())
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer st.Close()

	filter, err := parseFilters(queryFilters)
	if err != nil {
		return err
	}

	qc := cache.NewQueryCache(cfg.Query.CacheSize, time.Duration(cfg.Query.CacheTTLSecs)*time.Second)
	engine := usecase.NewQueryEngine(st, embedder, qc, cfg.Query.Rerank, cfg.Query.RerankWeight)

	topK := cfg.Query.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	results, err := engine.Query(cmd.Context(), queryText, topK, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		label := r.ChunkID
		if p, ok := r.Metadata["path"]; ok {
			label = p
		}
		fmt.Printf("--- [%d] %s (score: %.3f) ---\n", i+1, label, r.Score)
		text := r.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}

	return nil
}

func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}
