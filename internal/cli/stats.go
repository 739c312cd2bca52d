package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	count, err := st.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}

	fmt.Printf("Store backend:   %s\n", cfg.Store.Backend)
	fmt.Printf("Store path:      %s\n", storePath)
	fmt.Printf("Embedding model: %s (dim %d)\n", embedder.ModelName(), embedder.Dimension())
	fmt.Printf("Index records:   %d\n", count)
	return nil
}
