package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"semdex/internal/usecase"
)

var deleteByID bool

var deleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Remove a document and all its chunks",
	Long: `Remove a document from the index. All chunks derived from it are
deleted from the vector store.

Examples:
  semdex delete docs/old-notes.md        # By path relative to the root
  semdex delete --id 9f2c1a0b4ddee801    # By raw document ID`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVar(&deleteByID, "id", false, "treat the argument as a raw document ID")
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	docID := args[0]
	if !deleteByID {
		docID = docIDFromPath(args[0])
	}

	indexer := usecase.NewIndexer(st, embedder, nil, cfg.Embedding.BatchSize, cfg.Index.Concurrency)
	if err := indexer.DeleteDocument(cmd.Context(), docID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	fmt.Printf("Deleted document %s\n", docID)
	return nil
}
