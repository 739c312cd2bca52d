package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"semdex/config"
	"semdex/internal/adapter/fs"
	"semdex/internal/domain"
	"semdex/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index documents for retrieval",
	Long: `Index the files in the given directory. Each file becomes one document;
its chunks are embedded and stored in the vector store under .semdex/.

Examples:
  semdex index .             # Index current directory
  semdex index ./docs        # Index a specific directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	if err := config.EnsureDataDir(path); err != nil {
		return fmt.Errorf("failed to create .semdex directory: %w", err)
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

	walker := fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes)
	files, err := walker.Walk(path)
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No files matched the include patterns.")
		return nil
	}

	indexer := usecase.NewIndexer(st, embedder, nil, cfg.Embedding.BatchSize, cfg.Index.Concurrency)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var indexed, chunks int
	var errs []string
	for i, file := range files {
		text, err := fs.ReadFile(file.Path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("failed to read %s: %v", file.RelPath, err))
			bar.Set(i + 1)
			continue
		}

		doc := domain.Document{
			ID:       docIDFromPath(file.RelPath),
			Text:     text,
			Metadata: map[string]string{"path": file.RelPath},
		}

		ids, err := indexer.IndexDocument(cmd.Context(), doc, cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
		if err != nil {
			errs = append(errs, fmt.Sprintf("failed to index %s: %v", file.RelPath, err))
			bar.Set(i + 1)
			continue
		}
		indexed++
		chunks += len(ids)
		bar.Set(i + 1)
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Documents indexed: %d\n", indexed)
	fmt.Printf("  Chunks created:    %d\n", chunks)

	if len(errs) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nIndex stored at: %s\n", cfg.StorePath(path))
	return nil
}
