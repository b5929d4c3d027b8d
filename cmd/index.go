package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thangdam97/mtl-studio/internal/annotation"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

var (
	indexBatchSize int
	embedderModel  string
	embedderDim    int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed persisted annotations into the vector store",
	Long: `Embed every persisted panel annotation and insert it into the Milvus vector
store. Panel IDs are stable, so re-indexing the same pages upserts in place.
Pages whose analysis failed to parse are skipped.

Required environment variables:
  OPENAI_API_KEY - OpenAI API key for embeddings
  MILVUS_ADDRESS - Milvus server address (default: localhost:19530)

Examples:
  mtlstudio index
  mtlstudio index --annotations ./annotations --batch-size 32`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", visual.DefaultIndexOptions().BatchSize, "Panels per embedding API call")
	indexCmd.Flags().StringVar(&embedderModel, "embedder-model", "text-embedding-3-large", "Embedding model")
	indexCmd.Flags().IntVar(&embedderDim, "embedder-dim", 3072, "Embedding vector dimension")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := annotation.NewStore(annotationsDir)
	if err != nil {
		return err
	}
	pages, err := store.LoadAll()
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Println("No annotations to index")
		return nil
	}

	embedder, err := visual.NewOpenAIEmbedder(embedderModel, embedderDim)
	if err != nil {
		return err
	}

	milvusCfg := visual.DefaultMilvusConfig()
	milvusCfg.Dimension = embedderDim
	vectorStore, err := visual.NewMilvusStore(ctx, milvusCfg)
	if err != nil {
		return err
	}
	defer vectorStore.Close()

	n, err := visual.IndexPages(ctx, embedder, vectorStore, pages, visual.IndexOptions{
		BatchSize: indexBatchSize,
	})
	if err != nil {
		return err
	}

	total, err := vectorStore.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Indexed %d panels from %d pages (%d records in collection)\n", n, len(pages), total)
	return nil
}
