package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/thangdam97/mtl-studio/internal/alignment"
	"github.com/thangdam97/mtl-studio/internal/engine"
)

var (
	runMetaPath    string
	alignmentPath  string
	annotationsDir string
)

var rootCmd = &cobra.Command{
	Use:   "mtlstudio",
	Short: "MTL Studio - visually grounded chapter translation",
	Long: `MTL Studio translates serialized fiction chapter by chapter, augmenting the
translation prompt with visual context retrieved from a companion manga
adaptation.

The pipeline: manga pages are analyzed into per-panel annotations (annotate),
the annotations are embedded into a vector store (index), and at translation
time each text segment is scored for ambiguity, matched against its chapter's
aligned page range, and handed a confidence-gated guidance block (context,
translate).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&runMetaPath, "run-meta", "run.yaml", "Run metadata file (title, characters, static notes, fallback alignment)")
	rootCmd.PersistentFlags().StringVar(&alignmentPath, "alignment", "alignment.yaml", "Chapter-to-page alignment file")
	rootCmd.PersistentFlags().StringVar(&annotationsDir, "annotations", "annotations", "Directory holding persisted page annotations")
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRunContext loads run metadata and the alignment map, using the
// metadata's embedded alignment as fallback. Neither file existing is fine:
// the result is an empty map and visual retrieval is skipped per chapter.
func loadRunContext() (*engine.RunMeta, *alignment.Map, error) {
	meta, err := engine.LoadRunMeta(runMetaPath)
	if err != nil {
		return nil, nil, err
	}

	loader := alignment.Loader{Path: alignmentPath, Fallback: meta.Alignment}
	alignMap, _ := loader.Load()
	return meta, alignMap, nil
}
