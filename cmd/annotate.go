package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thangdam97/mtl-studio/internal/annotation"
	"github.com/thangdam97/mtl-studio/internal/vision"
)

var (
	annotateModel     string
	annotateStartPage int
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [chapter-id] [images-dir]",
	Short: "Analyze manga page images into panel annotations",
	Long: `Analyze a directory of manga page images with a vision model and persist one
structured annotation record per page.

Pages are numbered from --start-page in filename order. A page whose cached
record matches the current image, prompt and model is skipped; a record marked
as manually edited is never regenerated. Pages that fail analysis after
retries are recorded as failed and do not abort the run.

Required environment variables:
  OPENAI_API_KEY - OpenAI API key for the vision model

Examples:
  mtlstudio annotate CH_05 ./manga/vol2/ch05 --start-page 40
  mtlstudio annotate CH_05 ./manga/vol2/ch05 --model gpt-4o`,
	Args: cobra.ExactArgs(2),
	RunE: runAnnotate,
}

func init() {
	rootCmd.AddCommand(annotateCmd)
	annotateCmd.Flags().StringVar(&annotateModel, "model", vision.DefaultConfig().Model, "Vision model for page analysis")
	annotateCmd.Flags().IntVar(&annotateStartPage, "start-page", 1, "Page number assigned to the first image")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	chapterID := args[0]
	imagesDir := args[1]
	ctx := context.Background()

	cfg := vision.DefaultConfig()
	cfg.Model = annotateModel
	analyzer, err := vision.NewOpenAIAnalyzer(cfg)
	if err != nil {
		return err
	}

	store, err := annotation.NewStore(annotationsDir)
	if err != nil {
		return err
	}

	images, err := listImages(imagesDir)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("no page images found in %s", imagesDir)
	}

	var analyzed, skipped, failed, panels int
	for i, path := range images {
		page := annotateStartPage + i

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		key := annotation.CacheKey(data, vision.AnalysisPrompt, analyzer.Model())
		if store.HasFreshAnalysis(page, key) {
			skipped++
			continue
		}

		record, err := analyzer.AnalyzePage(ctx, vision.Request{
			ChapterID: chapterID,
			Page:      page,
			Image:     data,
			MIMEType:  mimeFromPath(path),
		})
		if err != nil {
			// A failed page is recorded, not fatal; the rest of the chapter
			// still gets analyzed.
			fmt.Fprintf(os.Stderr, "page %d failed: %v\n", page, err)
			failed++
			continue
		}
		record.CacheKey = key

		if err := store.Save(record); err != nil {
			return err
		}
		analyzed++
		panels += len(record.Panels)
	}

	sum, _ := store.ReadSummary()
	sum.TotalPages += analyzed
	sum.TotalPanels += panels
	sum.FailedPages += failed
	sum.Model = analyzer.Model()
	sum.LastRunAt = time.Now()
	if err := store.WriteSummary(sum); err != nil {
		return err
	}

	fmt.Printf("✓ Analyzed %d pages (%d panels), skipped %d cached, %d failed\n",
		analyzed, panels, skipped, failed)
	return nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".webp":
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
