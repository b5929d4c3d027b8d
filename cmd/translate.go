package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/thangdam97/mtl-studio/internal/translator"
)

var (
	targetLanguage string
	outFile        string
	translateModel string
)

var translateCmd = &cobra.Command{
	Use:   "translate [chapter-id] [chapter-file]",
	Short: "Translate a chapter with visual context injection",
	Long: `Translate a chapter segment by segment. Each segment runs through the context
engine first; segments that score high enough for retrieval get a guidance
block of aligned manga evidence injected ahead of the source text. Segments
without guidance translate unguided, which is always a valid fallback.

Required environment variables:
  OPENAI_API_KEY - OpenAI API key for embeddings and translation
  MILVUS_ADDRESS - Milvus server address (default: localhost:19530)

Examples:
  mtlstudio translate CH_05 chapters/ch05.txt --target-language English
  mtlstudio translate CH_09 chapters/ch09.txt --out out/ch09_en.txt
  mtlstudio translate CH_09 chapters/ch09.txt --no-visual`,
	Args: cobra.ExactArgs(2),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)
	addEngineFlags(translateCmd)
	translateCmd.Flags().StringVar(&targetLanguage, "target-language", "English", "Target language for this run")
	translateCmd.Flags().StringVar(&outFile, "out", "", "Write the translated chapter to a file instead of stdout")
	translateCmd.Flags().StringVar(&translateModel, "model", translator.DefaultLLMConfig().Model, "Translation model")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	chapterID := args[0]
	ctx := context.Background()

	text, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read chapter file: %w", err)
	}

	meta, _, err := loadRunContext()
	if err != nil {
		return err
	}
	if meta.TargetLanguage != "" {
		targetLanguage = meta.TargetLanguage
	}

	eng, closer, err := buildEngine(ctx, meta)
	if err != nil {
		return err
	}
	defer closer()

	llmCfg := translator.DefaultLLMConfig()
	llmCfg.Model = translateModel
	llm, err := translator.NewOpenAILLM(llmCfg)
	if err != nil {
		return err
	}
	trans, err := translator.NewTranslator(llm, targetLanguage)
	if err != nil {
		return err
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)

	contexts, err := eng.ProcessChapter(ctx, chapterID, string(text))
	if err != nil {
		return err
	}

	var out strings.Builder
	guided := 0
	for _, sc := range contexts {
		if sc.HasBlock {
			guided++
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("→ translating segment %d (guidance=%v)", sc.Segment.Index, sc.HasBlock)))

		translated, err := trans.TranslateSegment(ctx, sc.Segment, sc.Block)
		if err != nil {
			return err
		}
		out.WriteString(translated)
		out.WriteString("\n\n")
	}

	result := strings.TrimRight(out.String(), "\n") + "\n"
	if outFile != "" {
		if err := os.WriteFile(outFile, []byte(result), 0o644); err != nil {
			return fmt.Errorf("failed to write translation: %w", err)
		}
		fmt.Printf("✓ Translated %d segments (%d guided) to %s\n", len(contexts), guided, outFile)
		return nil
	}

	fmt.Println()
	fmt.Println(result)
	fmt.Printf("✓ Translated %d segments (%d guided)\n", len(contexts), guided)
	return nil
}
