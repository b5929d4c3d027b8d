package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/thangdam97/mtl-studio/internal/engine"
	"github.com/thangdam97/mtl-studio/internal/speaker"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

var (
	noVisual        bool
	retrievalFloor  float64
	injectThreshold float32
	logThreshold    float32
)

var contextCmd = &cobra.Command{
	Use:   "context [chapter-id] [chapter-file]",
	Short: "Audit per-segment visual context without translating",
	Long: `Run the context engine over a chapter and print, per segment, the ambiguity
score with its triggers, the retrieved panels in both confidence tiers, the
speaker resolutions, and the guidance block that would be injected.

Nothing is translated; this is the human-review view of what the engine
would hand to the translation step.

Examples:
  mtlstudio context CH_05 chapters/ch05.txt
  mtlstudio context CH_05 chapters/ch05.txt --inject-threshold 0.85`,
	Args: cobra.ExactArgs(2),
	RunE: runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	addEngineFlags(contextCmd)
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noVisual, "no-visual", false, "Disable the visual-context subsystem entirely")
	cmd.Flags().Float64Var(&retrievalFloor, "retrieval-threshold", 0.6, "Ambiguity score at which retrieval runs")
	cmd.Flags().Float32Var(&injectThreshold, "inject-threshold", 0.80, "Similarity floor for evidence allowed to influence prose")
	cmd.Flags().Float32Var(&logThreshold, "log-threshold", 0.65, "Similarity floor for evidence recorded for review")
}

// buildEngine assembles the engine from flags and run metadata. With
// --no-visual the store and embedder are the null implementations and the
// orchestrator never invokes retrieval.
func buildEngine(ctx context.Context, meta *engine.RunMeta) (*engine.Engine, func(), error) {
	cfg := engine.DefaultConfig()
	cfg.Enabled = !noVisual
	cfg.RetrievalThreshold = retrievalFloor
	cfg.Retrieval.InjectThreshold = injectThreshold
	cfg.Retrieval.LogThreshold = logThreshold
	cfg.Speaker.Candidates = meta.Characters
	cfg.StaticNotes = meta.StaticNotes

	_, alignMap, err := loadRunContext()
	if err != nil {
		return nil, nil, err
	}

	var (
		embedder visual.Embedder    = visual.NullEmbedder{}
		store    visual.VectorStore = visual.NullStore{}
		closer                      = func() {}
	)
	if cfg.Enabled {
		embedder, err = visual.NewOpenAIEmbedder("text-embedding-3-large", 3072)
		if err != nil {
			return nil, nil, err
		}
		milvus, err := visual.NewMilvusStore(ctx, visual.DefaultMilvusConfig())
		if err != nil {
			return nil, nil, err
		}
		store = milvus
		closer = func() { milvus.Close() }
	}

	eng, err := engine.New(cfg, alignMap, embedder, store)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return eng, closer, nil
}

func runContext(cmd *cobra.Command, args []string) error {
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

	eng, closer, err := buildEngine(ctx, meta)
	if err != nil {
		return err
	}
	defer closer()

	results, err := eng.ProcessChapter(ctx, chapterID, string(text))
	if err != nil {
		return err
	}

	var (
		headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
		dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)
		blockStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
		warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	)

	injected := 0
	for _, res := range results {
		fmt.Println()
		fmt.Println(headerStyle.Render(fmt.Sprintf("Segment %d", res.Segment.Index)))
		fmt.Println(dimStyle.Render(fmt.Sprintf("ambiguity %.2f retrieve=%v triggers=%s",
			res.Ambiguity.Total, res.Ambiguity.ShouldRetrieve, formatTriggers(res.Ambiguity.Triggers))))

		if res.Degraded {
			fmt.Println(warnStyle.Render("! evidence store unavailable, static notes only"))
		}
		for _, p := range res.Panels {
			tier := "loggable"
			if p.Score >= injectThreshold {
				tier = "injectable"
			}
			fmt.Println(dimStyle.Render(fmt.Sprintf("  panel %s %.2f (%s)", p.ID, p.Score, tier)))
		}
		for _, s := range res.Speakers {
			line := fmt.Sprintf("  speaker %q → %s (%s, %.2f)", truncate(s.Dialogue, 32), orUnknown(s.Speaker), s.Method, s.Confidence)
			if s.Method == speaker.MethodVisualLowConfidence || s.Method == speaker.MethodUnresolved {
				fmt.Println(warnStyle.Render(line))
			} else {
				fmt.Println(dimStyle.Render(line))
			}
		}

		if res.HasBlock {
			injected++
			fmt.Println(blockStyle.Render(res.Block))
		} else {
			fmt.Println(dimStyle.Render("(no guidance)"))
		}
	}

	fmt.Println()
	fmt.Printf("✓ %d segments, %d with guidance\n", len(results), injected)
	return nil
}

func formatTriggers(triggers map[string]float64) string {
	if len(triggers) == 0 {
		return "none"
	}
	names := make([]string, 0, len(triggers))
	for name := range triggers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s:%.2f", name, triggers[name])
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
