// Package guidance assembles the per-segment injection block handed to the
// translation step: validated static notes, confidence-gated panel evidence,
// and high-confidence speaker attributions, preceded by the canon precedence
// directive.
package guidance

import (
	"fmt"
	"strings"

	"github.com/thangdam97/mtl-studio/internal/speaker"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

// PrecedenceDirective is the contract handed to the translation model along
// with any visual material. It is what keeps the manga from introducing
// canon drift into the translated prose.
const PrecedenceDirective = "The narrative text is authoritative. Use the visual reference material " +
	"below only for emotional tone, atmosphere vocabulary, and speaker attribution. " +
	"Never invent actions from the visuals and never contradict blocking stated in the text."

// BuildSegmentContext merges the context sources for one segment into a
// single text block. Panels below injectThreshold are dropped. Returns
// ok=false when there is nothing to inject; this path must stay cheap since
// it runs for every segment.
func BuildSegmentContext(staticNotes string, panels []visual.PanelResult, speakers []speaker.Resolution, injectThreshold float32) (string, bool) {
	injectable := panels[:0:0]
	for _, p := range panels {
		if p.Score >= injectThreshold {
			injectable = append(injectable, p)
		}
	}

	staticNotes = strings.TrimSpace(staticNotes)
	if staticNotes == "" && len(injectable) == 0 {
		return "", false
	}

	var b strings.Builder

	if staticNotes != "" {
		b.WriteString("## Scene Notes\n\n")
		b.WriteString(staticNotes)
		b.WriteString("\n\n")
	}

	if len(injectable) > 0 {
		b.WriteString(PrecedenceDirective)
		b.WriteString("\n\n")
		b.WriteString("## Visual Reference\n\n")
		for _, p := range injectable {
			writePanelBlock(&b, p)
		}
	}

	if block := speakerBlock(speakers); block != "" {
		b.WriteString("## Speaker Attribution\n\n")
		b.WriteString(block)
	}

	return strings.TrimRight(b.String(), "\n"), true
}

// writePanelBlock formats one retained panel. Lines for empty fields are
// omitted so token cost tracks actual signal.
func writePanelBlock(b *strings.Builder, p visual.PanelResult) {
	fmt.Fprintf(b, "Panel %s (similarity %.2f)\n", p.ID, p.Score)

	writeLine(b, "Speaker", p.Speaker)
	writeLine(b, "Characters", strings.Join(p.Characters, ", "))
	writeLine(b, "Expression", p.Expression)
	writeLine(b, "Body language", p.BodyLanguage)
	writeLine(b, "Scene", p.SceneSummary)
	writeLine(b, "Atmosphere", p.Atmosphere)
	if p.Intensity > 0 {
		fmt.Fprintf(b, "- Emotional intensity: %.2f\n", p.Intensity)
	}
	writeLine(b, "Narrative beat", p.NarrativeBeat)
	b.WriteString("\n")
}

func writeLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

// speakerBlock lists only high-confidence resolutions: explicit textual
// attributions and visual matches that cleared the resolver's threshold.
// Low-confidence attributions are for the audit log, never the prompt.
func speakerBlock(speakers []speaker.Resolution) string {
	var b strings.Builder
	for _, s := range speakers {
		if s.Method != speaker.MethodTextExplicit && s.Method != speaker.MethodVisualEvidence {
			continue
		}
		line := s.Dialogue
		if runes := []rune(line); len(runes) > 60 {
			line = string(runes[:60]) + "…"
		}
		fmt.Fprintf(&b, "- %q is spoken by %s\n", line, s.Speaker)
	}
	return b.String()
}
