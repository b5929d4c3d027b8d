package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/thangdam97/mtl-studio/internal/segment"
)

const sourceHeader = "## Source Text\n\n"

// Translator turns source segments into target-language prose, optionally
// guided by a visual-context block from the engine.
type Translator struct {
	llm            LLM
	targetLanguage string
}

// NewTranslator creates a Translator for one target language per run.
func NewTranslator(llm LLM, targetLanguage string) (*Translator, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm cannot be nil")
	}
	if targetLanguage == "" {
		return nil, fmt.Errorf("target language cannot be empty")
	}
	return &Translator{llm: llm, targetLanguage: targetLanguage}, nil
}

// TranslateSegment translates one segment. guidance may be empty: absence of
// a context block means "no special guidance", never an error.
func (t *Translator) TranslateSegment(ctx context.Context, seg segment.Segment, guidance string) (string, error) {
	prompt := t.buildPrompt(seg, guidance)

	out, err := t.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to translate segment %d of %s: %w", seg.Index, seg.ChapterID, err)
	}
	return strings.TrimSpace(out), nil
}

func (t *Translator) buildPrompt(seg segment.Segment, guidance string) string {
	var b strings.Builder

	b.WriteString("You are a literary translator working on serialized fiction. ")
	fmt.Fprintf(&b, "Translate the source text into %s, preserving register, tone and honorific nuance. ", t.targetLanguage)
	b.WriteString("Output only the translated text, with the same paragraph structure as the source.\n\n")

	if guidance != "" {
		b.WriteString(guidance)
		b.WriteString("\n\n")
	}

	b.WriteString(sourceHeader)
	b.WriteString(seg.Text)
	b.WriteString("\n")

	return b.String()
}
