// Package speaker attributes quoted dialogue lines to characters. Textual
// attribution runs first and short-circuits everything else; visual evidence
// from the manga is consulted only for the residual ambiguous lines, and a
// weak visual match is recorded at its true confidence rather than discarded.
package speaker

import (
	"context"
	"log/slog"
	"strings"

	"github.com/thangdam97/mtl-studio/internal/retrieval"
	"github.com/thangdam97/mtl-studio/internal/segment"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

// Method tags how a resolution was reached.
type Method string

const (
	// MethodTextExplicit means the narration names the speaker outright.
	// Always confidence 1.0 and never second-guessed by visual evidence.
	MethodTextExplicit Method = "text_explicit"
	// MethodVisualEvidence means a confident manga panel match supplied the
	// speaker.
	MethodVisualEvidence Method = "visual_evidence"
	// MethodVisualLowConfidence means a panel match existed but fell below
	// the confidence threshold; kept for audit, not for injection.
	MethodVisualLowConfidence Method = "visual_evidence_low_confidence"
	// MethodUnresolved means no attribution was possible.
	MethodUnresolved Method = "unresolved"
)

// Resolution is the attribution outcome for one quoted line.
type Resolution struct {
	Dialogue   string
	Speaker    string
	Confidence float32
	Method     Method
	// PanelID identifies the supporting panel for visually-attributed lines.
	PanelID string
}

// Config tunes the resolver.
type Config struct {
	// NarrationWindow is how many runes of preceding narration are scanned
	// for a name plus speech verb.
	NarrationWindow int
	// NameWindow is the tail of that window in which a bare name still
	// counts as attribution.
	NameWindow int
	// ConfidenceThreshold separates visual_evidence from its low-confidence
	// variant.
	ConfidenceThreshold float32
	// TopK and MinSimilarity shape the visual lookup.
	TopK          int
	MinSimilarity float32
	// Candidates lists known character names. It drives textual matching and,
	// when non-empty, acts as an allowlist for visually attributed speakers.
	Candidates []string
}

// DefaultConfig returns the standard resolver tuning.
func DefaultConfig() Config {
	return Config{
		NarrationWindow:     160,
		NameWindow:          80,
		ConfidenceThreshold: 0.85,
		TopK:                3,
		MinSimilarity:       0.60,
	}
}

// VisualSource is the retrieval dependency; satisfied by
// *retrieval.Retriever.
type VisualSource interface {
	Retrieve(ctx context.Context, seg segment.Segment, intent retrieval.Intent, topK int, minSimilarity float32) ([]visual.PanelResult, error)
}

// Resolver attributes dialogue lines within segments.
type Resolver struct {
	source VisualSource
	config Config
}

// NewResolver creates a Resolver. source may not be nil.
func NewResolver(source VisualSource, config Config) *Resolver {
	if config.NarrationWindow <= 0 {
		config.NarrationWindow = DefaultConfig().NarrationWindow
	}
	if config.NameWindow <= 0 {
		config.NameWindow = DefaultConfig().NameWindow
	}
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	return &Resolver{source: source, config: config}
}

var speechVerbs = []string{
	"said", "asked", "replied", "answered", "shouted", "whispered",
	"muttered", "murmured", "called", "cried", "continued", "added",
	"snapped", "demanded", "offered", "agreed",
}

// ResolveSegment attributes every quoted line in the segment, in order of
// appearance. Visual lookup failures degrade to unresolved; they never
// propagate.
func (r *Resolver) ResolveSegment(ctx context.Context, seg segment.Segment) []Resolution {
	dialogues := segment.ExtractDialogue(seg.Text)
	if len(dialogues) == 0 {
		return nil
	}

	resolutions := make([]Resolution, 0, len(dialogues))
	for _, d := range dialogues {
		resolutions = append(resolutions, r.resolveLine(ctx, seg, d))
	}
	return resolutions
}

func (r *Resolver) resolveLine(ctx context.Context, seg segment.Segment, d segment.Dialogue) Resolution {
	// Step 1: textual attribution. Cheapest and most reliable when present,
	// so a hit ends the search.
	if name, ok := r.textExplicit(seg.Text, d); ok {
		return Resolution{
			Dialogue:   d.Text,
			Speaker:    name,
			Confidence: 1.0,
			Method:     MethodTextExplicit,
		}
	}

	// Step 2: visual evidence via the speaker-attribution intent. The query
	// carries the dialogue text alone.
	query := segment.Segment{
		ChapterID: seg.ChapterID,
		Text:      `"` + d.Text + `"`,
	}
	results, err := r.source.Retrieve(ctx, query, retrieval.IntentSpeaker, r.config.TopK, r.config.MinSimilarity)
	if err != nil {
		slog.Warn("visual speaker lookup failed",
			"chapter", seg.ChapterID, "segment", seg.Index, "error", err)
		return Resolution{Dialogue: d.Text, Method: MethodUnresolved}
	}

	for _, res := range results {
		if res.Speaker == "" {
			continue
		}
		if len(r.config.Candidates) > 0 && !r.isCandidate(res.Speaker) {
			continue
		}
		method := MethodVisualLowConfidence
		if res.Score >= r.config.ConfidenceThreshold {
			method = MethodVisualEvidence
		}
		return Resolution{
			Dialogue:   d.Text,
			Speaker:    res.Speaker,
			Confidence: res.Score,
			Method:     method,
			PanelID:    res.ID,
		}
	}

	return Resolution{Dialogue: d.Text, Method: MethodUnresolved}
}

// textExplicit scans the narration window before the quote for a candidate
// name paired with a speech verb, or for a bare name close to the quote.
func (r *Resolver) textExplicit(text string, d segment.Dialogue) (string, bool) {
	window := strings.ToLower(segment.PrecedingWindow(text, d.Start, r.config.NarrationWindow))
	if window == "" {
		return "", false
	}

	for _, name := range r.config.Candidates {
		lowerName := strings.ToLower(name)
		idx := strings.LastIndex(window, lowerName)
		if idx < 0 {
			continue
		}

		if nearSpeechVerb(window, idx, len(lowerName)) {
			return name, true
		}

		// A bare name directly ahead of the quote still attributes it.
		tail := window
		if tailRunes := []rune(window); len(tailRunes) > r.config.NameWindow {
			tail = string(tailRunes[len(tailRunes)-r.config.NameWindow:])
		}
		if strings.Contains(tail, lowerName) {
			return name, true
		}
	}
	return "", false
}

// nearSpeechVerb reports whether a speech verb sits just after or just
// before the name occurrence ("Elena said," / "said Elena,").
func nearSpeechVerb(window string, nameIdx, nameLen int) bool {
	const reach = 24

	after := window[nameIdx+nameLen:]
	if len(after) > reach {
		after = after[:reach]
	}
	before := window[:nameIdx]
	if len(before) > reach {
		before = before[len(before)-reach:]
	}

	for _, verb := range speechVerbs {
		if strings.Contains(after, verb) || strings.Contains(before, verb) {
			return true
		}
	}
	return false
}

func (r *Resolver) isCandidate(name string) bool {
	for _, c := range r.config.Candidates {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
