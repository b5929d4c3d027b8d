// Package annotation defines the persisted visual-annotation data model: one
// record per analyzed manga page, decomposed into panel-level sub-records,
// plus the content-derived cache key that makes re-analysis idempotent.
package annotation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// PanelAnnotation is the structured reading of a single panel.
type PanelAnnotation struct {
	// ID is derived from chapter, page and ordinal, so re-analyzing the same
	// page yields the same identifiers.
	ID           string  `json:"id"`
	Page         int     `json:"page"`
	Ordinal      int     `json:"ordinal"`
	Speaker      string  `json:"speaker,omitempty"`
	Characters   []string `json:"characters,omitempty"`
	Dialogue     string  `json:"dialogue,omitempty"`
	Expression   string  `json:"expression,omitempty"`
	BodyLanguage string  `json:"body_language,omitempty"`
	SceneSummary string  `json:"scene_summary,omitempty"`
	Atmosphere   string  `json:"atmosphere,omitempty"`
	NarrativeBeat string `json:"narrative_beat,omitempty"`
	// Intensity is the emotional intensity of the panel in [0,1].
	Intensity float64 `json:"intensity"`
}

// PageAnnotation is the persisted record for one analyzed page.
type PageAnnotation struct {
	ChapterID string            `json:"chapter_id"`
	Page      int               `json:"page"`
	Panels    []PanelAnnotation `json:"panels"`

	// CacheKey is derived from the source image, the analysis prompt and the
	// model identifier; a matching key means re-analysis would be redundant.
	CacheKey string `json:"cache_key"`

	// ManualOverride marks a record edited by a human. Such records are never
	// regenerated automatically, regardless of cache-key mismatch.
	ManualOverride bool `json:"manual_override,omitempty"`

	// ParseFailed marks a record whose model reply could not be parsed into
	// structured panels. The raw reply is kept for inspection and the record
	// is excluded from retrieval indexing.
	ParseFailed bool   `json:"parse_failed,omitempty"`
	RawReply    string `json:"raw_reply,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
	Model      string    `json:"model,omitempty"`
}

// Summary is the run-level record of what has been analyzed so far.
type Summary struct {
	TotalPages  int       `json:"total_pages"`
	TotalPanels int       `json:"total_panels"`
	FailedPages int       `json:"failed_pages"`
	Model       string    `json:"model"`
	LastRunAt   time.Time `json:"last_run_at"`
}

// PanelID derives the stable identifier for a panel. Same chapter, page and
// ordinal always produce the same ID.
func PanelID(chapterID string, page, ordinal int) string {
	return fmt.Sprintf("%s_p%03d_%d", strings.ToLower(chapterID), page, ordinal)
}

// CacheKey derives the content hash guarding re-analysis: the image bytes,
// the prompt template and the model identifier all participate, so editing
// any of them invalidates the cached record.
func CacheKey(image []byte, promptTemplate, model string) string {
	h := sha256.New()
	h.Write(image)
	h.Write([]byte{0})
	h.Write([]byte(promptTemplate))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingText flattens a panel into the text that gets embedded for
// similarity search. Field labels keep distinct aspects separable in the
// embedding space; empty fields are omitted entirely.
func (p PanelAnnotation) EmbeddingText() string {
	var b strings.Builder
	write := func(label, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}

	write("speaker", p.Speaker)
	write("characters", strings.Join(p.Characters, ", "))
	write("dialogue", p.Dialogue)
	write("expression", p.Expression)
	write("body language", p.BodyLanguage)
	write("scene", p.SceneSummary)
	write("atmosphere", p.Atmosphere)
	write("beat", p.NarrativeBeat)
	return b.String()
}
