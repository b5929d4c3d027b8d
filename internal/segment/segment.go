// Package segment models the unit of translation work: a contiguous block of
// chapter text, plus the linguistic helpers (quoted-dialogue extraction,
// dialogue density, narration windows) shared by the ambiguity detector and
// the speaker resolver.
package segment

import (
	"strings"
)

// Segment is one translation unit within a chapter.
type Segment struct {
	ChapterID string `json:"chapter_id"`
	Index     int    `json:"index"`
	Text      string `json:"text"`
}

// Dialogue is a single quoted span found inside a segment.
// Start and End are byte offsets into the segment text; Start points at the
// opening quote rune and End just past the closing quote rune, while Text
// holds the content between the quotes.
type Dialogue struct {
	Text  string
	Start int
	End   int
}

// quotePairs maps opening quote runes to their closing counterparts.
// Covers ASCII double quotes plus the curly and CJK styles that show up in
// translated fiction sources.
var quotePairs = map[rune]rune{
	'"': '"',
	'“': '”',
	'「': '」',
	'『': '』',
}

// ExtractDialogue returns every quoted span in text in order of appearance.
// Unterminated quotes are ignored rather than treated as spanning to the end
// of the segment.
func ExtractDialogue(text string) []Dialogue {
	var spans []Dialogue

	var (
		open      bool
		closer    rune
		openAt    int
		contentAt int
	)
	for i, r := range text {
		if !open {
			if c, ok := quotePairs[r]; ok {
				open = true
				closer = c
				openAt = i
				contentAt = i + len(string(r))
			}
			continue
		}
		if r == closer {
			end := i + len(string(r))
			spans = append(spans, Dialogue{
				Text:  text[contentAt:i],
				Start: openAt,
				End:   end,
			})
			open = false
		}
	}

	return spans
}

// DialogueRatio reports what fraction of the segment's runes sit inside
// quoted spans, in [0,1].
func DialogueRatio(text string) float64 {
	total := len([]rune(text))
	if total == 0 {
		return 0
	}

	quoted := 0
	for _, d := range ExtractDialogue(text) {
		quoted += len([]rune(d.Text))
	}

	ratio := float64(quoted) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// PrecedingWindow returns up to size runes of text immediately before byte
// offset at. Used to scan the narration leading into a quote.
func PrecedingWindow(text string, at, size int) string {
	if at <= 0 || at > len(text) {
		return ""
	}
	window := []rune(text[:at])
	if len(window) > size {
		window = window[len(window)-size:]
	}
	return string(window)
}

// SplitChapter splits raw chapter text into segments on blank lines. Empty
// blocks are dropped; indices are assigned in document order.
func SplitChapter(chapterID, text string) []Segment {
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var segments []Segment
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		segments = append(segments, Segment{
			ChapterID: chapterID,
			Index:     len(segments),
			Text:      block,
		})
	}
	return segments
}
