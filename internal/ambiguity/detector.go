// Package ambiguity scores how much a text segment would benefit from visual
// disambiguation, using linguistic signals alone. Scoring is a pure function
// of the segment text and static marker sets: no model call, no state.
package ambiguity

import (
	"strings"

	"github.com/thangdam97/mtl-studio/internal/segment"
)

// Trigger categories. Each contributes a fixed weight when its condition
// holds; triggers are independent evidence, so weights sum and clamp rather
// than normalize.
const (
	TriggerSubjectOmission     = "subject_omission"
	TriggerMultipleSpeakers    = "multiple_speakers"
	TriggerEmotionalScene      = "emotional_scene"
	TriggerPhysicalDescription = "physical_description"
	TriggerSceneTransition     = "scene_transition"
	TriggerDenseDialogue       = "dense_dialogue"
)

const (
	weightSubjectOmission     = 0.40
	weightMultipleSpeakers    = 0.50
	weightEmotionalPerMarker  = 0.10
	weightEmotionalCap        = 0.30
	weightPhysicalDescription = 0.25
	weightSceneTransition     = 0.30
	weightDenseDialogue       = 0.35

	// denseDialogueRatio is the fraction of the segment that must be quoted
	// dialogue before density alone suggests attribution trouble.
	denseDialogueRatio = 0.70
)

// Score is the result of ambiguity detection for one segment.
type Score struct {
	// Total is the clamped sum of triggered weights, in [0,1].
	Total float64
	// Triggers maps each fired trigger to the weight it contributed.
	Triggers map[string]float64
	// ShouldRetrieve reports whether Total reached the retrieval threshold.
	ShouldRetrieve bool
}

// Detector evaluates segments against the static marker sets.
type Detector struct {
	threshold float64
}

// DefaultRetrievalThreshold is the score at which visual retrieval is
// recommended.
const DefaultRetrievalThreshold = 0.6

// NewDetector creates a detector with the given retrieval threshold.
// Thresholds outside (0,1] fall back to the default.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultRetrievalThreshold
	}
	return &Detector{threshold: threshold}
}

var subjectPronouns = []string{
	"i", "you", "he", "she", "it", "we", "they",
	"i'm", "he's", "she's", "it's", "we're", "they're", "you're",
}

var emotionalMarkers = []string{
	"tears", "crying", "sobbed", "trembled", "trembling", "shaking",
	"screamed", "shouted", "blushed", "blushing", "rage", "furious",
	"terrified", "horror", "despair", "grief", "joy", "laughed bitterly",
	"clenched", "gritted",
}

var physicalMarkers = []string{
	"hair", "eyes", "wearing", "dressed", "uniform", "scar", "slender",
	"tall", "figure", "cloak", "armor", "jewel", "silhouette",
}

var transitionMarkers = []string{
	"meanwhile", "later that", "the next morning", "the next day",
	"elsewhere", "that night", "hours passed", "days passed",
	"the following", "back at", "by the time",
}

// sceneBreaks are typographic markers that end a scene in serialized prose.
var sceneBreaks = []string{"***", "* * *", "◇", "─────"}

// Score evaluates one segment. prevContext is the text immediately preceding
// the segment (typically the prior segment); a scene break at its tail marks
// this segment as opening a new scene.
func (d *Detector) Score(seg segment.Segment, prevContext string) Score {
	text := seg.Text
	lower := strings.ToLower(text)
	dialogue := segment.ExtractDialogue(text)
	narration := stripDialogue(text, dialogue)

	triggers := make(map[string]float64)

	if lacksSubject(narration) {
		triggers[TriggerSubjectOmission] = weightSubjectOmission
	}

	if len(dialogue) >= 3 {
		triggers[TriggerMultipleSpeakers] = weightMultipleSpeakers
	}

	if w := emotionalWeight(lower); w > 0 {
		triggers[TriggerEmotionalScene] = w
	}

	if countMarkers(lower, physicalMarkers) >= 2 {
		triggers[TriggerPhysicalDescription] = weightPhysicalDescription
	}

	if hasTransition(lower, prevContext) {
		triggers[TriggerSceneTransition] = weightSceneTransition
	}

	if segment.DialogueRatio(text) > denseDialogueRatio && len(dialogue) >= 2 {
		triggers[TriggerDenseDialogue] = weightDenseDialogue
	}

	total := 0.0
	for _, w := range triggers {
		total += w
	}
	if total > 1 {
		total = 1
	}

	return Score{
		Total:          total,
		Triggers:       triggers,
		ShouldRetrieve: total >= d.threshold,
	}
}

// stripDialogue removes quoted spans so narration can be inspected alone.
func stripDialogue(text string, dialogue []segment.Dialogue) string {
	if len(dialogue) == 0 {
		return text
	}
	var b strings.Builder
	prev := 0
	for _, d := range dialogue {
		b.WriteString(text[prev:d.Start])
		prev = d.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// lacksSubject reports whether the narration contains no subject pronoun.
func lacksSubject(narration string) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(narration), func(r rune) bool {
		return !('a' <= r && r <= 'z') && r != '\''
	}) {
		for _, p := range subjectPronouns {
			if word == p {
				return false
			}
		}
	}
	return true
}

func emotionalWeight(lower string) float64 {
	w := float64(countMarkers(lower, emotionalMarkers)) * weightEmotionalPerMarker
	if w > weightEmotionalCap {
		w = weightEmotionalCap
	}
	return w
}

func countMarkers(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

func hasTransition(lower, prevContext string) bool {
	for _, m := range transitionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}

	tail := strings.TrimSpace(prevContext)
	if len(tail) > 40 {
		tail = tail[len(tail)-40:]
	}
	for _, b := range sceneBreaks {
		if strings.Contains(tail, b) {
			return true
		}
	}
	return false
}
