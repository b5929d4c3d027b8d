package ambiguity

import (
	"reflect"
	"testing"

	"github.com/thangdam97/mtl-studio/internal/segment"
)

func seg(text string) segment.Segment {
	return segment.Segment{ChapterID: "CH_05", Index: 0, Text: text}
}

func TestScoreRange(t *testing.T) {
	d := NewDetector(0.6)

	texts := []string{
		"",
		"Nothing remarkable happens in this sentence, and I am its subject.",
		`"One." "Two." "Three." Tears streamed down, trembling hands clenched, hair and eyes wild. Meanwhile, elsewhere.`,
	}
	for _, text := range texts {
		s := d.Score(seg(text), "")
		if s.Total < 0 || s.Total > 1 {
			t.Errorf("Score(%q) = %f, out of [0,1]", text, s.Total)
		}
	}
}

func TestScoreIsPure(t *testing.T) {
	d := NewDetector(0.6)
	text := `Reached for the hilt. "Don't." "Why not?" "Because." Tears welled up.`

	first := d.Score(seg(text), "prior text")
	second := d.Score(seg(text), "prior text")

	if first.Total != second.Total || first.ShouldRetrieve != second.ShouldRetrieve {
		t.Errorf("Same input produced different scores: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(first.Triggers, second.Triggers) {
		t.Errorf("Same input produced different triggers: %v vs %v", first.Triggers, second.Triggers)
	}
}

// Three quoted lines and no subject pronoun in the narration: the scenario
// where subject omission and multi-speaker evidence stack past the
// threshold.
func TestScoreMultiSpeakerOmittedSubject(t *testing.T) {
	d := NewDetector(0.6)
	text := `Glanced at the gate. "We can't stay." "Then where?" "Anywhere but here."`

	s := d.Score(seg(text), "")

	if w := s.Triggers[TriggerSubjectOmission]; w != 0.40 {
		t.Errorf("subject_omission weight = %f, want 0.40", w)
	}
	if w := s.Triggers[TriggerMultipleSpeakers]; w != 0.50 {
		t.Errorf("multiple_speakers weight = %f, want 0.50", w)
	}
	if s.Total < 0.6 {
		t.Errorf("Total = %f, want >= 0.6", s.Total)
	}
	if !s.ShouldRetrieve {
		t.Error("ShouldRetrieve = false, want true")
	}
}

func TestScoreClamped(t *testing.T) {
	d := NewDetector(0.6)
	// Every trigger at once: the raw sum would exceed 1.
	text := `Meanwhile, trembling with rage and tears, clenched fists, wild hair and hollow eyes under a torn uniform. ` +
		`"Go." "No." "Now." "Please."`

	s := d.Score(seg(text), "")
	if s.Total != 1.0 {
		t.Errorf("Total = %f, want clamped to 1.0", s.Total)
	}
}

func TestEmotionalSceneScaling(t *testing.T) {
	d := NewDetector(0.6)

	one := d.Score(seg("I watched as tears fell."), "")
	if w := one.Triggers[TriggerEmotionalScene]; w != 0.10 {
		t.Errorf("One marker weight = %f, want 0.10", w)
	}

	many := d.Score(seg("I saw tears; she was trembling, shaking, furious, terrified."), "")
	if w := many.Triggers[TriggerEmotionalScene]; w != 0.30 {
		t.Errorf("Capped weight = %f, want 0.30", w)
	}
}

func TestPhysicalDescriptionNeedsTwoMarkers(t *testing.T) {
	d := NewDetector(0.6)

	if s := d.Score(seg("I liked her hair."), ""); s.Triggers[TriggerPhysicalDescription] != 0 {
		t.Error("One marker should not trigger physical description")
	}
	s := d.Score(seg("I noticed her silver hair and violet eyes."), "")
	if w := s.Triggers[TriggerPhysicalDescription]; w != 0.25 {
		t.Errorf("Two markers weight = %f, want 0.25", w)
	}
}

func TestSceneTransition(t *testing.T) {
	d := NewDetector(0.6)

	s := d.Score(seg("Meanwhile, I waited at the harbor."), "")
	if w := s.Triggers[TriggerSceneTransition]; w != 0.30 {
		t.Errorf("Transition marker weight = %f, want 0.30", w)
	}

	s = d.Score(seg("I woke to sunlight."), "The night ended quietly.\n\n* * *")
	if w := s.Triggers[TriggerSceneTransition]; w != 0.30 {
		t.Errorf("Scene break in context weight = %f, want 0.30", w)
	}
}

func TestDenseDialogue(t *testing.T) {
	d := NewDetector(0.6)

	s := d.Score(seg(`"I kept talking for quite a while there." "And so did I, word after word."`), "")
	if w := s.Triggers[TriggerDenseDialogue]; w != 0.35 {
		t.Errorf("Dense dialogue weight = %f, want 0.35", w)
	}

	s = d.Score(seg(`I crossed the long room slowly, past the shelves. "Hm." "Hm?"`), "")
	if s.Triggers[TriggerDenseDialogue] != 0 {
		t.Error("Sparse dialogue should not trigger density")
	}
}

func TestThresholdGatesRecommendation(t *testing.T) {
	// subject omission alone (0.40) clears a 0.4 threshold but not 0.6.
	text := "Reached for the lantern and walked on."

	low := NewDetector(0.4).Score(seg(text), "")
	if !low.ShouldRetrieve {
		t.Errorf("Total %f should clear threshold 0.4", low.Total)
	}
	high := NewDetector(0.6).Score(seg(text), "")
	if high.ShouldRetrieve {
		t.Errorf("Total %f should not clear threshold 0.6", high.Total)
	}
}
