package segment

import (
	"testing"
)

func TestExtractDialogue(t *testing.T) {
	t.Run("ASCII quotes", func(t *testing.T) {
		text := `Elena said, "We leave at dawn." Marcus nodded. "Fine."`
		spans := ExtractDialogue(text)
		if len(spans) != 2 {
			t.Fatalf("Expected 2 spans, got %d", len(spans))
		}
		if spans[0].Text != "We leave at dawn." {
			t.Errorf("Unexpected first span: %q", spans[0].Text)
		}
		if spans[1].Text != "Fine." {
			t.Errorf("Unexpected second span: %q", spans[1].Text)
		}
	})

	t.Run("CJK brackets", func(t *testing.T) {
		text := "彼女は言った。「行きましょう」そして『はい』と返した。"
		spans := ExtractDialogue(text)
		if len(spans) != 2 {
			t.Fatalf("Expected 2 spans, got %d", len(spans))
		}
		if spans[0].Text != "行きましょう" {
			t.Errorf("Unexpected first span: %q", spans[0].Text)
		}
		if spans[1].Text != "はい" {
			t.Errorf("Unexpected second span: %q", spans[1].Text)
		}
	})

	t.Run("Unterminated quote ignored", func(t *testing.T) {
		spans := ExtractDialogue(`He began, "and never finished`)
		if len(spans) != 0 {
			t.Fatalf("Expected no spans, got %d", len(spans))
		}
	})

	t.Run("Offsets address original text", func(t *testing.T) {
		text := `She said "yes" twice.`
		spans := ExtractDialogue(text)
		if len(spans) != 1 {
			t.Fatalf("Expected 1 span, got %d", len(spans))
		}
		if got := text[spans[0].Start:spans[0].End]; got != `"yes"` {
			t.Errorf("Offsets select %q, want %q", got, `"yes"`)
		}
	})
}

func TestDialogueRatio(t *testing.T) {
	if r := DialogueRatio(""); r != 0 {
		t.Errorf("Empty text ratio = %f, want 0", r)
	}
	if r := DialogueRatio("No quotes here at all."); r != 0 {
		t.Errorf("Narration-only ratio = %f, want 0", r)
	}

	mostlyDialogue := `"This line is quite long and full of words." "And so is this one, truly."`
	if r := DialogueRatio(mostlyDialogue); r <= 0.7 {
		t.Errorf("Dialogue-heavy ratio = %f, want > 0.7", r)
	}
}

func TestPrecedingWindow(t *testing.T) {
	text := "A long stretch of narration before the quote."

	if w := PrecedingWindow(text, 0, 10); w != "" {
		t.Errorf("Window at start = %q, want empty", w)
	}
	if w := PrecedingWindow(text, len(text), 9); w != "the quote" {
		t.Errorf("Window = %q, want %q", w, "the quote")
	}
	if w := PrecedingWindow("abc", 3, 100); w != "abc" {
		t.Errorf("Oversized window = %q, want full text", w)
	}
}

func TestSplitChapter(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph.\n\n\n\nThird."
	segments := SplitChapter("CH_01", text)

	if len(segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if seg.Index != i {
			t.Errorf("Segment %d has index %d", i, seg.Index)
		}
		if seg.ChapterID != "CH_01" {
			t.Errorf("Segment %d has chapter %q", i, seg.ChapterID)
		}
	}
	if segments[2].Text != "Third." {
		t.Errorf("Unexpected last segment: %q", segments[2].Text)
	}

	if got := SplitChapter("CH_01", "   \n\n  "); len(got) != 0 {
		t.Errorf("Whitespace-only chapter produced %d segments", len(got))
	}
}
