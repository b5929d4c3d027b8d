package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/thangdam97/mtl-studio/internal/annotation"
)

func TestParseReply(t *testing.T) {
	const valid = `[
		{"speaker": "Elena", "characters": ["Elena", "Kaito"], "dialogue": "We leave at dawn.",
		 "expression": "tight jaw", "body_language": "arms crossed",
		 "scene_summary": "harbor at dusk", "atmosphere": "tense",
		 "narrative_beat": "departure", "intensity": 0.7},
		{"characters": ["Kaito"], "scene_summary": "close-up", "intensity": 0.4}
	]`

	t.Run("Valid reply", func(t *testing.T) {
		page := ParseReply("CH_05", 42, valid)
		if page.ParseFailed {
			t.Fatalf("Unexpected parse failure: %q", page.RawReply)
		}
		if len(page.Panels) != 2 {
			t.Fatalf("Expected 2 panels, got %d", len(page.Panels))
		}
		first := page.Panels[0]
		if first.ID != "ch_05_p042_0" {
			t.Errorf("Panel ID = %q", first.ID)
		}
		if first.Speaker != "Elena" || first.Intensity != 0.7 {
			t.Errorf("Panel fields: %+v", first)
		}
		if page.Panels[1].Ordinal != 1 {
			t.Errorf("Ordinal = %d, want 1", page.Panels[1].Ordinal)
		}
	})

	t.Run("Fenced reply", func(t *testing.T) {
		page := ParseReply("CH_05", 42, "```json\n"+valid+"\n```")
		if page.ParseFailed {
			t.Fatalf("Fenced JSON should parse: %q", page.RawReply)
		}
		if len(page.Panels) != 2 {
			t.Errorf("Expected 2 panels, got %d", len(page.Panels))
		}
	})

	t.Run("Bare fence", func(t *testing.T) {
		page := ParseReply("CH_05", 42, "```\n"+valid+"\n```")
		if page.ParseFailed {
			t.Error("Unlabeled fence should parse")
		}
	})

	t.Run("Garbage reply degrades", func(t *testing.T) {
		raw := "I'm sorry, I cannot analyze this image."
		page := ParseReply("CH_05", 42, raw)
		if !page.ParseFailed {
			t.Fatal("Expected ParseFailed")
		}
		if page.RawReply != raw {
			t.Errorf("RawReply = %q, want the original reply", page.RawReply)
		}
		if page.ChapterID != "CH_05" || page.Page != 42 {
			t.Errorf("Failed record must still identify its page: %+v", page)
		}
	})

	t.Run("Intensity clamped", func(t *testing.T) {
		page := ParseReply("CH_05", 42, `[{"intensity": 3.5}, {"intensity": -1.0}]`)
		if page.Panels[0].Intensity != 1.0 {
			t.Errorf("Intensity = %v, want 1.0", page.Panels[0].Intensity)
		}
		if page.Panels[1].Intensity != 0.0 {
			t.Errorf("Intensity = %v, want 0.0", page.Panels[1].Intensity)
		}
	})

	t.Run("Empty array", func(t *testing.T) {
		page := ParseReply("CH_05", 42, "[]")
		if page.ParseFailed || len(page.Panels) != 0 {
			t.Errorf("Empty array should parse to zero panels: %+v", page)
		}
	})
}

func TestMockAnalyzer(t *testing.T) {
	t.Run("Re-keys panels per request", func(t *testing.T) {
		mock := &MockAnalyzer{
			Panels: []annotation.PanelAnnotation{
				{SceneSummary: "harbor"},
				{SceneSummary: "close-up"},
			},
		}

		page, err := mock.AnalyzePage(context.Background(), Request{ChapterID: "CH_05", Page: 7, Image: []byte("img")})
		if err != nil {
			t.Fatal(err)
		}
		if page.Panels[0].ID != "ch_05_p007_0" || page.Panels[1].ID != "ch_05_p007_1" {
			t.Errorf("Panel IDs: %q, %q", page.Panels[0].ID, page.Panels[1].ID)
		}
		if page.Panels[1].Page != 7 || page.Panels[1].Ordinal != 1 {
			t.Errorf("Panel keying: %+v", page.Panels[1])
		}
		if mock.Calls != 1 {
			t.Errorf("Calls = %d", mock.Calls)
		}
	})

	t.Run("Configured error", func(t *testing.T) {
		wantErr := errors.New("boom")
		mock := &MockAnalyzer{Error: wantErr}
		if _, err := mock.AnalyzePage(context.Background(), Request{}); !errors.Is(err, wantErr) {
			t.Errorf("Expected configured error, got: %v", err)
		}
	})
}
