package guidance

import (
	"strings"
	"testing"

	"github.com/thangdam97/mtl-studio/internal/speaker"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

func TestBuildSegmentContextEmpty(t *testing.T) {
	t.Run("Nothing at all", func(t *testing.T) {
		block, ok := BuildSegmentContext("", nil, nil, 0.80)
		if ok || block != "" {
			t.Errorf("Expected empty block, got ok=%v block=%q", ok, block)
		}
	})

	t.Run("Whitespace-only notes", func(t *testing.T) {
		if _, ok := BuildSegmentContext("  \n\t", nil, nil, 0.80); ok {
			t.Error("Whitespace notes should not produce a block")
		}
	})

	t.Run("All panels below threshold", func(t *testing.T) {
		panels := []visual.PanelResult{
			{ID: "ch_5_p042_1", Score: 0.72, SceneSummary: "harbor at dusk"},
		}
		if _, ok := BuildSegmentContext("", panels, nil, 0.80); ok {
			t.Error("A 0.72 panel must not clear a 0.80 gate")
		}
	})
}

func TestBuildSegmentContextPanels(t *testing.T) {
	panels := []visual.PanelResult{
		{ID: "ch_5_p042_1", Score: 0.92, Speaker: "Elena", Expression: "tight jaw", SceneSummary: "harbor at dusk", Intensity: 0.7},
		{ID: "ch_5_p042_2", Score: 0.72, SceneSummary: "crowd shot"},
	}

	block, ok := BuildSegmentContext("", panels, nil, 0.80)
	if !ok {
		t.Fatal("Expected a block")
	}

	if !strings.Contains(block, PrecedenceDirective) {
		t.Error("Precedence directive missing from a block with visual material")
	}
	if !strings.Contains(block, "## Visual Reference") {
		t.Error("Visual reference heading missing")
	}
	if !strings.Contains(block, "Panel ch_5_p042_1 (similarity 0.92)") {
		t.Errorf("Retained panel missing:\n%s", block)
	}
	if strings.Contains(block, "ch_5_p042_2") {
		t.Error("Sub-threshold panel leaked into the block")
	}
	if !strings.Contains(block, "- Emotional intensity: 0.70") {
		t.Error("Intensity line missing")
	}
}

func TestBuildSegmentContextOmitsEmptyFields(t *testing.T) {
	panels := []visual.PanelResult{
		{ID: "ch_5_p042_1", Score: 0.90, SceneSummary: "harbor at dusk"},
	}

	block, _ := BuildSegmentContext("", panels, nil, 0.80)

	for _, label := range []string{"Speaker:", "Characters:", "Expression:", "Body language:", "Atmosphere:", "intensity"} {
		if strings.Contains(block, label) {
			t.Errorf("Unpopulated field %q rendered:\n%s", label, block)
		}
	}
	if !strings.Contains(block, "- Scene: harbor at dusk") {
		t.Error("Populated field missing")
	}
}

func TestBuildSegmentContextStaticNotesOnly(t *testing.T) {
	block, ok := BuildSegmentContext("Elena and Kaito last met in chapter 2.", nil, nil, 0.80)
	if !ok {
		t.Fatal("Expected a block from static notes alone")
	}
	if !strings.Contains(block, "## Scene Notes") {
		t.Error("Scene notes heading missing")
	}
	if strings.Contains(block, PrecedenceDirective) {
		t.Error("Directive should only appear alongside visual material")
	}
}

func TestBuildSegmentContextSpeakers(t *testing.T) {
	panels := []visual.PanelResult{{ID: "ch_5_p042_1", Score: 0.90}}
	speakers := []speaker.Resolution{
		{Dialogue: "We leave at dawn.", Speaker: "Elena", Confidence: 1.0, Method: speaker.MethodTextExplicit},
		{Dialogue: "You knew.", Speaker: "Kaito", Confidence: 0.88, Method: speaker.MethodVisualEvidence},
		{Dialogue: "Maybe.", Speaker: "Kaito", Confidence: 0.66, Method: speaker.MethodVisualLowConfidence},
		{Dialogue: "Who goes there?", Method: speaker.MethodUnresolved},
	}

	block, ok := BuildSegmentContext("", panels, speakers, 0.80)
	if !ok {
		t.Fatal("Expected a block")
	}

	if !strings.Contains(block, "## Speaker Attribution") {
		t.Error("Speaker heading missing")
	}
	if !strings.Contains(block, `"We leave at dawn." is spoken by Elena`) {
		t.Errorf("Explicit attribution missing:\n%s", block)
	}
	if !strings.Contains(block, `"You knew." is spoken by Kaito`) {
		t.Error("Visual attribution missing")
	}
	if strings.Contains(block, "Maybe.") {
		t.Error("Low-confidence attribution leaked into the prompt")
	}
	if strings.Contains(block, "Who goes there?") {
		t.Error("Unresolved line leaked into the prompt")
	}
}

func TestBuildSegmentContextSectionOrder(t *testing.T) {
	panels := []visual.PanelResult{{ID: "ch_5_p042_1", Score: 0.90, SceneSummary: "harbor"}}
	speakers := []speaker.Resolution{
		{Dialogue: "We leave at dawn.", Speaker: "Elena", Method: speaker.MethodTextExplicit},
	}

	block, _ := BuildSegmentContext("Continuity note.", panels, speakers, 0.80)

	notes := strings.Index(block, "## Scene Notes")
	visualRef := strings.Index(block, "## Visual Reference")
	attribution := strings.Index(block, "## Speaker Attribution")
	if notes < 0 || visualRef < 0 || attribution < 0 {
		t.Fatalf("Missing section:\n%s", block)
	}
	if !(notes < visualRef && visualRef < attribution) {
		t.Errorf("Sections out of order: notes=%d visual=%d speakers=%d", notes, visualRef, attribution)
	}
}
