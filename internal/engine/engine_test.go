package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/thangdam97/mtl-studio/internal/alignment"
	"github.com/thangdam97/mtl-studio/internal/ambiguity"
	"github.com/thangdam97/mtl-studio/internal/segment"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

// ambiguousText fires subject omission plus multiple speakers (0.90), well
// above the retrieval threshold.
const ambiguousText = `"Go now." "Not without the ledger." "Then take it and run."`

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (e *countingEmbedder) GetModel() string  { return "mock" }
func (e *countingEmbedder) GetDimension() int { return 2 }

type countingStore struct {
	results []visual.PanelResult
	err     error
	calls   int
}

func (s *countingStore) Insert(context.Context, []visual.PanelRecord) error { return nil }

func (s *countingStore) Search(context.Context, []float32, int, *visual.SearchOptions) ([]visual.PanelResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *countingStore) Count(context.Context) (int64, error) { return 0, nil }
func (s *countingStore) Close() error                         { return nil }

func alignedMap() *alignment.Map {
	return alignment.NewMap(&alignment.File{
		Chapters: map[string]alignment.Entry{
			"CH_05": {Pages: [2]int{40, 60}},
		},
	})
}

func newTestEngine(t *testing.T, config Config, store visual.VectorStore) (*Engine, *countingEmbedder) {
	t.Helper()
	embedder := &countingEmbedder{}
	e, err := New(config, alignedMap(), embedder, store)
	if err != nil {
		t.Fatal(err)
	}
	return e, embedder
}

func TestProcessSegmentDisabled(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false
	store := &countingStore{results: []visual.PanelResult{{ID: "x", Score: 0.95}}}
	e, embedder := newTestEngine(t, config, store)

	seg := segment.Segment{ChapterID: "CH_05", Text: ambiguousText}
	got := e.ProcessSegment(context.Background(), seg, "")

	if got.HasBlock || got.Block != "" {
		t.Errorf("Disabled engine produced a block: %q", got.Block)
	}
	if got.Ambiguity.Total != 0 || len(got.Panels) != 0 || len(got.Speakers) != 0 {
		t.Errorf("Disabled engine did work: %+v", got)
	}
	if embedder.calls != 0 || store.calls != 0 {
		t.Errorf("Disabled engine reached the store: embed=%d search=%d", embedder.calls, store.calls)
	}
}

func TestProcessSegmentBelowThreshold(t *testing.T) {
	store := &countingStore{}
	e, embedder := newTestEngine(t, DefaultConfig(), store)

	seg := segment.Segment{ChapterID: "CH_05", Text: "She walked along the harbor wall, counting the moored boats."}
	got := e.ProcessSegment(context.Background(), seg, "")

	if got.Ambiguity.ShouldRetrieve {
		t.Fatalf("Plain narration scored %v, expected below threshold", got.Ambiguity.Total)
	}
	if embedder.calls != 0 || store.calls != 0 {
		t.Error("Retrieval ran for an unambiguous segment")
	}
	if got.HasBlock {
		t.Errorf("Unexpected block: %q", got.Block)
	}
}

func TestProcessSegmentRetrieves(t *testing.T) {
	store := &countingStore{results: []visual.PanelResult{
		{ID: "ch_5_p042_1", Score: 0.92, Speaker: "Elena", SceneSummary: "harbor"},
		{ID: "ch_5_p043_1", Score: 0.72, SceneSummary: "crowd"},
	}}
	e, _ := newTestEngine(t, DefaultConfig(), store)

	seg := segment.Segment{ChapterID: "CH_05", Index: 1, Text: ambiguousText}
	got := e.ProcessSegment(context.Background(), seg, "")

	if !got.Ambiguity.ShouldRetrieve {
		t.Fatalf("Score = %v, expected retrieval", got.Ambiguity.Total)
	}
	// Loggable tier keeps the 0.72 match for audit.
	if len(got.Panels) != 2 {
		t.Fatalf("Expected 2 loggable panels, got %d", len(got.Panels))
	}
	if !got.HasBlock {
		t.Fatal("Expected a guidance block")
	}
	// The injection gate drops it from the block.
	if strings.Contains(got.Block, "ch_5_p043_1") {
		t.Error("Sub-threshold panel leaked into the block")
	}
	if !strings.Contains(got.Block, "ch_5_p042_1") {
		t.Errorf("Injectable panel missing from block:\n%s", got.Block)
	}
	if len(got.Speakers) != 3 {
		t.Errorf("Expected 3 speaker resolutions, got %d", len(got.Speakers))
	}
	if got.Degraded {
		t.Error("Healthy store marked degraded")
	}
}

func TestProcessSegmentUnalignedChapter(t *testing.T) {
	config := DefaultConfig()
	config.StaticNotes = map[string]string{"CH_09": "Elena is traveling alone here."}
	store := &countingStore{}
	e, embedder := newTestEngine(t, config, store)

	seg := segment.Segment{ChapterID: "CH_09", Text: ambiguousText}
	got := e.ProcessSegment(context.Background(), seg, "")

	if embedder.calls != 0 || store.calls != 0 {
		t.Errorf("Unaligned chapter reached the store: embed=%d search=%d", embedder.calls, store.calls)
	}
	if !got.HasBlock || !strings.Contains(got.Block, "Elena is traveling alone here.") {
		t.Errorf("Static notes should still flow through: %q", got.Block)
	}
	if strings.Contains(got.Block, "## Visual Reference") {
		t.Error("No visual material should exist for an unaligned chapter")
	}
}

func TestProcessSegmentStoreFailureDegrades(t *testing.T) {
	config := DefaultConfig()
	config.StaticNotes = map[string]string{"CH_05": "Keyframe: the harbor confrontation."}
	store := &countingStore{err: errors.New("milvus unavailable")}
	e, _ := newTestEngine(t, config, store)

	seg := segment.Segment{ChapterID: "CH_05", Text: ambiguousText}
	got := e.ProcessSegment(context.Background(), seg, "")

	if !got.Degraded {
		t.Error("Expected the segment to be marked degraded")
	}
	if len(got.Panels) != 0 {
		t.Errorf("Expected no panels, got %d", len(got.Panels))
	}
	if !got.HasBlock || !strings.Contains(got.Block, "Keyframe: the harbor confrontation.") {
		t.Errorf("Static notes must survive a store failure: %q", got.Block)
	}
}

func TestProcessChapter(t *testing.T) {
	text := "She walked along the harbor wall.\n\n***\n\nMorning light spilled over the rooftops of the lower town."

	t.Run("Scene break carries into the next segment", func(t *testing.T) {
		e, _ := newTestEngine(t, DefaultConfig(), &countingStore{})
		got, err := e.ProcessChapter(context.Background(), "CH_05", text)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 segments, got %d", len(got))
		}
		last := got[2].Ambiguity
		if _, ok := last.Triggers[ambiguity.TriggerSceneTransition]; !ok {
			t.Errorf("Segment after a scene break missed the transition trigger: %v", last.Triggers)
		}
	})

	t.Run("Cancellation stops the run", func(t *testing.T) {
		e, _ := newTestEngine(t, DefaultConfig(), &countingStore{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		got, err := e.ProcessChapter(ctx, "CH_05", text)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected no processed segments, got %d", len(got))
		}
	})
}
