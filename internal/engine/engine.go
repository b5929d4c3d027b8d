// Package engine wires the context-retrieval components into the per-segment
// control flow: ambiguity scoring, confidence-gated retrieval, speaker
// resolution, and context merging. Segments are processed strictly
// sequentially within a chapter; every failure mode degrades to "less
// context" and nothing here may abort a chapter run.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thangdam97/mtl-studio/internal/alignment"
	"github.com/thangdam97/mtl-studio/internal/ambiguity"
	"github.com/thangdam97/mtl-studio/internal/guidance"
	"github.com/thangdam97/mtl-studio/internal/retrieval"
	"github.com/thangdam97/mtl-studio/internal/segment"
	"github.com/thangdam97/mtl-studio/internal/speaker"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

// Config configures the engine. The Enabled flag is explicit, threaded
// through the constructor: all components are built unconditionally, the
// orchestrator just never invokes them when disabled.
type Config struct {
	// Enabled gates the whole visual-context subsystem.
	Enabled bool

	// RetrievalThreshold is the ambiguity score at which retrieval runs.
	RetrievalThreshold float64

	// Retrieval holds the tier thresholds and result budget.
	Retrieval retrieval.Config

	// Speaker holds the resolver tuning. Candidates are filled from run
	// metadata when empty.
	Speaker speaker.Config

	// StaticNotes are per-chapter keyframe notes keyed by chapter ID.
	StaticNotes map[string]string
}

// DefaultConfig returns the standard engine tuning with the subsystem on.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		RetrievalThreshold: ambiguity.DefaultRetrievalThreshold,
		Retrieval:          retrieval.DefaultConfig(),
		Speaker:            speaker.DefaultConfig(),
	}
}

// SegmentContext is the engine's output for one segment.
type SegmentContext struct {
	Segment   segment.Segment
	Ambiguity ambiguity.Score

	// Panels holds loggable-tier retrieval results; the merger applies the
	// stricter injection gate on top.
	Panels []visual.PanelResult

	Speakers []speaker.Resolution

	// Block is the assembled guidance text; HasBlock false means nothing to
	// inject and the translation step proceeds unguided.
	Block    string
	HasBlock bool

	// Degraded marks that the evidence store failed for this segment and
	// the context fell back to static notes only.
	Degraded bool
}

// Engine runs the per-segment context pipeline.
type Engine struct {
	config    Config
	detector  *ambiguity.Detector
	retriever *retrieval.Retriever
	resolver  *speaker.Resolver
}

// New builds an Engine. Components are constructed even when the subsystem
// is disabled, so the disabled path exercises the same wiring.
func New(config Config, alignMap *alignment.Map, embedder visual.Embedder, store visual.VectorStore) (*Engine, error) {
	if config.RetrievalThreshold <= 0 {
		config.RetrievalThreshold = ambiguity.DefaultRetrievalThreshold
	}

	retriever, err := retrieval.NewRetriever(alignMap, embedder, store, config.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("failed to build retriever: %w", err)
	}

	return &Engine{
		config:    config,
		detector:  ambiguity.NewDetector(config.RetrievalThreshold),
		retriever: retriever,
		resolver:  speaker.NewResolver(retriever, config.Speaker),
	}, nil
}

// Enabled reports whether the visual-context subsystem is active.
func (e *Engine) Enabled() bool { return e.config.Enabled }

// ProcessChapter runs the context pipeline over chapter text, one segment at
// a time. Cancellation stops issuing further per-segment calls; segments
// already processed are returned as-is.
func (e *Engine) ProcessChapter(ctx context.Context, chapterID, text string) ([]SegmentContext, error) {
	segments := segment.SplitChapter(chapterID, text)

	out := make([]SegmentContext, 0, len(segments))
	prev := ""
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, e.ProcessSegment(ctx, seg, prev))
		prev = seg.Text
	}
	return out, nil
}

// ProcessSegment runs the control flow for one segment: ambiguity scoring,
// then, only above the retrieval threshold, visual retrieval and speaker
// resolution, then context merging. prevContext is the text preceding the
// segment.
func (e *Engine) ProcessSegment(ctx context.Context, seg segment.Segment, prevContext string) SegmentContext {
	result := SegmentContext{Segment: seg}
	if !e.config.Enabled {
		return result
	}

	result.Ambiguity = e.detector.Score(seg, prevContext)

	if result.Ambiguity.ShouldRetrieve {
		panels, err := e.retriever.RetrieveLoggable(ctx, seg, retrieval.IntentScene)
		if err != nil {
			// Store failure affects this segment only: fall back to static
			// notes and keep processing the chapter.
			slog.Warn("visual retrieval degraded to static notes",
				"chapter", seg.ChapterID, "segment", seg.Index, "error", err)
			result.Degraded = true
		} else {
			result.Panels = panels
		}

		result.Speakers = e.resolver.ResolveSegment(ctx, seg)
		logLowConfidence(seg, result.Speakers)
	}

	result.Block, result.HasBlock = guidance.BuildSegmentContext(
		e.config.StaticNotes[seg.ChapterID],
		result.Panels,
		result.Speakers,
		e.config.Retrieval.InjectThreshold,
	)
	return result
}

// logLowConfidence records weak speaker attributions for human review. They
// never reach the injected block, but they are never silently dropped.
func logLowConfidence(seg segment.Segment, resolutions []speaker.Resolution) {
	for _, r := range resolutions {
		if r.Method != speaker.MethodVisualLowConfidence {
			continue
		}
		slog.Info("low-confidence speaker attribution",
			"chapter", seg.ChapterID,
			"segment", seg.Index,
			"speaker", r.Speaker,
			"confidence", r.Confidence,
			"panel", r.PanelID,
		)
	}
}
