// Package visual holds the visual evidence store: embeddings of per-panel
// manga annotations, searchable by similarity and filterable by page range.
// Three VectorStore implementations exist: Milvus for production, an
// in-memory brute-force store for local mode and tests, and a null store
// used when visual context is disabled.
package visual

import (
	"context"

	"github.com/thangdam97/mtl-studio/internal/annotation"
)

// PageRange is an inclusive page-number filter for search.
type PageRange struct {
	Start int
	End   int
}

// Contains reports whether page falls inside the range, bounds included.
func (r PageRange) Contains(page int) bool {
	return page >= r.Start && page <= r.End
}

// SearchOptions narrows a similarity search. A nil Pages filter means the
// whole collection.
type SearchOptions struct {
	Pages *PageRange
}

// PanelRecord is a panel annotation paired with its embedding, ready for
// insertion into a store.
type PanelRecord struct {
	annotation.PanelAnnotation

	ChapterID string
	Embedding []float32
}

// PanelResult is one similarity-search hit with the denormalized annotation
// fields needed downstream for prompt formatting. Score is in [0,1].
type PanelResult struct {
	ID            string
	Score         float32
	Page          int
	Speaker       string
	Characters    []string
	Dialogue      string
	Expression    string
	BodyLanguage  string
	SceneSummary  string
	Atmosphere    string
	NarrativeBeat string
	Intensity     float64
}

// VectorStore is the similarity-search interface over panel annotations.
// Implementations must return Search results sorted by score descending,
// with ties broken by insertion order so identical inputs yield identical
// output.
type VectorStore interface {
	// Insert adds panel records to the store.
	Insert(ctx context.Context, records []PanelRecord) error

	// Search performs top-K similarity search with optional filtering.
	Search(ctx context.Context, queryVector []float32, topK int, opts *SearchOptions) ([]PanelResult, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Close releases resources and closes connections.
	Close() error
}

// NullStore is the no-op VectorStore selected when the visual-context
// subsystem is disabled. Every search comes back empty.
type NullStore struct{}

func (NullStore) Insert(context.Context, []PanelRecord) error { return nil }

func (NullStore) Search(context.Context, []float32, int, *SearchOptions) ([]PanelResult, error) {
	return nil, nil
}

func (NullStore) Count(context.Context) (int64, error) { return 0, nil }

func (NullStore) Close() error { return nil }

func resultFromRecord(rec PanelRecord, score float32) PanelResult {
	return PanelResult{
		ID:            rec.ID,
		Score:         score,
		Page:          rec.Page,
		Speaker:       rec.Speaker,
		Characters:    rec.Characters,
		Dialogue:      rec.Dialogue,
		Expression:    rec.Expression,
		BodyLanguage:  rec.BodyLanguage,
		SceneSummary:  rec.SceneSummary,
		Atmosphere:    rec.Atmosphere,
		NarrativeBeat: rec.NarrativeBeat,
		Intensity:     rec.Intensity,
	}
}
