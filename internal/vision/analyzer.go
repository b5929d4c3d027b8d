// Package vision produces structured panel annotations from manga page
// images. The engine itself never calls this: annotation happens in a
// separate ingestion pass, and the engine only reads the persisted records.
package vision

import (
	"context"
	"errors"

	"github.com/thangdam97/mtl-studio/internal/annotation"
)

var (
	ErrEmptyImage     = errors.New("no image data provided")
	ErrAnalysisFailed = errors.New("page analysis failed")
)

// Request carries one page image to analyze.
type Request struct {
	ChapterID string
	Page      int
	Image     []byte
	// MIMEType of the image data, e.g. "image/png".
	MIMEType string
}

// Analyzer turns a page image into a structured annotation record.
// Implementations must be safe for sequential reuse across pages.
type Analyzer interface {
	// AnalyzePage analyzes one page. A reply that cannot be parsed into
	// structured panels is NOT an error: it comes back as a record flagged
	// ParseFailed, carrying the raw reply for inspection. Errors mean the
	// provider itself failed after retries were exhausted.
	AnalyzePage(ctx context.Context, req Request) (annotation.PageAnnotation, error)

	// Model returns the model identifier used for analysis, which
	// participates in the annotation cache key.
	Model() string
}

// MockAnalyzer is a deterministic Analyzer for tests.
type MockAnalyzer struct {
	// Panels returned for every page, re-keyed per request.
	Panels []annotation.PanelAnnotation
	// Error, if set, is returned instead of a record.
	Error error
	// Calls counts AnalyzePage invocations.
	Calls int
}

func (m *MockAnalyzer) AnalyzePage(_ context.Context, req Request) (annotation.PageAnnotation, error) {
	m.Calls++
	if m.Error != nil {
		return annotation.PageAnnotation{}, m.Error
	}

	panels := make([]annotation.PanelAnnotation, len(m.Panels))
	for i, p := range m.Panels {
		p.ID = annotation.PanelID(req.ChapterID, req.Page, i)
		p.Page = req.Page
		p.Ordinal = i
		panels[i] = p
	}
	return annotation.PageAnnotation{
		ChapterID: req.ChapterID,
		Page:      req.Page,
		Panels:    panels,
		Model:     m.Model(),
	}, nil
}

func (m *MockAnalyzer) Model() string { return "mock" }
