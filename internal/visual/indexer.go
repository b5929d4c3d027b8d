package visual

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thangdam97/mtl-studio/internal/annotation"
)

// IndexOptions provides configuration for annotation indexing
type IndexOptions struct {
	// BatchSize determines how many panels to embed per API call.
	BatchSize int
}

// DefaultIndexOptions returns sensible defaults for indexing
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{BatchSize: 16}
}

// IndexPages embeds every panel of the given page annotations and inserts
// them into the store. Pages flagged as parse failures are skipped and
// counted, not indexed; their raw replies stay on disk for inspection.
// Returns the number of panels indexed.
func IndexPages(ctx context.Context, embedder Embedder, store VectorStore, pages []annotation.PageAnnotation, opts IndexOptions) (int, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}

	var records []PanelRecord
	var texts []string
	skipped := 0
	for _, page := range pages {
		if page.ParseFailed {
			skipped++
			continue
		}
		for _, panel := range page.Panels {
			records = append(records, PanelRecord{
				PanelAnnotation: panel,
				ChapterID:       page.ChapterID,
			})
			texts = append(texts, panel.EmbeddingText())
		}
	}
	if skipped > 0 {
		slog.Warn("skipping unparsed pages during indexing", "pages", skipped)
	}
	if len(records) == 0 {
		return 0, nil
	}

	for start := 0; start < len(records); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(records) {
			end = len(records)
		}

		vectors, err := embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return 0, fmt.Errorf("failed to embed panel batch: %w", err)
		}
		if len(vectors) != end-start {
			return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", end-start, len(vectors))
		}
		for i := start; i < end; i++ {
			records[i].Embedding = vectors[i-start]
		}
	}

	if err := store.Insert(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to insert panel records: %w", err)
	}
	return len(records), nil
}
