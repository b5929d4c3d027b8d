// Package retrieval answers "what does the manga show at this point of the
// chapter?". It scopes every query to the chapter's aligned page range, shapes
// the query text by intent, and gates results behind two confidence tiers:
// injectable evidence may influence the translation, loggable evidence is
// recorded for human review only.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/thangdam97/mtl-studio/internal/alignment"
	"github.com/thangdam97/mtl-studio/internal/segment"
	"github.com/thangdam97/mtl-studio/internal/visual"
)

// Intent shapes the query string sent to the evidence store.
type Intent string

const (
	// IntentScene matches the whole segment against panel annotations.
	IntentScene Intent = "scene"
	// IntentSpeaker matches quoted dialogue only, for attribution.
	IntentSpeaker Intent = "speaker_attribution"
	// IntentExpression matches quoted dialogue against facial expressions.
	IntentExpression Intent = "expression"
	// IntentBodyLanguage matches a labeled excerpt against posture notes.
	IntentBodyLanguage Intent = "body_language"
	// IntentAtmosphere matches a labeled excerpt against mood annotations.
	IntentAtmosphere Intent = "atmosphere"
)

// Config holds the retriever's confidence tiers and result budget.
type Config struct {
	// TopK is the maximum number of results per query.
	TopK int
	// InjectThreshold is the similarity floor above which evidence is safe
	// to influence the translated prose.
	InjectThreshold float32
	// LogThreshold is the lower floor above which evidence is still worth
	// recording for audit.
	LogThreshold float32
}

// DefaultConfig returns the standard tier thresholds.
func DefaultConfig() Config {
	return Config{
		TopK:            3,
		InjectThreshold: 0.80,
		LogThreshold:    0.65,
	}
}

// excerptRunes bounds the labeled excerpt used for body-language and
// atmosphere queries.
const excerptRunes = 280

// Retriever resolves alignment scope and queries the visual evidence store.
type Retriever struct {
	alignMap *alignment.Map
	embedder visual.Embedder
	store    visual.VectorStore
	config   Config
}

// NewRetriever creates a Retriever. All collaborators are required.
func NewRetriever(alignMap *alignment.Map, embedder visual.Embedder, store visual.VectorStore, config Config) (*Retriever, error) {
	if alignMap == nil {
		return nil, fmt.Errorf("alignment map cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	return &Retriever{
		alignMap: alignMap,
		embedder: embedder,
		store:    store,
		config:   config,
	}, nil
}

// Retrieve returns ranked panel matches for a segment, at most topK, all at
// or above minSimilarity, sorted by similarity descending with stable ties.
//
// A chapter with no alignment entry returns empty immediately: no embedding
// call, no store query. That early exit is the main cost saver, since most
// chapters of a long series have no manga counterpart.
func (r *Retriever) Retrieve(ctx context.Context, seg segment.Segment, intent Intent, topK int, minSimilarity float32) ([]visual.PanelResult, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}

	start, end, ok := r.alignMap.GetPageRange(seg.ChapterID)
	if !ok {
		return nil, nil
	}

	query := buildQuery(seg, intent)
	if query == "" {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding generated for query")
	}

	opts := &visual.SearchOptions{
		Pages: &visual.PageRange{Start: start, End: end},
	}
	results, err := r.store.Search(ctx, vectors[0], topK, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search visual evidence: %w", err)
	}

	filtered := results[:0]
	for _, res := range results {
		if res.Score >= minSimilarity {
			filtered = append(filtered, res)
		}
	}
	// Stores already return score-descending output; re-sorting stably here
	// keeps the ordering invariant independent of the implementation.
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

// RetrieveInjectable returns only evidence confident enough to influence the
// translation prompt.
func (r *Retriever) RetrieveInjectable(ctx context.Context, seg segment.Segment, intent Intent) ([]visual.PanelResult, error) {
	return r.Retrieve(ctx, seg, intent, r.config.TopK, r.config.InjectThreshold)
}

// RetrieveLoggable returns evidence worth recording for human review,
// including matches below the injection gate.
func (r *Retriever) RetrieveLoggable(ctx context.Context, seg segment.Segment, intent Intent) ([]visual.PanelResult, error) {
	return r.Retrieve(ctx, seg, intent, r.config.TopK, r.config.LogThreshold)
}

// Config returns the retriever's tier configuration.
func (r *Retriever) Config() Config {
	return r.config
}

// buildQuery shapes the query text by intent. Dialogue-driven intents with
// no quoted dialogue produce an empty query, which callers treat as "nothing
// to look up".
func buildQuery(seg segment.Segment, intent Intent) string {
	switch intent {
	case IntentSpeaker, IntentExpression:
		var quotes []string
		for _, d := range segment.ExtractDialogue(seg.Text) {
			quotes = append(quotes, d.Text)
		}
		return strings.Join(quotes, "\n")
	case IntentBodyLanguage, IntentAtmosphere:
		return string(intent) + ": " + excerpt(seg.Text)
	default:
		return seg.Text
	}
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) > excerptRunes {
		runes = runes[:excerptRunes]
	}
	return string(runes)
}
