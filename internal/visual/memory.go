package visual

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// MemoryStore is a brute-force in-memory VectorStore. It backs local runs
// where a Milvus deployment is overkill and doubles as the test fixture
// store. Records are held in insertion order, which is what makes the
// stable tie-break deterministic.
type MemoryStore struct {
	records []PanelRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends records in order.
func (m *MemoryStore) Insert(_ context.Context, records []PanelRecord) error {
	m.records = append(m.records, records...)
	return nil
}

// Search performs cosine-similarity search over all records, applying the
// page-range filter first. Results are sorted by score descending; equal
// scores come back in insertion order.
func (m *MemoryStore) Search(_ context.Context, queryVector []float32, topK int, opts *SearchOptions) ([]PanelResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	results := make([]PanelResult, 0, len(m.records))
	for _, rec := range m.records {
		if opts != nil && opts.Pages != nil && !opts.Pages.Contains(rec.Page) {
			continue
		}
		score := cosineSimilarity(queryVector, rec.Embedding)
		results = append(results, resultFromRecord(rec, score))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of stored records.
func (m *MemoryStore) Count(context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// cosineSimilarity returns similarity clamped to [0,1]. Mismatched or empty
// vectors score zero rather than erroring; a bad record just never matches.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return float32(sim)
}
