package visual

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Common errors for Milvus operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrEmptyRecords     = errors.New("no records provided for insertion")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert records")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

// MilvusConfig holds configuration for Milvus connection and collection
type MilvusConfig struct {
	Address        string // Milvus server address (e.g., "localhost:19530")
	CollectionName string // Name of the collection
	Dimension      int    // Vector dimension (e.g., 3072 for text-embedding-3-large)
	IndexType      string // Index type (default: "HNSW")
	MetricType     string // Similarity metric (default: "COSINE")

	// HNSW index parameters
	M              int // HNSW M parameter (default: 16)
	EfConstruction int // HNSW efConstruction (default: 256)
}

// DefaultMilvusConfig returns default configuration from environment variables
func DefaultMilvusConfig() MilvusConfig {
	address := os.Getenv("MILVUS_ADDRESS")
	if address == "" {
		address = "localhost:19530"
	}

	collection := os.Getenv("MILVUS_COLLECTION")
	if collection == "" {
		collection = "mtl_panels"
	}

	dimension := 3072 // Default for text-embedding-3-large
	if v := os.Getenv("MILVUS_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			dimension = d
		}
	}

	return MilvusConfig{
		Address:        address,
		CollectionName: collection,
		Dimension:      dimension,
		IndexType:      "HNSW",
		MetricType:     "COSINE",
		M:              16,
		EfConstruction: 256,
	}
}

// MilvusStore implements VectorStore using Milvus. Panel IDs are the primary
// key, so re-indexing the same pages upserts rather than duplicates.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusStore connects to Milvus and ensures the panel collection exists
// with the proper schema, index and load state.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{
		client: c,
		config: config,
	}

	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return store, nil
}

var panelVarcharFields = []string{
	"chapter_id", "speaker", "characters", "dialogue", "expression",
	"body_language", "scene_summary", "atmosphere", "narrative_beat",
}

// ensureCollection creates the collection with schema if it doesn't exist
func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !has {
		fields := []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "page",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "intensity",
				DataType: entity.FieldTypeDouble,
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(m.config.Dimension),
				},
			},
		}
		for _, name := range panelVarcharFields {
			fields = append(fields, &entity.Field{
				Name:       name,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			})
		}

		schema := &entity.Schema{
			CollectionName: m.config.CollectionName,
			AutoID:         false,
			Fields:         fields,
		}

		if err := m.client.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(entity.MetricType(m.config.MetricType), m.config.M, m.config.EfConstruction)
		if err != nil {
			return fmt.Errorf("failed to build index definition: %w", err)
		}
		if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Insert upserts panel records in a single batch and flushes.
func (m *MilvusStore) Insert(ctx context.Context, records []PanelRecord) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}

	n := len(records)
	ids := make([]string, n)
	pages := make([]int64, n)
	intensities := make([]float64, n)
	varchars := make(map[string][]string, len(panelVarcharFields))
	for _, name := range panelVarcharFields {
		varchars[name] = make([]string, n)
	}
	embeddings := make([][]float32, n)

	for i, rec := range records {
		if len(rec.Embedding) != m.config.Dimension {
			return fmt.Errorf("%w: expected %d, got %d for %s",
				ErrInvalidDimension, m.config.Dimension, len(rec.Embedding), rec.ID)
		}
		ids[i] = rec.ID
		pages[i] = int64(rec.Page)
		intensities[i] = rec.Intensity
		varchars["chapter_id"][i] = rec.ChapterID
		varchars["speaker"][i] = rec.Speaker
		varchars["characters"][i] = strings.Join(rec.Characters, ", ")
		varchars["dialogue"][i] = rec.Dialogue
		varchars["expression"][i] = rec.Expression
		varchars["body_language"][i] = rec.BodyLanguage
		varchars["scene_summary"][i] = rec.SceneSummary
		varchars["atmosphere"][i] = rec.Atmosphere
		varchars["narrative_beat"][i] = rec.NarrativeBeat
		embeddings[i] = rec.Embedding
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnInt64("page", pages),
		entity.NewColumnDouble("intensity", intensities),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, embeddings),
	}
	for _, name := range panelVarcharFields {
		columns = append(columns, entity.NewColumnVarChar(name, varchars[name]))
	}

	if _, err := m.client.Upsert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	// Flush to ensure data is persisted
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}

	return nil
}

// Search performs top-K similarity search, optionally restricted to an
// inclusive page range via a filter expression.
func (m *MilvusStore) Search(ctx context.Context, queryVector []float32, topK int, opts *SearchOptions) ([]PanelResult, error) {
	if len(queryVector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(queryVector))
	}

	expr := ""
	if opts != nil && opts.Pages != nil {
		expr = fmt.Sprintf("page >= %d and page <= %d", opts.Pages.Start, opts.Pages.End)
	}

	sp, err := entity.NewIndexHNSWSearchParam(64) // ef parameter for search
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(queryVector)}
	outputFields := append([]string{"id", "page", "intensity"}, panelVarcharFields...)

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		expr,
		outputFields,
		vectors,
		"embedding",
		entity.MetricType(m.config.MetricType),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []PanelResult{}, nil
	}

	out := make([]PanelResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		res := PanelResult{Score: clampScore(results[0].Scores[i])}

		for _, field := range results[0].Fields {
			switch field.Name() {
			case "id":
				res.ID = field.(*entity.ColumnVarChar).Data()[i]
			case "page":
				res.Page = int(field.(*entity.ColumnInt64).Data()[i])
			case "intensity":
				res.Intensity = field.(*entity.ColumnDouble).Data()[i]
			case "chapter_id":
				// chapter_id is carried for audit output only; the page range
				// already scopes the search.
			case "speaker":
				res.Speaker = field.(*entity.ColumnVarChar).Data()[i]
			case "characters":
				if raw := field.(*entity.ColumnVarChar).Data()[i]; raw != "" {
					res.Characters = strings.Split(raw, ", ")
				}
			case "dialogue":
				res.Dialogue = field.(*entity.ColumnVarChar).Data()[i]
			case "expression":
				res.Expression = field.(*entity.ColumnVarChar).Data()[i]
			case "body_language":
				res.BodyLanguage = field.(*entity.ColumnVarChar).Data()[i]
			case "scene_summary":
				res.SceneSummary = field.(*entity.ColumnVarChar).Data()[i]
			case "atmosphere":
				res.Atmosphere = field.(*entity.ColumnVarChar).Data()[i]
			case "narrative_beat":
				res.NarrativeBeat = field.(*entity.ColumnVarChar).Data()[i]
			}
		}

		out = append(out, res)
	}

	return out, nil
}

// Count returns the number of records in the collection.
func (m *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.config.CollectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get stats: %w", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse row count: %w", err)
	}
	return n, nil
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// clampScore maps a COSINE similarity score into [0,1].
func clampScore(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
