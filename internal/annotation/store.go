package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

var (
	ErrPageNotFound = errors.New("page annotation not found")
)

const summaryFile = "summary.json"

// Store persists page annotations as one JSON file per page under a
// directory, plus a run-level summary. The engine only reads these records;
// writing happens in the analysis step.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) an annotation directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("annotation directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create annotation directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pagePath(page int) string {
	return filepath.Join(s.dir, fmt.Sprintf("page_%03d.json", page))
}

// Save writes a page annotation. It refuses to overwrite a record marked as
// manually edited.
func (s *Store) Save(page PageAnnotation) error {
	existing, err := s.Load(page.Page)
	if err == nil && existing.ManualOverride {
		return fmt.Errorf("page %d is manually edited and cannot be overwritten", page.Page)
	}

	data, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode page %d: %w", page.Page, err)
	}
	if err := os.WriteFile(s.pagePath(page.Page), data, 0o644); err != nil {
		return fmt.Errorf("failed to write page %d: %w", page.Page, err)
	}
	return nil
}

// Load reads a single page annotation by page number.
func (s *Store) Load(page int) (PageAnnotation, error) {
	data, err := os.ReadFile(s.pagePath(page))
	if err != nil {
		if os.IsNotExist(err) {
			return PageAnnotation{}, ErrPageNotFound
		}
		return PageAnnotation{}, fmt.Errorf("failed to read page %d: %w", page, err)
	}

	var ann PageAnnotation
	if err := json.Unmarshal(data, &ann); err != nil {
		// A corrupt file degrades to a flagged record, not a crash; the page
		// is excluded from retrieval but the run continues.
		return PageAnnotation{
			Page:        page,
			ParseFailed: true,
			RawReply:    string(data),
		}, nil
	}
	return ann, nil
}

// LoadAll reads every persisted page annotation, ordered by page number.
// Unparseable files come back flagged ParseFailed rather than failing the
// whole load.
func (s *Store) LoadAll() ([]PageAnnotation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotation directory: %w", err)
	}

	var pages []PageAnnotation
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var page int
		if _, err := fmt.Sscanf(entry.Name(), "page_%d.json", &page); err != nil {
			continue
		}
		ann, err := s.Load(page)
		if err != nil {
			return nil, err
		}
		pages = append(pages, ann)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
	return pages, nil
}

// HasFreshAnalysis reports whether a page already carries a usable analysis
// for the given cache key. Manually edited records count as fresh no matter
// what the key says.
func (s *Store) HasFreshAnalysis(page int, cacheKey string) bool {
	ann, err := s.Load(page)
	if err != nil {
		return false
	}
	if ann.ManualOverride {
		return true
	}
	return !ann.ParseFailed && ann.CacheKey == cacheKey
}

// WriteSummary persists the run-level analysis summary.
func (s *Store) WriteSummary(sum Summary) error {
	sum.LastRunAt = sum.LastRunAt.Truncate(time.Second)
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, summaryFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// ReadSummary loads the run-level summary, or a zero summary if none exists.
func (s *Store) ReadSummary() (Summary, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, nil
		}
		return Summary{}, fmt.Errorf("failed to read summary: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return Summary{}, fmt.Errorf("failed to decode summary: %w", err)
	}
	return sum, nil
}
