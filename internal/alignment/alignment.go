// Package alignment maps text chapters to page ranges of the companion manga
// adaptation. The mapping is declarative and human-edited; it is loaded once
// per run and read-only afterwards. A chapter with no entry is the normal
// case, not an error: it simply means no visual retrieval for that chapter.
package alignment

import (
	"strings"
	"unicode"
)

// Entry is one chapter's declared correspondence in the source file.
type Entry struct {
	// Pages is the inclusive [start, end] page range in the manga.
	Pages [2]int `yaml:"pages,flow"`
	// Sections optionally names manga sub-sections (volume/act identifiers)
	// covered by this chapter.
	Sections []string `yaml:"sections,omitempty"`
	// Notes records known divergences between the two media for this chapter.
	Notes string `yaml:"notes,omitempty"`
}

// File is the on-disk shape of the alignment map.
type File struct {
	Chapters        map[string]Entry `yaml:"chapters"`
	DivergenceNotes []string         `yaml:"divergence_notes,omitempty"`
}

// Scope is the resolved alignment for one chapter.
type Scope struct {
	ChapterID string
	StartPage int
	EndPage   int
	Sections  []string
	Notes     string
}

// Map resolves chapter identifiers to scopes. Keys are normalized once at
// construction, so lookups tolerate the case and zero-padding inconsistencies
// common in upstream chapter naming (chapter_01 vs CHAPTER_1) without doing
// per-lookup variant probing.
type Map struct {
	scopes          map[string]Scope
	divergenceNotes []string
}

// NewMap builds a Map from a parsed alignment file. A nil file yields a
// valid empty map.
func NewMap(f *File) *Map {
	m := &Map{scopes: make(map[string]Scope)}
	if f == nil {
		return m
	}

	m.divergenceNotes = f.DivergenceNotes
	for id, e := range f.Chapters {
		m.scopes[canonicalKey(id)] = Scope{
			ChapterID: id,
			StartPage: e.Pages[0],
			EndPage:   e.Pages[1],
			Sections:  e.Sections,
			Notes:     e.Notes,
		}
	}
	return m
}

// Len reports how many chapters have alignment entries.
func (m *Map) Len() int {
	return len(m.scopes)
}

// DivergenceNotes returns the companion-level divergence notes.
func (m *Map) DivergenceNotes() []string {
	return m.divergenceNotes
}

// GetScope looks up a chapter's alignment. Returns nil when the chapter has
// no entry; callers must treat nil as "skip visual retrieval".
func (m *Map) GetScope(chapterID string) *Scope {
	if s, ok := m.scopes[canonicalKey(chapterID)]; ok {
		return &s
	}
	return nil
}

// GetPageRange returns the inclusive page range for a chapter, or ok=false
// when the chapter has no alignment entry.
func (m *Map) GetPageRange(chapterID string) (start, end int, ok bool) {
	s := m.GetScope(chapterID)
	if s == nil {
		return 0, 0, false
	}
	return s.StartPage, s.EndPage, true
}

// canonicalKey folds the identifier variants seen in upstream sources into
// one form: lowercase, with zero padding stripped from the trailing number.
// "CHAPTER_01", "chapter_01" and "chapter_1" all collapse to "chapter_1".
func canonicalKey(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))

	i := len(id)
	for i > 0 && unicode.IsDigit(rune(id[i-1])) {
		i--
	}
	if i == len(id) {
		return id
	}

	num := strings.TrimLeft(id[i:], "0")
	if num == "" {
		num = "0"
	}
	return id[:i] + num
}
