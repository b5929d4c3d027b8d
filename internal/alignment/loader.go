package alignment

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads the alignment map from its primary YAML file, falling back to
// a mapping embedded in run metadata when the file is absent. Neither source
// being present is valid: the result is an empty map and retrieval is simply
// disabled for every chapter.
type Loader struct {
	// Path is the primary alignment file. May be empty or nonexistent.
	Path string
	// Fallback is the alignment embedded in run metadata, if any.
	Fallback *File
}

// Load builds the Map. The boolean reports whether any mapping was loaded
// from either source. Load never fails on absence; a malformed primary file
// is logged and skipped in favor of the fallback.
func (l Loader) Load() (*Map, bool) {
	if l.Path != "" {
		f, err := loadFile(l.Path)
		switch {
		case err == nil:
			m := NewMap(f)
			return m, m.Len() > 0
		case os.IsNotExist(err):
			// Expected; fall through to the embedded mapping.
		default:
			slog.Warn("alignment file unreadable, using fallback",
				"path", l.Path, "error", err)
		}
	}

	if l.Fallback != nil {
		m := NewMap(l.Fallback)
		return m, m.Len() > 0
	}

	return NewMap(nil), false
}

func loadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("alignment: decode yaml: %w", err)
	}
	return &f, nil
}
