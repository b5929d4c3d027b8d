package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thangdam97/mtl-studio/internal/alignment"
)

// RunMeta is the human-edited run description: what book, which language,
// which characters exist, and optionally an embedded alignment mapping used
// when no standalone alignment file is present.
type RunMeta struct {
	Title          string `yaml:"title"`
	TargetLanguage string `yaml:"target_language"`

	// Characters lists known character names, used for speaker attribution.
	Characters []string `yaml:"characters,omitempty"`

	// StaticNotes are per-chapter keyframe notes, always injectable.
	StaticNotes map[string]string `yaml:"static_notes,omitempty"`

	// Alignment is the fallback chapter-to-page mapping.
	Alignment *alignment.File `yaml:"alignment,omitempty"`
}

// LoadRunMeta reads run metadata from a YAML file. A missing file is not an
// error: the zero RunMeta is a valid, empty configuration.
func LoadRunMeta(path string) (*RunMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RunMeta{}, nil
		}
		return nil, fmt.Errorf("failed to read run metadata: %w", err)
	}

	var meta RunMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata %q: %w", path, err)
	}
	return &meta, nil
}
