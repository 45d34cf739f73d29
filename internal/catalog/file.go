package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileCatalog struct {
	Questions []Question `yaml:"questions"`
	ChoiceSet ChoiceSet  `yaml:"choice_set"`
}

// Load reads a YAML catalog file. An empty path yields the built-in catalog.
// Sections missing from the file fall back to the built-in values.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()

	var fc fileCatalog
	if err := yaml.NewDecoder(f).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	if len(fc.Questions) == 0 {
		fc.Questions = DefaultQuestions()
	}
	if len(fc.ChoiceSet.Choices) == 0 {
		fc.ChoiceSet = DefaultChoices()
	}
	return New(fc.Questions, fc.ChoiceSet)
}
