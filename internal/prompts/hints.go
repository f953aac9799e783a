package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

//go:embed hints.yaml
var defaultHints []byte

// Example is a worked question/SQL pair.
type Example struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
}

// Hints are the canonicalisation hints and worked examples fed to the
// query generator and corrector.
type Hints struct {
	Players  []string  `yaml:"players"`
	Examples []Example `yaml:"examples"`
}

// DefaultHints returns the hints compiled into the binary.
func DefaultHints() *Hints {
	h, err := ParseHints(defaultHints)
	if err != nil {
		panic(fmt.Sprintf("embedded hints.yaml: %v", err))
	}
	return h
}

// LoadHints reads hints from path, or returns the defaults when path is empty.
func LoadHints(path string) (*Hints, error) {
	if path == "" {
		return DefaultHints(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h, err := ParseHints(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

func ParseHints(b []byte) (*Hints, error) {
	var h Hints
	if err := yaml.Unmarshal(b, &h); err != nil {
		return nil, err
	}
	for i, ex := range h.Examples {
		if ex.Question == "" || ex.SQL == "" {
			return nil, fmt.Errorf("example %d needs both question and sql", i+1)
		}
	}
	return &h, nil
}
