package gemini

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompt is the model and system instruction used for one stream kind.
type Prompt struct {
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`
}

// Prompts holds the prompt for each stream kind.
type Prompts struct {
	Transcript Prompt `yaml:"transcript"`
	Summary    Prompt `yaml:"summary"`
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	p, err := ParsePrompts(defaultPrompts)
	if err != nil {
		panic(fmt.Sprintf("gemini: built-in prompts are invalid: %v", err))
	}
	return p
}

// LoadPrompts reads prompts from a YAML file. Fields missing from the file
// keep their built-in values. An empty path returns the built-in prompts.
func LoadPrompts(path string) (Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("failed to read prompts file: %w", err)
	}

	p := DefaultPrompts()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Prompts{}, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	if err := p.validate(); err != nil {
		return Prompts{}, err
	}
	return p, nil
}

// ParsePrompts parses a complete prompts document.
func ParsePrompts(data []byte) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Prompts{}, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if err := p.validate(); err != nil {
		return Prompts{}, err
	}
	return p, nil
}

func (p Prompts) validate() error {
	var errs []error
	if p.Transcript.Model == "" {
		errs = append(errs, errors.New("transcript.model is required"))
	}
	if p.Summary.Model == "" {
		errs = append(errs, errors.New("summary.model is required"))
	}
	return errors.Join(errs...)
}
