package gdd

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"
)

//go:embed personas.yaml
var personasYAML []byte

// Persona is one stage of the document pipeline.
type Persona struct {
	Key         string         `yaml:"key"`
	Title       string         `yaml:"title"`
	Card        map[string]any `yaml:"card"`
	Instruction string         `yaml:"instruction"`
	Schema      map[string]any `yaml:"schema"`
	// Optional personas may fail without failing the pipeline.
	Optional bool `yaml:"optional"`
	// Markdown personas answer with {"markdown": "..."}.
	Markdown bool `yaml:"markdown"`

	resolved *jsonschema.Resolved
}

var (
	personasOnce sync.Once
	personas     []*Persona
	personasErr  error
)

// Personas returns the pipeline stages in execution order.
func Personas() ([]*Persona, error) {
	personasOnce.Do(func() {
		personas, personasErr = parsePersonas(personasYAML)
	})
	return personas, personasErr
}

func parsePersonas(data []byte) ([]*Persona, error) {
	var doc struct {
		Personas []*Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gdd: parse personas: %w", err)
	}
	for _, p := range doc.Personas {
		if p.Key == "" {
			return nil, fmt.Errorf("gdd: persona without key")
		}
		rs, err := resolveSchema(p.Schema)
		if err != nil {
			return nil, fmt.Errorf("gdd: persona %s schema: %w", p.Key, err)
		}
		p.resolved = rs
	}
	return doc.Personas, nil
}

// resolveSchema converts a YAML mapping into a resolved JSON schema.
func resolveSchema(raw map[string]any) (*jsonschema.Resolved, error) {
	if len(raw) == 0 {
		raw = map[string]any{"type": "object"}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}

// SystemPrompt renders the persona card as the system message.
func (p *Persona) SystemPrompt() string {
	card, _ := json.MarshalIndent(p.Card, "", "  ")
	return fmt.Sprintf("You are the %s on a game design team.\nPERSONA_CARD:\n%s", p.Title, card)
}
