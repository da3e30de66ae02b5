package gdd

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
)

//go:embed questions.yaml
var questionsYAML []byte

var (
	questionsOnce sync.Once
	questions     []string
	questionsErr  error
)

// Questions returns the ordered questionnaire. The slice must not be modified.
func Questions() ([]string, error) {
	questionsOnce.Do(func() {
		questions, questionsErr = parseQuestions(questionsYAML)
	})
	return questions, questionsErr
}

func parseQuestions(data []byte) ([]string, error) {
	var doc struct {
		Questions []string `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gdd: parse questions: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("gdd: questionnaire is empty")
	}
	return doc.Questions, nil
}
