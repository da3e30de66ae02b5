package gdd

import (
	"fmt"
	"strings"
	"time"
)

const noAnswer = "(No answer provided)"

// BuildConcept renders the questionnaire inputs handed to the persona chain.
// Questions without an answer are filled with a placeholder.
func BuildConcept(questions []string, answers [][]string) string {
	var b strings.Builder
	b.WriteString("Guided GDD inputs:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n   Answer: %s\n", i+1, q, answerText(answers, i))
	}
	return b.String()
}

// AnswerMap keys each answer by its question.
func AnswerMap(questions []string, answers [][]string) map[string]string {
	m := make(map[string]string, len(questions))
	for i, q := range questions {
		m[q] = answerText(answers, i)
	}
	return m
}

func answerText(answers [][]string, i int) string {
	if i >= len(answers) {
		return noAnswer
	}
	joined := strings.TrimSpace(strings.Join(answers[i], " "))
	if joined == "" {
		return noAnswer
	}
	return joined
}

// RenderExport builds the exported document body.
func RenderExport(sessionID, markdown string, generatedAt time.Time) []byte {
	var b strings.Builder
	md := strings.TrimSpace(markdown)
	if !strings.HasPrefix(md, "#") {
		b.WriteString("# Game Design Document\n\n")
	}
	b.WriteString(md)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "_Session %s, generated %s_\n", sessionID, generatedAt.UTC().Format(time.RFC3339))
	return []byte(b.String())
}
