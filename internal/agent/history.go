package agent

import (
	"strings"
	"sync"
)

type convTurn struct {
	Role string // "USER" or "ASSISTANT"
	Text string
}

// history keeps the recent chat exchanges for prompting.
type history struct {
	mu    sync.Mutex
	turns []convTurn
	max   int
}

func newHistory(max int) *history {
	if max <= 0 {
		max = 12
	}
	return &history{max: max}
}

// Prompt formats previous turns plus the latest user text with [USER] and
// [ASSISTANT] labels; the last line is always the user.
func (h *history) Prompt(latestUser string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	for _, t := range h.turns {
		b.WriteString("[")
		b.WriteString(t.Role)
		b.WriteString("] ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString("[USER] ")
	b.WriteString(latestUser)
	return b.String()
}

// Append records one exchange, dropping the oldest turns past the cap.
func (h *history) Append(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, convTurn{Role: "USER", Text: user})
	if strings.TrimSpace(assistant) != "" {
		h.turns = append(h.turns, convTurn{Role: "ASSISTANT", Text: strings.TrimSpace(assistant)})
	}
	if over := len(h.turns) - h.max; over > 0 {
		h.turns = append([]convTurn(nil), h.turns[over:]...)
	}
}

func (h *history) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
