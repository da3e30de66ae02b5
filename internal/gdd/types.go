// Package gdd holds the game design document domain: the guided questionnaire,
// the persona pipeline that turns answers into a document, and the stores that
// keep document sessions between turns.
package gdd

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound  = errors.New("gdd: session not found")
	ErrNoActiveQuestion = errors.New("gdd: no question has been asked yet")
	ErrNotFinished      = errors.New("gdd: document has not been generated")
)

// Step is the result of advancing a questionnaire. Done is set once the
// cursor has moved past the last question; Question is empty then.
type Step struct {
	Question string `json:"question,omitempty"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Done     bool   `json:"done"`
}

// Artifact is a handle to an exported document.
type Artifact struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	URL       string `json:"url,omitempty"`
}

// DocSession is the durable state of one guided document.
// Cursor is -1 until the first question is asked and len(Answers) once done.
type DocSession struct {
	ID         string     `json:"id"`
	Cursor     int        `json:"cursor"`
	Answers    [][]string `json:"answers"`
	Markdown   string     `json:"markdown,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewDocSession returns an empty session sized for total questions.
func NewDocSession(id string, total int) *DocSession {
	return &DocSession{
		ID:        id,
		Cursor:    -1,
		Answers:   make([][]string, total),
		CreatedAt: time.Now().UTC(),
	}
}

// Done reports whether every question has been asked.
func (s *DocSession) Done() bool { return s.Cursor >= len(s.Answers) }

// Finished reports whether a document was generated.
func (s *DocSession) Finished() bool { return s.Markdown != "" }
