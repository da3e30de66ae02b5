package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/gdd-voice/internal/gdd"
)

var (
	ErrWizardInactive = errors.New("agent: wizard is not active")
	ErrNoDocument     = errors.New("agent: no document session")
)

// Wizard is the local side of the guided questionnaire: the active flag, the
// stage pointer and the answer fragments for the current question. Durable
// state lives in the DocumentPipeline.
type Wizard struct {
	docs          DocumentPipeline
	timeout       time.Duration
	finishTimeout time.Duration

	mu        sync.Mutex
	active    bool
	stage     int
	total     int
	done      bool
	docID     string
	question  string
	fragments []string
}

func NewWizard(docs DocumentPipeline, timeout, finishTimeout time.Duration) *Wizard {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if finishTimeout <= 0 {
		finishTimeout = 20 * time.Second
	}
	return &Wizard{docs: docs, timeout: timeout, finishTimeout: finishTimeout}
}

// Activate starts a fresh document session and fetches the first question.
// Any previous wizard state is discarded.
func (w *Wizard) Activate(ctx context.Context) (string, gdd.Step, error) {
	w.reset()
	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	id, err := w.docs.StartDocumentSession(cctx)
	if err != nil {
		return "", gdd.Step{}, fmt.Errorf("start document session: %w", err)
	}
	w.mu.Lock()
	w.docID = id
	w.active = true
	w.mu.Unlock()

	step, err := w.Advance(ctx)
	if err != nil {
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
		return id, gdd.Step{}, err
	}
	return id, step, nil
}

// Advance moves to the next question. Past the last question it returns a
// done step, and keeps returning it without calling the pipeline.
func (w *Wizard) Advance(ctx context.Context) (gdd.Step, error) {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return gdd.Step{}, ErrWizardInactive
	}
	if w.done {
		step := gdd.Step{Index: w.total, Total: w.total, Done: true}
		w.mu.Unlock()
		return step, nil
	}
	id := w.docID
	w.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	step, err := w.docs.NextQuestion(cctx, id)
	if err != nil {
		return gdd.Step{}, fmt.Errorf("next question: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.fragments = nil
	w.total = step.Total
	if step.Done {
		w.done = true
		w.stage = step.Total
		w.question = ""
		return gdd.Step{Index: step.Total, Total: step.Total, Done: true}, nil
	}
	w.stage = step.Index
	w.question = step.Question
	return step, nil
}

// RecordAnswer buffers text for the current question and persists it.
func (w *Wizard) RecordAnswer(ctx context.Context, text string) error {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return ErrWizardInactive
	}
	w.fragments = append(w.fragments, strings.TrimSpace(text))
	id := w.docID
	w.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.docs.RecordAnswer(cctx, id, text); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// Finish generates the document. The wizard is deactivated whatever the
// outcome; the document id is kept for export.
func (w *Wizard) Finish(ctx context.Context) (string, error) {
	w.mu.Lock()
	active, id := w.active, w.docID
	w.active = false
	w.fragments = nil
	w.mu.Unlock()
	if !active {
		return "", ErrWizardInactive
	}

	cctx, cancel := context.WithTimeout(ctx, w.finishTimeout)
	defer cancel()
	md, err := w.docs.FinishDocument(cctx, id)
	if err != nil {
		return "", fmt.Errorf("finish document: %w", err)
	}
	return md, nil
}

// Export asks the pipeline for the exported artifact of the latest document.
func (w *Wizard) Export(ctx context.Context) (gdd.Artifact, error) {
	id := w.DocSessionID()
	if id == "" {
		return gdd.Artifact{}, ErrNoDocument
	}
	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	a, err := w.docs.ExportDocument(cctx, id)
	if err != nil {
		return gdd.Artifact{}, fmt.Errorf("export document: %w", err)
	}
	return a, nil
}

func (w *Wizard) reset() {
	w.mu.Lock()
	w.active = false
	w.stage = 0
	w.total = 0
	w.done = false
	w.docID = ""
	w.question = ""
	w.fragments = nil
	w.mu.Unlock()
}

func (w *Wizard) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Stage is the index of the current question, or the total once done.
func (w *Wizard) Stage() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

func (w *Wizard) Question() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.question
}

// Answer is the buffered answer for the current question.
func (w *Wizard) Answer() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.fragments, " ")
}

func (w *Wizard) DocSessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.docID
}
