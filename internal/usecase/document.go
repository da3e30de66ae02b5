package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chadiek/gdd-voice/internal/gdd"
)

// ArtifactStore uploads exported documents and returns a download URL.
type ArtifactStore interface {
	Upload(ctx context.Context, objectKey, contentType string, body []byte) (string, error)
}

// DocumentGenerator turns questionnaire inputs into a document.
type DocumentGenerator interface {
	Run(ctx context.Context, concept string, answers map[string]string) (*gdd.Result, error)
}

// DocumentService is the in-process document pipeline: it keeps guided
// document sessions in a store, walks the questionnaire and runs the persona
// chain on finish.
type DocumentService struct {
	store     gdd.Store
	generator DocumentGenerator
	artifacts ArtifactStore
	questions []string
	log       *zap.Logger
	now       func() time.Time

	// mu serializes read-modify-write cycles on the store.
	mu sync.Mutex
}

func NewDocumentService(store gdd.Store, generator DocumentGenerator, artifacts ArtifactStore, logger *zap.Logger) (*DocumentService, error) {
	qs, err := gdd.Questions()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		store:     store,
		generator: generator,
		artifacts: artifacts,
		questions: qs,
		log:       logger,
		now:       time.Now,
	}, nil
}

// Questions returns the questionnaire.
func (s *DocumentService) Questions() []string { return s.questions }

// Get returns a snapshot of a document session.
func (s *DocumentService) Get(ctx context.Context, sessionID string) (*gdd.DocSession, error) {
	return s.store.Get(ctx, sessionID)
}

func (s *DocumentService) StartDocumentSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.store.Put(ctx, gdd.NewDocSession(id, len(s.questions))); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	s.log.Info("document session started", zap.String("doc_session_id", id))
	return id, nil
}

// RecordAnswer appends text to the answer of the question currently asked.
func (s *DocumentService) RecordAnswer(ctx context.Context, sessionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if ds.Cursor < 0 || ds.Done() {
		return gdd.ErrNoActiveQuestion
	}
	ds.Answers[ds.Cursor] = append(ds.Answers[ds.Cursor], text)
	return s.store.Put(ctx, ds)
}

// NextQuestion moves to the next question. Once past the last question it
// keeps returning a done step.
func (s *DocumentService) NextQuestion(ctx context.Context, sessionID string) (gdd.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return gdd.Step{}, err
	}
	total := len(ds.Answers)
	if !ds.Done() {
		ds.Cursor++
		if err := s.store.Put(ctx, ds); err != nil {
			return gdd.Step{}, err
		}
	}
	if ds.Done() {
		return gdd.Step{Index: total, Total: total, Done: true}, nil
	}
	return gdd.Step{Question: s.questionAt(ds.Cursor), Index: ds.Cursor, Total: total}, nil
}

func (s *DocumentService) questionAt(i int) string {
	if i < 0 || i >= len(s.questions) {
		return ""
	}
	return s.questions[i]
}

// FinishDocument runs the persona chain over the collected answers and
// stores the resulting markdown.
func (s *DocumentService) FinishDocument(ctx context.Context, sessionID string) (string, error) {
	ds, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	qs := s.questions
	if len(qs) > len(ds.Answers) {
		qs = qs[:len(ds.Answers)]
	}
	concept := gdd.BuildConcept(qs, ds.Answers)

	start := s.now()
	res, err := s.generator.Run(ctx, concept, gdd.AnswerMap(qs, ds.Answers))
	if err != nil {
		s.log.Error("document generation failed", zap.String("doc_session_id", sessionID), zap.Error(err))
		return "", err
	}
	s.log.Info("document generated", zap.String("doc_session_id", sessionID), zap.Duration("took", s.now().Sub(start)))

	s.mu.Lock()
	defer s.mu.Unlock()
	latest, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	finished := s.now().UTC()
	latest.Markdown = res.Markdown
	latest.FinishedAt = &finished
	if err := s.store.Put(ctx, latest); err != nil {
		return "", err
	}
	return res.Markdown, nil
}

// ExportDocument uploads the generated document and returns its handle.
func (s *DocumentService) ExportDocument(ctx context.Context, sessionID string) (gdd.Artifact, error) {
	ds, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return gdd.Artifact{}, err
	}
	if !ds.Finished() {
		return gdd.Artifact{}, gdd.ErrNotFinished
	}
	generated := s.now()
	if ds.FinishedAt != nil {
		generated = *ds.FinishedAt
	}
	key := "gdd/" + sessionID + ".md"
	url, err := s.artifacts.Upload(ctx, key, "text/markdown; charset=utf-8", gdd.RenderExport(sessionID, ds.Markdown, generated))
	if err != nil {
		return gdd.Artifact{}, fmt.Errorf("upload export: %w", err)
	}
	return gdd.Artifact{SessionID: sessionID, Key: key, URL: url}, nil
}
