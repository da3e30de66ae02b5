// Package agent is the real-time turn-taking engine: it turns recognition
// events and typed text into wizard steps or streamed spoken replies, and
// keeps at most one reply and one audio stream alive per session.
package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chadiek/gdd-voice/internal/barge"
	"github.com/chadiek/gdd-voice/internal/gdd"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Generator   Generator
	Synthesizer Synthesizer
	Documents   DocumentPipeline
	Logger      *zap.Logger
}

// Controller creates sessions and routes client input to them by id.
type Controller struct {
	deps     Deps
	cfg      TurnConfig
	log      *zap.Logger
	registry *Registry
}

func NewController(deps Deps, cfg TurnConfig, registry *Registry) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Controller{deps: deps, cfg: cfg, log: deps.Logger, registry: registry}
}

func (c *Controller) Registry() *Registry { return c.registry }

// Open creates and registers a session bound to ctx and client.
func (c *Controller) Open(ctx context.Context, client Client) *Session {
	id := uuid.NewString()
	sctx, cancel := context.WithCancel(ctx)
	logger := c.log.With(zap.String("session_id", id))
	s := &Session{
		id:       id,
		ctx:      sctx,
		cancel:   cancel,
		log:      logger,
		client:   client,
		gen:      c.deps.Generator,
		cfg:      c.cfg,
		wizard:   NewWizard(c.deps.Documents, c.cfg.DocTimeout, c.cfg.FinishTimeout),
		history:  newHistory(c.cfg.HistoryTurns),
		detector: barge.NewDetector(barge.DefaultConfig()),
		turns:    make(chan turnInput, 8),
		loopDone: make(chan struct{}),
	}
	s.playback = NewPlayback(sctx, client, c.deps.Synthesizer, c.cfg.Playback, logger, s.detector)
	c.registry.add(s)
	go s.loop()
	logger.Info("session opened")
	return s
}

// Close tears down the session and forgets it.
func (c *Controller) Close(id string) { c.registry.Remove(id) }

func (c *Controller) HandleRecognition(id, text string, isFinal bool) {
	if s := c.registry.Get(id); s != nil {
		s.OnRecognition(text, isFinal)
	}
}

func (c *Controller) HandleText(id, text string) {
	if s := c.registry.Get(id); s != nil {
		s.OnText(text)
	}
}

func (c *Controller) Stop(id string) {
	if s := c.registry.Get(id); s != nil {
		s.Stop()
	}
}

// handleTurn classifies one committed utterance and acts on it.
func (s *Session) handleTurn(in turnInput) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered from panic in turn", zap.Any("panic", r))
		}
	}()
	text := strings.TrimSpace(in.text)
	if text == "" {
		return
	}
	if s.isDuplicate(text) {
		s.log.Debug("duplicate utterance dropped", zap.String("text", text))
		return
	}
	intent := Classify(text, s.wizard.Active(), s.cfg.MinAnswerWords)
	if intent == IntentNoise {
		s.log.Debug("noise dropped", zap.String("text", text))
		return
	}
	s.log.Info("turn", zap.String("intent", intent.String()), zap.Bool("voice", in.voice), zap.String("text", text))
	s.send(Event{Type: EventFinal, Text: text})

	switch intent {
	case IntentActivate:
		s.activateWizard()
	case IntentAdvance:
		s.advanceWizard()
	case IntentFinish:
		s.finishWizard()
	case IntentExport:
		s.exportDocument()
	case IntentAnswer:
		s.answerWizard(text)
	default:
		s.chat(text)
	}
}

// interruptTurn cancels whatever is playing or generating before a mode change.
func (s *Session) interruptTurn() {
	s.Interrupt(s.busy())
}

func (s *Session) activateWizard() {
	s.interruptTurn()
	s.setMode(ModeWizard)
	id, step, err := s.wizard.Activate(s.ctx)
	if err != nil {
		s.log.Warn("wizard activation failed", zap.Error(err))
		s.setMode(ModeIdle)
		s.send(Event{Type: EventWizardError, Error: err.Error()})
		s.say(EventWizardNotice, noticeWizardFailed)
		return
	}
	s.send(Event{Type: EventGDDSessionID, SessionID: id})
	s.say(EventWizardNotice, noticeWizardStarted)
	s.presentStep(step)
}

func (s *Session) advanceWizard() {
	s.interruptTurn()
	step, err := s.wizard.Advance(s.ctx)
	if err != nil {
		s.log.Warn("wizard advance failed", zap.Error(err))
		s.send(Event{Type: EventWizardError, Error: err.Error()})
		return
	}
	s.presentStep(step)
}

func (s *Session) presentStep(step gdd.Step) {
	if step.Done {
		s.send(Event{Type: EventGDDDone, Total: step.Total})
		s.say(EventWizardNotice, noticeAllAnswered)
		return
	}
	s.send(Event{
		Type:     EventWizardQuestion,
		Question: step.Question,
		Index:    intPtr(step.Index),
		Total:    step.Total,
		Source:   SourceWizard,
	})
	s.playback.Enqueue(step.Question, SourceWizard)
}

func (s *Session) finishWizard() {
	s.interruptTurn()
	docID := s.wizard.DocSessionID()
	s.say(EventWizardNotice, noticeGenerating)
	md, err := s.wizard.Finish(s.ctx)
	s.setMode(ModeIdle)
	if err != nil {
		s.log.Warn("document generation failed", zap.Error(err))
		s.send(Event{Type: EventGDDError, Error: err.Error(), SessionID: docID})
		s.say(EventWizardNotice, noticeFinishFailed)
		return
	}
	s.send(Event{Type: EventGDDComplete, Markdown: md, SessionID: docID})
	s.say(EventWizardNotice, noticeReady)
}

func (s *Session) exportDocument() {
	a, err := s.wizard.Export(s.ctx)
	if err != nil {
		s.log.Warn("export failed", zap.Error(err))
		code := err.Error()
		if errors.Is(err, ErrNoDocument) {
			code = "no_session"
		}
		s.send(Event{Type: EventGDDExportReady, Error: code, SessionID: s.wizard.DocSessionID()})
		return
	}
	s.send(Event{Type: EventGDDExportReady, SessionID: a.SessionID, URL: a.URL})
}

func (s *Session) answerWizard(text string) {
	s.send(Event{Type: EventWizardAnswer, Text: text, Source: SourceWizard})
	if err := s.wizard.RecordAnswer(s.ctx, text); err != nil {
		s.log.Warn("record answer failed", zap.Error(err))
		s.send(Event{Type: EventWizardError, Error: err.Error()})
		return
	}
	s.scheduleCritique()
}

func (s *Session) chat(text string) {
	s.setMode(ModeChat)
	if !s.GenerationBusy() && s.AssistantSpeaking() {
		// a new request replaces the reply still being played
		s.Interrupt(true)
	}
	prompt := s.history.Prompt(text)
	ok := s.launchGeneration(prompt, SourceChat, genChat, nil, func(reply string) {
		s.history.Append(text, reply)
	})
	if !ok {
		s.log.Info("generation busy, utterance dropped", zap.String("text", text))
		s.send(Event{Type: EventLLMBusy, Text: noticeBusy})
	}
}
