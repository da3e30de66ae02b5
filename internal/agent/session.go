package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chadiek/gdd-voice/internal/barge"
)

// Mode governs how committed utterances are interpreted.
type Mode int

const (
	ModeIdle Mode = iota
	ModeWizard
	ModeChat
)

func (m Mode) String() string {
	switch m {
	case ModeWizard:
		return "wizard"
	case ModeChat:
		return "chat"
	default:
		return "idle"
	}
}

type genKind int

const (
	genNone genKind = iota
	genChat
	genCritique
)

type turnInput struct {
	text  string
	voice bool
}

// Session is the per-connection turn state: one playback queue, at most one
// generation in flight, the wizard, and the debounce and critique timers.
// Committed utterances are handled one at a time by the session's turn loop.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	client Client
	gen    Generator
	cfg    TurnConfig

	playback *Playback
	wizard   *Wizard
	history  *history
	detector *barge.Detector

	turns    chan turnInput
	loopDone chan struct{}

	stopRequested atomic.Bool

	mu             sync.Mutex
	mode           Mode
	generationBusy bool
	genCancel      context.CancelFunc
	genDone        chan struct{}
	genKind        genKind

	pendingText   string
	lastPartial   string
	debounceSeq   uint64
	debounceTimer *time.Timer

	lastKey string
	lastAt  time.Time

	critiqueSeq   uint64
	critiqueTimer *time.Timer
	nudgeCount    int

	closeOnce sync.Once
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) setMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// AssistantSpeaking reports whether reply audio is currently being played.
func (s *Session) AssistantSpeaking() bool { return s.playback.Speaking() }

// GenerationBusy reports whether a reply is being generated.
func (s *Session) GenerationBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generationBusy
}

func (s *Session) Wizard() *Wizard { return s.wizard }

func (s *Session) send(ev Event) {
	if err := s.client.SendEvent(ev); err != nil {
		s.log.Debug("send event failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// say shows text as an event of type t and queues it for speech.
func (s *Session) say(t EventType, text string) {
	s.send(Event{Type: t, Text: text, Source: SourceWizard})
	s.playback.Enqueue(text, SourceWizard)
}

// Interrupt stops the current turn: the stop flag is raised, the critique
// and generation are cancelled and awaited, and queued audio is dropped.
// When notify is set the client is told to halt local playback. It must not
// be called from the generation goroutine.
func (s *Session) Interrupt(notify bool) {
	s.stopRequested.Store(true)
	s.cancelCritique()
	s.stopGeneration()
	s.playback.Cancel()
	s.detector.Reset()
	if notify {
		s.send(Event{Type: EventStopAll})
	}
}

func (s *Session) stopGeneration() {
	s.mu.Lock()
	cancel, done := s.genCancel, s.genDone
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Session) busy() bool {
	return s.AssistantSpeaking() || s.GenerationBusy()
}

// OnRecognition handles one recognizer event. Partials are forwarded for
// display and may barge in; finals go through the debounce.
func (s *Session) OnRecognition(text string, isFinal bool) {
	text = strings.TrimSpace(text)
	if text == "" || s.ctx.Err() != nil {
		return
	}
	if !isFinal {
		s.send(Event{Type: EventPartial, Text: text})
		s.mu.Lock()
		changed := text != s.lastPartial
		s.lastPartial = text
		if changed && s.pendingText != "" {
			// still talking; push the pending commit back
			s.armDebounceLocked()
		}
		s.mu.Unlock()
		if s.detector.Meaningful(text) {
			if s.AssistantSpeaking() {
				s.log.Info("barge-in", zap.String("partial", text))
				s.Interrupt(true)
			} else {
				s.cancelCritique()
			}
		}
		return
	}
	s.cancelCritique()
	s.debounce(text)
}

// OnText handles typed input. It skips the debounce.
func (s *Session) OnText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.cancelCritique()
	s.submit(turnInput{text: text})
}

// Stop is an explicit user stop.
func (s *Session) Stop() {
	s.log.Info("stop requested")
	s.Interrupt(true)
}

func (s *Session) debounce(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.pendingText == "":
		s.pendingText = text
	case strings.HasPrefix(normalize(text), normalize(s.pendingText)):
		s.pendingText = text
	default:
		s.pendingText = s.pendingText + " " + text
	}
	s.armDebounceLocked()
}

// armDebounceLocked supersedes any pending timer. s.mu must be held.
func (s *Session) armDebounceLocked() {
	s.debounceSeq++
	seq := s.debounceSeq
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	delay := s.cfg.Debounce
	if looksIncomplete(s.pendingText) {
		delay = s.cfg.DebounceExtended
	}
	s.debounceTimer = time.AfterFunc(delay, func() { s.commitPending(seq) })
}

func (s *Session) commitPending(seq uint64) {
	s.mu.Lock()
	if seq != s.debounceSeq || s.pendingText == "" {
		s.mu.Unlock()
		return
	}
	text := s.pendingText
	s.pendingText = ""
	s.debounceTimer = nil
	s.mu.Unlock()
	// words of the committed utterance must not count as a later barge-in
	s.detector.Rebase()
	s.submit(turnInput{text: text, voice: true})
}

func (s *Session) submit(in turnInput) {
	select {
	case s.turns <- in:
	case <-s.ctx.Done():
	}
}

// isDuplicate reports whether text repeats the previous committed utterance
// within the dedup window, and records it otherwise.
func (s *Session) isDuplicate(text string) bool {
	key := normalize(text)
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.lastKey && now.Sub(s.lastAt) < s.cfg.DedupWindow {
		return true
	}
	s.lastKey, s.lastAt = key, now
	return false
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case in := <-s.turns:
			s.handleTurn(in)
		}
	}
}

// Close tears the session down; it is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.debounceSeq++
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.mu.Unlock()
		s.cancelCritique()
		s.cancel()
		s.stopGeneration()
		s.playback.Close()
		<-s.loopDone
		s.log.Info("session closed")
	})
}
