package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// launchGeneration starts one reply pipeline unless one is already in
// flight. The busy check and set happen under one lock; guard, when given,
// is evaluated under that lock too and can veto the launch.
func (s *Session) launchGeneration(prompt string, source Source, kind genKind, guard func() bool, onDone func(reply string)) bool {
	s.mu.Lock()
	if s.generationBusy || s.ctx.Err() != nil || (guard != nil && !guard()) {
		s.mu.Unlock()
		return false
	}
	s.generationBusy = true
	s.stopRequested.Store(false)
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GenerationTimeout)
	done := make(chan struct{})
	s.genCancel, s.genDone, s.genKind = cancel, done, kind
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("recovered from panic in generation", zap.Any("panic", r))
			}
			cancel()
			s.mu.Lock()
			s.generationBusy = false
			s.genCancel, s.genDone, s.genKind = nil, nil, genNone
			s.mu.Unlock()
			close(done)
		}()
		reply := s.streamReply(ctx, prompt, source)
		if onDone != nil {
			onDone(reply)
		}
	}()
	return true
}

// hardStop is an explicit stop or cancellation; nothing more gets spoken.
// A deadline is not a hard stop.
func (s *Session) hardStop(ctx context.Context) bool {
	return s.stopRequested.Load() || errors.Is(ctx.Err(), context.Canceled)
}

// streamReply forwards tokens to the client and queues each completed
// sentence for speech as soon as it is cut. It returns the generated text.
func (s *Session) streamReply(ctx context.Context, prompt string, source Source) string {
	tokCh, errCh := s.gen.Stream(ctx, prompt)
	var full strings.Builder
	pending := ""
	hard := false

loop:
	for {
		select {
		case tok, ok := <-tokCh:
			if !ok {
				break loop
			}
			if s.hardStop(ctx) {
				hard = true
				break loop
			}
			if tok == "" {
				continue
			}
			full.WriteString(tok)
			s.send(Event{Type: EventLLMStream, Token: tok, Source: source})
			var sentences []string
			sentences, pending = ExtractSentences(pending + tok)
			for _, sn := range sentences {
				s.speakSentence(sn, source)
			}
		case <-ctx.Done():
			hard = s.hardStop(ctx)
			break loop
		}
	}

	if !hard && s.hardStop(ctx) {
		hard = true
	}
	if !hard {
		var err error
		select {
		case e, ok := <-errCh:
			if ok {
				err = e
			}
		default:
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("generation failed", zap.Error(err))
			s.send(Event{Type: EventLLMStream, Token: "[LLM ERROR] " + err.Error(), Source: source})
		}
		if rest := strings.TrimSpace(pending); rest != "" && !s.hardStop(ctx) {
			s.speakSentence(rest, source)
		}
	}
	s.send(Event{Type: EventLLMDone, Source: source})
	return full.String()
}

func (s *Session) speakSentence(text string, source Source) {
	s.send(Event{Type: EventLLMSentence, Text: text, Source: source})
	s.playback.Enqueue(text, source)
}

// scheduleCritique arms the post-answer feedback after the grace delay.
func (s *Session) scheduleCritique() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.critiqueSeq++
	seq := s.critiqueSeq
	if s.critiqueTimer != nil {
		s.critiqueTimer.Stop()
	}
	s.critiqueTimer = time.AfterFunc(s.cfg.CritiqueGrace, func() { s.runCritique(seq) })
}

// cancelCritique drops a pending critique and stops one that is running.
func (s *Session) cancelCritique() {
	s.mu.Lock()
	s.critiqueSeq++
	if s.critiqueTimer != nil {
		s.critiqueTimer.Stop()
		s.critiqueTimer = nil
	}
	running := s.genKind == genCritique
	s.mu.Unlock()
	if running {
		s.stopGeneration()
		s.playback.Cancel()
	}
}

func (s *Session) runCritique(seq uint64) {
	current := func() bool { return seq == s.critiqueSeq && s.ctx.Err() == nil }
	s.mu.Lock()
	ok := current()
	if ok {
		s.critiqueTimer = nil
	}
	s.mu.Unlock()
	if !ok || !s.wizard.Active() {
		return
	}
	answer, question := s.wizard.Answer(), s.wizard.Question()
	if strings.TrimSpace(answer) == "" || question == "" {
		return
	}
	if !answerLooksComplete(answer, s.cfg.CritiqueMinWords) {
		s.mu.Lock()
		line := nudges[s.nudgeCount%len(nudges)]
		s.nudgeCount++
		s.mu.Unlock()
		s.say(EventWizardNotice, line)
		return
	}
	if !s.launchGeneration(critiquePrompt(question, answer), SourceWizard, genCritique, current, nil) {
		s.log.Debug("critique skipped")
	}
}
