package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PlaybackConfig paces audio delivery to roughly real time.
type PlaybackConfig struct {
	// BytesPerSecond of the PCM stream (16 kHz * 2 bytes).
	BytesPerSecond int
	// MinPad and MaxPad bound the silence added after each sentence.
	MinPad time.Duration
	MaxPad time.Duration
}

func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{BytesPerSecond: 16000 * 2, MinPad: 20 * time.Millisecond, MaxPad: 80 * time.Millisecond}
}

// pace returns how long to wait after sending audio for text.
func (c PlaybackConfig) pace(audioLen int, text string) time.Duration {
	var d time.Duration
	if c.BytesPerSecond > 0 {
		d = time.Duration(audioLen) * time.Second / time.Duration(c.BytesPerSecond)
	}
	pad := c.MinPad + time.Duration(len(strings.Fields(text)))*c.MinPad/10
	if pad > c.MaxPad {
		pad = c.MaxPad
	}
	return d + pad
}

// SpeechObserver is told what the worker plays: each sentence right before
// its audio goes out, and the end of a segment that drained normally.
type SpeechObserver interface {
	NotifySpoken(text string)
	ClearSpoken()
}

type nopObserver struct{}

func (nopObserver) NotifySpoken(string) {}
func (nopObserver) ClearSpoken()        {}

type queuedSentence struct {
	text   string
	source Source
	// audio receives exactly one value from the synthesis goroutine.
	audio chan []byte
}

// Playback is one session's ordered speech queue and its single worker.
// Synthesis for every queued sentence starts at enqueue time; the worker
// plays them strictly in enqueue order.
type Playback struct {
	client Client
	synth  Synthesizer
	cfg    PlaybackConfig
	log    *zap.Logger
	observer SpeechObserver

	parent   context.Context
	speaking atomic.Bool

	mu         sync.Mutex
	queue      []*queuedSentence
	turnCtx    context.Context
	turnCancel context.CancelFunc
	running    bool
	done       chan struct{}
	closed     bool
}

func NewPlayback(ctx context.Context, client Client, synth Synthesizer, cfg PlaybackConfig, logger *zap.Logger, observer SpeechObserver) *Playback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Playback{client: client, synth: synth, cfg: cfg, log: logger, observer: observer, parent: ctx}
}

// Speaking reports whether audio for the current turn is being delivered.
func (p *Playback) Speaking() bool { return p.speaking.Load() }

// Enqueue appends a sentence, starts synthesizing it right away and starts
// the worker if it is not running.
func (p *Playback) Enqueue(text string, source Source) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.mu.Lock()
	// a cancelled worker must be gone before a new turn starts
	for p.running && p.turnCtx.Err() != nil {
		done := p.done
		p.mu.Unlock()
		<-done
		p.mu.Lock()
	}
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.turnCtx == nil || p.turnCtx.Err() != nil {
		p.turnCtx, p.turnCancel = context.WithCancel(p.parent)
	}
	ctx := p.turnCtx
	item := &queuedSentence{text: text, source: source, audio: make(chan []byte, 1)}
	go func() { item.audio <- p.synth.Synthesize(ctx, text) }()
	p.queue = append(p.queue, item)
	if !p.running {
		p.running = true
		p.done = make(chan struct{})
		go p.run(ctx, p.done)
	}
	p.mu.Unlock()
}

func (p *Playback) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		p.mu.Lock()
		if ctx.Err() != nil {
			p.running = false
			p.mu.Unlock()
			return
		}
		if len(p.queue) == 0 {
			p.running = false
			p.speaking.Store(false)
			p.observer.ClearSpoken()
			if err := p.client.SendEvent(Event{Type: EventVoiceDone}); err != nil {
				p.log.Debug("send voice_done failed", zap.Error(err))
			}
			p.mu.Unlock()
			return
		}
		item := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		var audio []byte
		select {
		case audio = <-item.audio:
		case <-ctx.Done():
			continue
		}

		// checked under the same lock Cancel takes, so nothing from a
		// cancelled turn reaches the client after Cancel returns
		p.mu.Lock()
		if ctx.Err() != nil {
			p.mu.Unlock()
			continue
		}
		p.speaking.Store(true)
		p.observer.NotifySpoken(item.text)
		_ = p.client.SendEvent(Event{Type: EventSentenceStart, Text: item.text, Source: item.source})
		if len(audio) > 0 {
			if err := p.client.SendAudio(audio); err != nil {
				p.log.Debug("send audio failed", zap.Error(err))
			}
		}
		p.mu.Unlock()

		wait := p.cfg.pace(len(audio), item.text)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
}

// Cancel aborts the current turn: outstanding synthesis is cancelled, queued
// sentences are dropped and the worker has exited when Cancel returns. Safe
// to call when nothing is playing.
func (p *Playback) Cancel() {
	p.mu.Lock()
	if p.turnCancel != nil {
		p.turnCancel()
	}
	p.queue = nil
	running, done := p.running, p.done
	p.speaking.Store(false)
	p.mu.Unlock()
	if running && done != nil {
		<-done
	}
}

// Close cancels playback for good; later Enqueue calls are ignored.
func (p *Playback) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Cancel()
}

// Pending returns the number of queued sentences not yet played.
func (p *Playback) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
