package tts

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DeepgramClient synthesizes one sentence per speak websocket. The SDK has
// no end-of-utterance marker for text input, so a request is complete once
// audio has stopped arriving for IdleWindow.
type DeepgramClient struct {
	apiKey string
	model  string

	IdleWindow time.Duration
	MaxWait    time.Duration
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &DeepgramClient{
		apiKey:     apiKey,
		model:      model,
		IdleWindow: 400 * time.Millisecond,
		MaxWait:    12 * time.Second,
	}
}

// StreamPCM streams linear16 audio at SampleRate for text.
func (d *DeepgramClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if err := d.speak(ctx, text, pcmCh); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (d *DeepgramClient) speak(ctx context.Context, text string, out chan<- []byte) error {
	if d.apiKey == "" {
		return errors.New("deepgram: API key missing")
	}
	if text == "" {
		return nil
	}

	sink := newDeepgramSink(ctx, out)
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, d.speakOptions(), sink)
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if !dg.Connect() {
		return errors.New("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		return fmt.Errorf("deepgram: flush: %w", err)
	}
	return sink.wait(d.IdleWindow, d.MaxWait)
}

// speakOptions requests raw linear16 at SampleRate.
func (d *DeepgramClient) speakOptions() *clientinterfaces.WSSpeakOptions {
	return &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: SampleRate,
	}
}

// deepgramSink receives SDK callbacks for one request.
type deepgramSink struct {
	ctx       context.Context
	out       chan<- []byte
	lastAudio atomic.Int64
	failed    chan error
}

func newDeepgramSink(ctx context.Context, out chan<- []byte) *deepgramSink {
	return &deepgramSink{ctx: ctx, out: out, failed: make(chan error, 1)}
}

// wait returns once audio went quiet for idle, on a remote error, or when
// nothing arrived within maxWait.
func (s *deepgramSink) wait(idle, maxWait time.Duration) error {
	tick := time.NewTicker(idle / 4)
	defer tick.Stop()
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case err := <-s.failed:
			return err
		case <-deadline.C:
			if s.lastAudio.Load() == 0 {
				return fmt.Errorf("deepgram: no audio within %s", maxWait)
			}
			return nil
		case <-tick.C:
			if last := s.lastAudio.Load(); last != 0 && time.Since(time.Unix(0, last)) > idle {
				return nil
			}
		}
	}
}

func (s *deepgramSink) Binary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s.lastAudio.Store(time.Now().UnixNano())
	select {
	case s.out <- append([]byte(nil), data...):
	case <-s.ctx.Done():
	}
	return nil
}

func (s *deepgramSink) Error(er *msginterfaces.ErrorResponse) error {
	if er == nil {
		return nil
	}
	select {
	case s.failed <- fmt.Errorf("deepgram: remote error %+v", *er):
	default:
	}
	return nil
}

func (s *deepgramSink) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *deepgramSink) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *deepgramSink) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *deepgramSink) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *deepgramSink) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *deepgramSink) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *deepgramSink) UnhandledEvent([]byte) error                    { return nil }
