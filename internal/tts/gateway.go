// Package tts turns sentences into raw speech audio.
package tts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Output format of every backend: 16 kHz, 16-bit little-endian, mono.
const (
	SampleRate     = 16000
	BytesPerSample = 2
)

// ErrSynthesis marks a failed upstream synthesis.
var ErrSynthesis = errors.New("tts: synthesis failed")

// Streamer is a speech backend.
type Streamer interface {
	StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Gateway wraps a backend as a one-shot call that never fails: errors are
// logged and turned into empty audio so one bad sentence cannot stall playback.
// It holds no per-call state and is safe for concurrent use.
type Gateway struct {
	backend Streamer
	log     *zap.Logger
}

func NewGateway(backend Streamer, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{backend: backend, log: logger}
}

// Synthesize returns PCM for text, or nil when there is nothing to play.
func (g *Gateway) Synthesize(ctx context.Context, text string) []byte {
	clean := CleanForSpeech(text)
	if clean == "" {
		return nil
	}
	audio, err := g.collect(ctx, clean)
	if err != nil {
		if ctx.Err() == nil {
			g.log.Warn("synthesis failed, skipping sentence", zap.String("text", clean), zap.Error(err))
		}
		return nil
	}
	return audio
}

func (g *Gateway) collect(ctx context.Context, text string) ([]byte, error) {
	pcmCh, errCh := g.backend.StreamPCM(ctx, text)
	var out []byte
	var streamErr error
	openPCM, openErr := true, true
	for openPCM || openErr {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				openPCM = false
				continue
			}
			out = append(out, b...)
		case e, ok := <-errCh:
			if !ok {
				openErr = false
				continue
			}
			if e != nil {
				streamErr = e
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if streamErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, streamErr)
	}
	// keep whole samples only
	if len(out)%BytesPerSample != 0 {
		out = out[:len(out)-len(out)%BytesPerSample]
	}
	return out, nil
}

var (
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdSymbols  = regexp.MustCompile("[#*_`~>|]+")
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanForSpeech strips markdown that would otherwise be read out loud.
func CleanForSpeech(text string) string {
	s := mdLink.ReplaceAllString(text, "$1")
	s = mdSymbols.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
