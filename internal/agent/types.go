package agent

import (
	"context"

	"github.com/chadiek/gdd-voice/internal/gdd"
	"github.com/chadiek/gdd-voice/internal/transcript"
)

// Recognizer is the minimal interface for realtime STT. It accepts PCM 16kHz
// little-endian mono buffers and emits partial and final recognition events.
// Events is closed once the recognizer stops.
type Recognizer interface {
	Connect(ctx context.Context) error
	SendPCM16KLE(pcm []byte) error
	Events() <-chan transcript.Event
	Close() error
}

// Generator streams a reply token by token. The token channel is closed when
// the reply ends; the error channel carries at most one error and is closed
// no later than the token channel.
type Generator interface {
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// Synthesizer turns one sentence into PCM. It never fails: an empty result
// means the sentence is skipped.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) []byte
}

// DocumentPipeline persists questionnaire answers and builds the document.
type DocumentPipeline interface {
	StartDocumentSession(ctx context.Context) (string, error)
	RecordAnswer(ctx context.Context, sessionID, text string) error
	NextQuestion(ctx context.Context, sessionID string) (gdd.Step, error)
	FinishDocument(ctx context.Context, sessionID string) (string, error)
	ExportDocument(ctx context.Context, sessionID string) (gdd.Artifact, error)
}

// Client is the outbound side of one connection. Implementations must be
// safe for concurrent use and preserve call order on the wire.
type Client interface {
	SendEvent(ev Event) error
	SendAudio(pcm []byte) error
}
