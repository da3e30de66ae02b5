// Package transcript adapts a streaming speech recognizer into a channel of
// recognition events.
package transcript

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultEndpoint is the AssemblyAI v3 streaming websocket.
const DefaultEndpoint = "wss://streaming.assemblyai.com/v3/ws"

// ErrNotConnected is returned when audio is sent before Connect or after Close.
var ErrNotConnected = errors.New("transcript: not connected")

// Event is one recognition result. Partials carry the full running transcript
// of the current turn; finals carry only the text not yet committed.
type Event struct {
	Text    string
	IsFinal bool
}

// Timing controls end-of-utterance detection.
type Timing struct {
	// Silence is the inactivity window before an utterance is considered complete.
	Silence time.Duration
	// Continuation is added to Silence when the last word suggests more is coming.
	Continuation time.Duration
	// Grace absorbs late ASR updates after the silence window closes.
	Grace time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Silence:      700 * time.Millisecond,
		Continuation: 1200 * time.Millisecond,
		Grace:        250 * time.Millisecond,
	}
}

// AssemblyAIService is a streaming transcription client. Its goroutines only
// ever publish on the Events channel.
type AssemblyAIService struct {
	apiKey   string
	endpoint string
	timing   Timing
	log      *zap.Logger

	conn      *websocket.Conn
	events    chan Event
	audioData chan []byte
	stopCh    chan struct{}
	mu        sync.RWMutex
	connected bool
	stopOnce  sync.Once
	writeMu   sync.Mutex

	emitMu       sync.RWMutex
	eventsClosed bool

	// utterance accumulation
	accMu                   sync.Mutex
	latestFullTranscript    string
	committedFullTranscript string
	lastUpdateTime          time.Time
	silenceTimer            *time.Timer
	// last time non-silent voice energy was seen in the incoming PCM
	lastVoiceTime time.Time
}

type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	TurnFormatted bool   `json:"turn_is_formatted"`
	EndOfTurn     bool   `json:"end_of_turn"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Option customizes an AssemblyAIService.
type Option func(*AssemblyAIService)

// WithEndpoint points the client at another websocket URL.
func WithEndpoint(u string) Option { return func(s *AssemblyAIService) { s.endpoint = u } }

// WithTiming overrides end-of-utterance timing.
func WithTiming(t Timing) Option { return func(s *AssemblyAIService) { s.timing = t } }

// NewAssemblyAIService creates a new transcription service.
func NewAssemblyAIService(apiKey string, logger *zap.Logger, opts ...Option) *AssemblyAIService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AssemblyAIService{
		apiKey:    apiKey,
		endpoint:  DefaultEndpoint,
		timing:    DefaultTiming(),
		log:       logger,
		events:    make(chan Event, 100),
		audioData: make(chan []byte, 1000),
		stopCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Events returns the recognition stream. It is closed when the upstream
// connection ends or Close is called.
func (s *AssemblyAIService) Events() <-chan Event { return s.events }

// Connect dials the streaming endpoint and starts the reader and writer.
func (s *AssemblyAIService) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("transcript: AssemblyAI API key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := s.endpoint + "?" + params.Encode()

	headers := http.Header{"Authorization": {s.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			s.log.Warn("assemblyai handshake rejected", zap.Int("status", resp.StatusCode))
		}
		return fmt.Errorf("transcript: connect to AssemblyAI: %w", err)
	}

	s.conn = conn
	s.connected = true
	now := time.Now()
	s.accMu.Lock()
	s.lastUpdateTime = now
	s.lastVoiceTime = now
	s.accMu.Unlock()

	go s.handleMessages(conn)
	go s.sendAudioData(conn)

	s.log.Debug("assemblyai connected")
	return nil
}

// SendPCM16KLE queues 16 kHz s16le mono audio. Audio is dropped when the
// outbound buffer is full.
func (s *AssemblyAIService) SendPCM16KLE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.detectVoiceActivity(pcm)
	select {
	case s.audioData <- pcm:
	default:
		s.log.Debug("audio buffer full, dropping packet")
	}
	return nil
}

// detectVoiceActivity updates lastVoiceTime if the buffer carries voice energy.
func (s *AssemblyAIService) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 1
	if len(pcm) > 3200 {
		step = 2
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	const voiceRMS = 250.0
	if math.Sqrt(sumSquares/float64(count)) >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// RecentlyDetectedVoice reports whether voice energy was seen within window.
func (s *AssemblyAIService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Close flushes any uncommitted text as a final event, terminates the
// upstream session and closes the Events channel. Safe to call more than once.
func (s *AssemblyAIService) Close() error {
	s.mu.Lock()
	conn := s.conn
	wasConnected := s.connected
	s.connected = false
	s.conn = nil
	s.mu.Unlock()

	if wasConnected {
		s.flushPendingDelta()
	}
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.accMu.Lock()
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.accMu.Unlock()

	var err error
	if conn != nil {
		s.writeMu.Lock()
		werr := conn.WriteJSON(map[string]string{"type": "Terminate"})
		s.writeMu.Unlock()
		if werr != nil {
			s.log.Debug("assemblyai terminate failed", zap.Error(werr))
		}
		err = conn.Close()
	}
	s.closeEvents()
	return err
}

func (s *AssemblyAIService) closeEvents() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
}

// emit delivers ev. Partials never block; finals wait until delivered,
// the service stops, or wait elapses.
func (s *AssemblyAIService) emit(ev Event, wait time.Duration) {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.eventsClosed {
		return
	}
	if !ev.IsFinal {
		select {
		case s.events <- ev:
		default:
		}
		return
	}
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case s.events <- ev:
	case <-s.stopCh:
	case <-timeout:
		s.log.Warn("final transcript not delivered", zap.String("text", ev.Text))
	}
}

func (s *AssemblyAIService) handleMessages(conn *websocket.Conn) {
	defer s.closeEvents()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered from panic in assemblyai reader", zap.Any("panic", r))
		}
	}()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				s.log.Warn("assemblyai read failed", zap.Error(err))
				s.flushPendingDelta()
			}
			return
		}
		s.processMessage(message)
	}
}

func (s *AssemblyAIService) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		s.log.Warn("assemblyai message not json", zap.Error(err))
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Info("assemblyai session began", zap.String("id", msg.ID),
				zap.Time("expires_at", time.Unix(msg.ExpiresAt, 0)))
		}
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Warn("assemblyai bad turn message", zap.Error(err))
			return
		}
		if msg.Transcript == "" {
			return
		}
		s.emit(Event{Text: msg.Transcript}, 0)
		s.accMu.Lock()
		s.latestFullTranscript = msg.Transcript
		s.lastUpdateTime = time.Now()
		s.armTimerLocked(s.timing.Silence)
		s.accMu.Unlock()
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Info("assemblyai session terminated",
				zap.Float64("audio_seconds", msg.AudioDurationSeconds),
				zap.Float64("session_seconds", msg.SessionDurationSeconds))
		}
		s.flushPendingDelta()
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			s.log.Warn("assemblyai error", zap.String("error", msg.Error))
		}
	default:
		s.log.Debug("assemblyai unknown message", zap.String("type", base.Type))
	}
}

// armTimerLocked (re)starts the silence timer. accMu must be held.
func (s *AssemblyAIService) armTimerLocked(d time.Duration) {
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	if s.silenceTimer == nil {
		s.silenceTimer = time.AfterFunc(d, s.finalizeDueToSilence)
		return
	}
	s.silenceTimer.Stop()
	s.silenceTimer.Reset(d)
}

func (s *AssemblyAIService) threshold(text string) time.Duration {
	t := s.timing.Silence
	if ContinuationLikely(text) {
		t += s.timing.Continuation
	}
	return t
}

// finalizeDueToSilence emits the uncommitted delta once both the transcript
// and the audio energy have been quiet for the threshold.
func (s *AssemblyAIService) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	now := time.Now()
	threshold := s.threshold(s.latestFullTranscript)
	sinceText := now.Sub(s.lastUpdateTime)
	sinceVoice := now.Sub(s.lastVoiceTime)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold - sinceText
		if rem := threshold - sinceVoice; rem > wait {
			wait = rem
		}
		s.armTimerLocked(wait)
		s.accMu.Unlock()
		return
	}
	lastUpdateAt := s.lastUpdateTime
	s.accMu.Unlock()

	select {
	case <-s.stopCh:
		return
	case <-time.After(s.timing.Grace):
	}

	s.accMu.Lock()
	if s.lastUpdateTime.After(lastUpdateAt) {
		// late update during grace
		s.armTimerLocked(s.threshold(s.latestFullTranscript) - time.Since(s.lastUpdateTime))
		s.accMu.Unlock()
		return
	}
	delta := s.commitLocked()
	s.accMu.Unlock()

	if delta == "" {
		return
	}
	s.emit(Event{Text: delta, IsFinal: true}, 0)
}

// commitLocked marks the latest transcript as committed and returns the new
// text since the previous commit. accMu must be held.
func (s *AssemblyAIService) commitLocked() string {
	latest := s.latestFullTranscript
	base := s.committedFullTranscript
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == strings.TrimSpace(latest) && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	s.committedFullTranscript = latest
	return delta
}

// flushPendingDelta sends any remaining uncommitted transcript as a final.
func (s *AssemblyAIService) flushPendingDelta() {
	s.accMu.Lock()
	delta := s.commitLocked()
	s.accMu.Unlock()
	if delta == "" {
		return
	}
	s.emit(Event{Text: delta, IsFinal: true}, 200*time.Millisecond)
}

// ContinuationLikely reports whether the last word of text suggests the
// speaker has more to say (conjunctions, prepositions, fillers).
func ContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// subordinating conjunctions
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"then": {}, "that": {}, "which": {},
	// fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {}, "er": {}, "hmm": {},
	// awkward sentence endings
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
	"the": {}, "a": {}, "an": {},
}

func (s *AssemblyAIService) sendAudioData(conn *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered from panic in assemblyai writer", zap.Any("panic", r))
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audioData:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				s.log.Warn("assemblyai audio write failed", zap.Error(err))
				return
			}
		}
	}
}
