package rtc

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/gdd-voice/internal/agent"
)

const (
	writeWait  = 5 * time.Second
	closeGrace = time.Second
)

var errWriterClosed = errors.New("rtc: connection closed")

// connWriter is the only goroutine-safe way to write to a client socket.
// JSON events and PCM frames share the lock so the client sees them in call
// order.
type connWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ agent.Client = (*connWriter)(nil)

func newConnWriter(conn *websocket.Conn) *connWriter {
	return &connWriter{conn: conn}
}

func (w *connWriter) SendEvent(ev agent.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return w.write(websocket.TextMessage, b)
}

func (w *connWriter) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return w.write(websocket.BinaryMessage, pcm)
}

func (w *connWriter) write(mt int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errWriterClosed
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(mt, b)
}

// close sends a close frame and closes the socket. Safe to call twice.
func (w *connWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return w.conn.Close()
}
