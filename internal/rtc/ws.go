// Package rtc is the client transport: one websocket per browser session
// carrying 16 kHz PCM both ways plus JSON control and event messages.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chadiek/gdd-voice/internal/agent"
)

const maxFrameBytes = 1 << 20

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for demo use; restrict in production
		return true
	},
}

// controlMessage is an inbound text frame.
// Types: "text", "stop_llm", "stop", "ping".
type controlMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Handler serves GET /ws/stream.
type Handler struct {
	ctrl          *agent.Controller
	newRecognizer func() agent.Recognizer
	log           *zap.Logger
}

// NewHandler builds a websocket handler. newRecognizer is called once per
// connection; it may be nil, in which case the session is text only.
func NewHandler(ctrl *agent.Controller, newRecognizer func() agent.Recognizer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ctrl: ctrl, newRecognizer: newRecognizer, log: logger}
}

// ServeWS upgrades the request and runs the session until the client leaves.
func (h *Handler) ServeWS(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return nil
	}
	h.serve(c.Request().Context(), conn)
	return nil
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameBytes)
	out := newConnWriter(conn)
	defer func() { _ = out.close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := h.ctrl.Open(ctx, out)
	id := sess.ID()
	log := h.log.With(zap.String("session_id", id))
	defer h.ctrl.Close(id)

	var rec agent.Recognizer
	if h.newRecognizer != nil {
		rec = h.newRecognizer()
		if err := rec.Connect(ctx); err != nil {
			log.Warn("recognizer connect failed, continuing text only", zap.Error(err))
			_ = rec.Close()
			rec = nil
		}
	}
	if rec != nil {
		defer func() { _ = rec.Close() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = out.close() })
	defer stop()

	g.Go(func() error { return h.readLoop(conn, out, id, rec, log) })
	if rec != nil {
		g.Go(func() error { return h.pumpRecognition(gctx, id, rec) })
	}

	err := g.Wait()
	switch {
	case err == nil, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		log.Info("client disconnected")
	case errors.Is(err, context.Canceled):
		log.Info("session cancelled")
	default:
		log.Info("client connection ended", zap.Error(err))
	}
}

// readLoop always returns a non-nil error so the group context is cancelled
// when the client goes away.
func (h *Handler) readLoop(conn *websocket.Conn, out *connWriter, id string, rec agent.Recognizer, log *zap.Logger) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		switch mt {
		case websocket.BinaryMessage:
			if rec == nil {
				continue
			}
			if err := rec.SendPCM16KLE(data); err != nil {
				log.Debug("dropping audio frame", zap.Error(err))
			}
		case websocket.TextMessage:
			h.handleControl(out, id, data, log)
		}
	}
}

func (h *Handler) handleControl(out *connWriter, id string, data []byte, log *zap.Logger) {
	var m controlMessage
	if err := json.Unmarshal(data, &m); err != nil {
		log.Debug("ignoring malformed control message", zap.Error(err))
		return
	}
	switch strings.ToLower(m.Type) {
	case "text":
		h.ctrl.HandleText(id, m.Text)
	case "stop_llm", "stop":
		h.ctrl.Stop(id)
	case "ping":
		_ = out.SendEvent(agent.Event{Type: agent.EventPong})
	default:
		log.Debug("unknown control message", zap.String("type", m.Type))
	}
}

// pumpRecognition forwards recognizer events to the controller. The
// recognizer goroutines never touch session state themselves.
func (h *Handler) pumpRecognition(ctx context.Context, id string, rec agent.Recognizer) error {
	events := rec.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				h.log.Warn("recognizer stopped", zap.String("session_id", id))
				return nil
			}
			h.ctrl.HandleRecognition(id, ev.Text, ev.IsFinal)
		}
	}
}
