package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chadiek/gdd-voice/internal/gdd"
)

// DocumentAPI is the document pipeline as seen by the REST layer.
type DocumentAPI interface {
	Questions() []string
	Get(ctx context.Context, sessionID string) (*gdd.DocSession, error)
	StartDocumentSession(ctx context.Context) (string, error)
	RecordAnswer(ctx context.Context, sessionID, text string) error
	NextQuestion(ctx context.Context, sessionID string) (gdd.Step, error)
	FinishDocument(ctx context.Context, sessionID string) (string, error)
	ExportDocument(ctx context.Context, sessionID string) (gdd.Artifact, error)
}

type Handlers struct {
	Docs DocumentAPI
	Log  *zap.Logger
}

func NewHandlers(docs DocumentAPI, logger *zap.Logger) Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Handlers{Docs: docs, Log: logger}
}

// Register mounts the document routes on g.
func (h Handlers) Register(g *echo.Group) {
	g.GET("/questions", h.questions)
	g.POST("/start", h.start)
	g.GET("/:id", h.get)
	g.POST("/:id/answer", h.answer)
	g.POST("/:id/next", h.next)
	g.POST("/:id/finish", h.finish)
	g.POST("/:id/export", h.export)
}

type answerRequest struct {
	Text string `json:"text"`
}

type sessionView struct {
	ID       string     `json:"id"`
	Index    int        `json:"index"`
	Total    int        `json:"total"`
	Done     bool       `json:"done"`
	Finished bool       `json:"finished"`
	Answers  [][]string `json:"answers"`
	Markdown string     `json:"markdown,omitempty"`
}

func (h Handlers) questions(c echo.Context) error {
	qs := h.Docs.Questions()
	return c.JSON(http.StatusOK, map[string]any{"questions": qs, "total": len(qs)})
}

func (h Handlers) start(c echo.Context) error {
	id, err := h.Docs.StartDocumentSession(c.Request().Context())
	if err != nil {
		return h.fail(c, "start", err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"session_id": id})
}

func (h Handlers) get(c echo.Context) error {
	ds, err := h.Docs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get", err)
	}
	return c.JSON(http.StatusOK, sessionView{
		ID:       ds.ID,
		Index:    ds.Cursor,
		Total:    len(ds.Answers),
		Done:     ds.Done(),
		Finished: ds.Finished(),
		Answers:  ds.Answers,
		Markdown: ds.Markdown,
	})
}

func (h Handlers) answer(c echo.Context) error {
	var req answerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "bad_request"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required", "code": "bad_request"})
	}
	if err := h.Docs.RecordAnswer(c.Request().Context(), c.Param("id"), text); err != nil {
		return h.fail(c, "answer", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h Handlers) next(c echo.Context) error {
	step, err := h.Docs.NextQuestion(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "next", err)
	}
	return c.JSON(http.StatusOK, step)
}

func (h Handlers) finish(c echo.Context) error {
	md, err := h.Docs.FinishDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "finish", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"markdown": md})
}

func (h Handlers) export(c echo.Context) error {
	art, err := h.Docs.ExportDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "export", err)
	}
	return c.JSON(http.StatusOK, art)
}

func (h Handlers) fail(c echo.Context, op string, err error) error {
	code := gdd.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case gdd.CodeNotFound:
		status = http.StatusNotFound
	case gdd.CodeNoActiveQuestion, gdd.CodeNotFinished:
		status = http.StatusConflict
	default:
		h.Log.Error("document request failed", zap.String("op", op), zap.String("id", c.Param("id")), zap.Error(err))
	}
	return c.JSON(status, map[string]string{"error": err.Error(), "code": code})
}
