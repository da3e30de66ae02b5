package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apihttp "github.com/chadiek/gdd-voice/api/http"
	authmw "github.com/chadiek/gdd-voice/internal/middleware"
)

// Routes are the handlers mounted by New. A nil handler leaves its route out.
type Routes struct {
	AuthPassword string
	Stream       echo.HandlerFunc
	Documents    *apihttp.Handlers
}

// New creates a configured Echo server instance.
func New(r Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Auth-Token"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	auth := authmw.TokenAuth(r.AuthPassword)
	if r.Stream != nil {
		e.GET("/ws/stream", r.Stream, auth)
	}
	if r.Documents != nil {
		r.Documents.Register(e.Group("/gdd", auth))
	}
	return e
}
