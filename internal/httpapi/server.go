// Package httpapi exposes the board and the route visits over JSON HTTP.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/huiputin/routemap/internal/board"
	"github.com/huiputin/routemap/internal/feed"
	"github.com/huiputin/routemap/internal/lifecycle"
	"github.com/huiputin/routemap/internal/logging"
	"github.com/huiputin/routemap/internal/notify"
	"github.com/huiputin/routemap/internal/sector"
	"github.com/huiputin/routemap/pkg/core"
)

// Caller identity headers, set by the auth proxy in front of the service.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

// Deps holds everything the handlers use.
type Deps struct {
	Store    lifecycle.Store
	Feed     *feed.Feed
	Board    *board.Board
	Index    *sector.Index
	Visits   *lifecycle.Registry
	Recorder *notify.Recorder
	// Sink receives lifecycle notifications. Defaults to Recorder.
	Sink     notify.Sink
	Uploader lifecycle.Uploader
	Logger   *slog.Logger
}

// New builds an echo instance with every route registered.
func New(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Sink == nil && d.Recorder != nil {
		d.Sink = d.Recorder
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(d.Logger)
	e.Use(middleware.Recover())
	e.Use(requestIdentity)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			d.Logger.DebugContext(c.Request().Context(), "HTTP request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"error", v.Error,
			)
			return nil
		},
	}))

	Register(e, d)
	return e
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	h := &handlers{deps: d}

	e.GET("/healthcheck", h.healthcheck)
	e.GET("/sectors", h.sectors)
	e.GET("/markers", h.markers)
	e.GET("/clusters", h.clusters)
	e.GET("/feed", h.feedStatus)
	e.GET("/notifications", h.notifications)

	v := e.Group("/visits")
	v.POST("", h.openVisit)
	v.GET("/:id", h.getVisit)
	v.DELETE("/:id", h.closeVisit)
	v.POST("/:id/route", h.createRoute)
	v.POST("/:id/sent/toggle", h.toggleSent)
	v.POST("/:id/sent", h.markSent)
	v.POST("/:id/votes", h.vote)
	v.POST("/:id/votes/confirm", h.confirmDelete)
	v.POST("/:id/votes/dismiss", h.dismissDelete)
}

// requestIdentity puts the caller and the visit of the route into the request
// context, so request logs carry them.
func requestIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logging.WithUser(req.Context(), req.Header.Get(HeaderUserID))
		ctx = logging.WithVisit(ctx, c.Param("id"))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

type errorResponse struct {
	Error        string `json:"error"`
	Step         string `json:"step,omitempty"`
	VoteRecorded bool   `json:"voteRecorded,omitempty"`
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var pf *core.PartialFailure
	switch {
	case errors.As(err, &pf):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyVoted),
		errors.Is(err, core.ErrAlreadySent),
		errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrQuorumNotReached):
		return http.StatusConflict
	case errors.Is(err, core.ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := StatusFor(err)
		body := errorResponse{Error: err.Error()}

		var he *echo.HTTPError
		var pf *core.PartialFailure
		switch {
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				body.Error = msg
			} else {
				body.Error = http.StatusText(he.Code)
			}
		case errors.As(err, &pf):
			body.Step = pf.Step
			body.VoteRecorded = pf.VoteRecorded
		}

		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "Request failed", "path", c.Path(), "status", status, "error", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error("Failed to write error response", "error", writeErr)
		}
	}
}
