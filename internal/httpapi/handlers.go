package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/huiputin/routemap/internal/lifecycle"
	"github.com/huiputin/routemap/pkg/core"
)

type handlers struct {
	deps Deps
}

func userFrom(c echo.Context) (core.User, error) {
	id := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
	if id == "" {
		return core.User{}, echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderUserID+" header")
	}
	return core.User{ID: id, Name: strings.TrimSpace(c.Request().Header.Get(HeaderUserName))}, nil
}

func (h *handlers) healthcheck(c echo.Context) error {
	if err := h.deps.Feed.Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) sectors(c echo.Context) error {
	return c.JSON(http.StatusOK, h.deps.Index.Sectors())
}

// markers lists visible markers; ?all=true includes soft-deleted ones.
func (h *handlers) markers(c echo.Context) error {
	all := c.QueryParam("all") == "true"
	out := make([]core.Marker, 0)
	for _, m := range h.deps.Feed.Snapshot() {
		if m.Visible || all {
			out = append(out, m)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handlers) clusters(c echo.Context) error {
	return c.JSON(http.StatusOK, h.deps.Board.Clusters())
}

type feedResponse struct {
	NewRouteIDs []string `json:"newRouteIds"`
	Baseline    bool     `json:"baseline"`
	Error       string   `json:"error,omitempty"`
}

func (h *handlers) feedStatus(c echo.Context) error {
	ids := make([]string, 0)
	for id := range h.deps.Feed.NewRouteIDs() {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resp := feedResponse{NewRouteIDs: ids, Baseline: h.deps.Feed.HasBaseline()}
	if err := h.deps.Feed.Err(); err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handlers) notifications(c echo.Context) error {
	if h.deps.Recorder == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, h.deps.Recorder.Drain())
}

type openVisitRequest struct {
	MarkerID string   `json:"markerId"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
}

// findMarker looks id up in the live snapshot. Hidden markers are not found.
func (h *handlers) findMarker(id string) (core.Marker, bool) {
	m, ok := h.deps.Feed.Marker(id)
	return m, ok && m.Visible
}

// sectorOption tags the visit with the sector p lies in, if any.
func (h *handlers) sectorOption(p core.Position) []lifecycle.Option {
	if s, ok := h.deps.Index.Locate(p); ok {
		return []lifecycle.Option{lifecycle.WithSector(s)}
	}
	return nil
}

func (h *handlers) openVisit(c echo.Context) error {
	user, err := userFrom(c)
	if err != nil {
		return err
	}
	var req openVisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var v *lifecycle.Visit
	opts := []lifecycle.Option{lifecycle.WithLogger(h.deps.Logger), lifecycle.WithOwner(user.ID)}
	switch {
	case req.MarkerID != "":
		m, ok := h.findMarker(req.MarkerID)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "marker "+req.MarkerID+" not found")
		}
		opts = append(opts, h.sectorOption(m.Position())...)
		v, err = lifecycle.OpenRoute(c.Request().Context(), h.deps.Store, h.deps.Sink, m, opts...)
		if err != nil {
			return err
		}
	case req.X != nil && req.Y != nil:
		pos := core.Position{X: *req.X, Y: *req.Y}
		opts = append(opts, h.sectorOption(pos)...)
		v = lifecycle.NewRoute(h.deps.Store, h.deps.Sink, pos, h.deps.Uploader, opts...)
	default:
		return core.Validation("markerId or x,y")
	}

	h.deps.Visits.Add(v)
	return c.JSON(http.StatusCreated, v.View())
}

// visit resolves the :id visit for the calling user. Only the user that opened a
// visit may use it.
func (h *handlers) visit(c echo.Context) (*lifecycle.Visit, core.User, error) {
	user, err := userFrom(c)
	if err != nil {
		return nil, core.User{}, err
	}
	v, err := h.deps.Visits.Get(c.Param("id"))
	if err != nil {
		return nil, core.User{}, err
	}
	if owner := v.Owner(); owner != "" && owner != user.ID {
		return nil, core.User{}, fmt.Errorf("%w: visit %s belongs to another user", core.ErrForbidden, v.ID())
	}
	return v, user, nil
}

func (h *handlers) getVisit(c echo.Context) error {
	v, _, err := h.visit(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v.View())
}

func (h *handlers) closeVisit(c echo.Context) error {
	if _, _, err := h.visit(c); err != nil {
		return err
	}
	h.deps.Visits.Remove(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) createRoute(c echo.Context) error {
	v, _, err := h.visit(c)
	if err != nil {
		return err
	}
	var draft core.RouteDraft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	m, err := v.Create(c.Request().Context(), draft)
	if err != nil {
		return err
	}
	h.deps.Visits.Remove(v.ID())
	return c.JSON(http.StatusCreated, m)
}

func (h *handlers) toggleSent(c echo.Context) error {
	v, _, err := h.visit(c)
	if err != nil {
		return err
	}
	m, err := v.ToggleMarkingSent()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

type markSentRequest struct {
	Grade    string `json:"grade"`
	TryCount string `json:"tryCount"`
}

func (h *handlers) markSent(c echo.Context) error {
	v, user, err := h.visit(c)
	if err != nil {
		return err
	}
	var req markSentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := v.MarkAsSent(c.Request().Context(), user, req.Grade, req.TryCount); err != nil {
		return err
	}
	h.deps.Visits.Remove(v.ID())
	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}

func (h *handlers) vote(c echo.Context) error {
	v, user, err := h.visit(c)
	if err != nil {
		return err
	}
	res, err := v.VoteDelete(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) confirmDelete(c echo.Context) error {
	v, user, err := h.visit(c)
	if err != nil {
		return err
	}
	if err := v.ConfirmDelete(c.Request().Context(), user.ID); err != nil {
		return err
	}
	h.deps.Visits.Remove(v.ID())
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handlers) dismissDelete(c echo.Context) error {
	v, _, err := h.visit(c)
	if err != nil {
		return err
	}
	m, err := v.DismissConfirmDelete()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}
