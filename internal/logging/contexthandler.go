package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns service-wide attributes evaluated per record, such as the
// number of open visits or markers on the map.
type ContextProvider func() []slog.Attr

type ctxKey int

const (
	userKey ctxKey = iota
	visitKey
)

// WithUser returns ctx carrying the id of the calling user.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// WithVisit returns ctx carrying the id of the visit a request acts on.
func WithVisit(ctx context.Context, visitID string) context.Context {
	if visitID == "" {
		return ctx
	}
	return context.WithValue(ctx, visitKey, visitID)
}

// requestAttrs collects the user and visit from ctx into a "req" group.
func requestAttrs(ctx context.Context) (slog.Attr, bool) {
	if ctx == nil {
		return slog.Attr{}, false
	}
	var attrs []any
	if id, ok := ctx.Value(userKey).(string); ok {
		attrs = append(attrs, slog.String("user", id))
	}
	if id, ok := ctx.Value(visitKey).(string); ok {
		attrs = append(attrs, slog.String("visit", id))
	}
	if len(attrs) == 0 {
		return slog.Attr{}, false
	}
	return slog.Group("req", attrs...), true
}

// ContextHandler adds the provider's attributes and the request identity found in
// the record's context. Use the *Context logging methods to pass the context.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	if req, ok := requestAttrs(ctx); ok {
		r.AddAttrs(req)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
