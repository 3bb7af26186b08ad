package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Sinks lists where records go. File falls back to stdout when nil; Graylog and
// Provider are optional.
type Sinks struct {
	File     io.Writer
	Graylog  io.Writer
	Provider *sdklog.LoggerProvider
}

// MultiHandler fans records out to every enabled sink handler.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler builds one handler per configured sink: text for the file or
// stdout, JSON for Graylog, and the OTel bridge.
func NewMultiHandler(s Sinks, opts *slog.HandlerOptions) *MultiHandler {
	file := s.File
	if file == nil {
		file = osStdout
	}
	handlers := []slog.Handler{slog.NewTextHandler(file, opts)}
	if s.Graylog != nil {
		handlers = append(handlers, slog.NewJSONHandler(s.Graylog, opts))
	}
	if s.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(s.Provider)))
	}
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes r to every sink. A failing sink does not stop the others; the
// errors are joined.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *MultiHandler) each(fn func(slog.Handler) slog.Handler) *MultiHandler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = fn(h)
	}
	return &MultiHandler{handlers: handlers}
}
