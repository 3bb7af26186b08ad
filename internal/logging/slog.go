package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the instrumentation scope used for OTel log records.
const ServiceName = "routemapd"

// swapped in tests
var osStdout io.Writer = os.Stdout

// OpenLogFile creates logsDir and opens the session log file
// <service>.<start>.log in it. A file left by a run started in the same second is
// kept as .old.
func OpenLogFile(logsDir, service string, start time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory %s: %w", logsDir, err)
	}
	path := filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", service, start.Format("20060102_150405")))
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

// SlogManager owns the service logger. EnableGraylog and SetContextProvider take
// effect on the next Setup.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider

	graylog *gelf.Writer
	context ContextProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// EnableGraylog connects a GELF UDP writer.
func (m *SlogManager) EnableGraylog(address string) error {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return fmt.Errorf("failed to connect to graylog at %s: %w", address, err)
	}
	m.graylog = w
	return nil
}

// SetContextProvider sets the attributes added to every record.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.context = p
}

// Close releases the Graylog connection, if any.
func (m *SlogManager) Close() error {
	if m.graylog == nil {
		return nil
	}
	return m.graylog.Close()
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup (re)builds the logger. Records go to file, or stdout when file is nil, and
// to Graylog and the OTel provider when those are set.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.logProvider = provider

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	sinks := Sinks{File: file, Provider: provider}
	if m.graylog != nil {
		sinks.Graylog = m.graylog
	}
	var handler slog.Handler = NewMultiHandler(sinks, opts)
	if m.context != nil {
		handler = NewContextHandler(handler, m.context)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
