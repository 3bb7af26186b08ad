// Package websocket pushes notifications and cluster updates to the UI gateway.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/huiputin/routemap/pkg/core"
	"github.com/huiputin/routemap/pkg/streaming"
)

// Config holds the stream configuration. Zero durations use the defaults.
type Config struct {
	URL     string
	Secret  string
	Service string
	Gym     string

	AckTimeout   time.Duration
	Backoff      time.Duration
	MaxBackoff   time.Duration
	MaxReconnect int
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = 10
	}
	return c
}

// Stream is a notify.Sink that forwards events over a WebSocket.
type Stream struct {
	conn   *connection
	cfg    Config
	logger *slog.Logger
}

// New creates a stream. Call Connect before use.
func New(cfg Config, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Stream{
		conn:   newConnection(cfg, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Connect dials the gateway and waits for the hello to be acknowledged.
func (s *Stream) Connect(ctx context.Context) error {
	if err := s.conn.dial(ctx); err != nil {
		return err
	}

	data, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{Service: s.cfg.Service, Gym: s.cfg.Gym})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	s.conn.mu.Lock()
	s.conn.hello = data
	s.conn.mu.Unlock()

	return s.conn.sendAndWait(ctx, data, streaming.TypeHello, s.cfg.AckTimeout)
}

// Close disconnects from the gateway.
func (s *Stream) Close() error {
	return s.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (s *Stream) sendEnvelope(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		s.logger.Error("Failed to encode stream message", "type", msgType, "error", err)
		return
	}
	s.conn.send(data)
}

// Notify forwards a notification. Fire-and-forget.
func (s *Stream) Notify(_ context.Context, ev core.NotificationEvent) {
	s.sendEnvelope(streaming.TypeNotification, streaming.NotificationPayload{
		Message:    ev.Message,
		DurationMs: ev.DurationMs(),
	})
}

// PublishClusters forwards the latest clusters and the new route ids, sorted.
func (s *Stream) PublishClusters(clusters []core.Cluster, newIDs map[string]struct{}) {
	ids := make([]string, 0, len(newIDs))
	for id := range newIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.sendEnvelope(streaming.TypeClusters, streaming.ClustersPayload{Clusters: clusters, NewRouteIDs: ids})
}
