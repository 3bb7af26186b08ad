package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/huiputin/routemap/pkg/core"
)

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, ev core.NotificationEvent) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Notification", "message", ev.Message, "durationMs", ev.DurationMs())
}

// MultiSink fans a notification out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, ev core.NotificationEvent) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, ev)
		}
	}
}

// Recorded is a notification with the time it was emitted.
type Recorded struct {
	Message    string    `json:"message"`
	DurationMs int64     `json:"durationMs"`
	At         time.Time `json:"at"`
}

// Recorder keeps the most recent notifications until they are drained.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	limit  int
	now    func() time.Time
}

// NewRecorder keeps at most limit events, dropping the oldest. limit <= 0 keeps 100.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit, now: time.Now}
}

func (r *Recorder) Notify(_ context.Context, ev core.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Message: ev.Message, DurationMs: ev.DurationMs(), At: r.now()})
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append([]Recorded{}, r.events[over:]...)
	}
}

// Events returns a copy of the buffered events.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded{}, r.events...)
}

// Drain returns and clears the buffered events.
func (r *Recorder) Drain() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	if out == nil {
		out = []Recorded{}
	}
	return out
}

// Messages returns the buffered messages, for tests.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Message
	}
	return out
}
