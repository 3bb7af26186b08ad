// Package dispatcher moves marker feed work off the storage subscription's
// goroutine. Every command gets a lane: either inline, or a queue drained by one
// worker, so events of a command are handled one at a time in dispatch order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/huiputin/routemap/internal/dispatcher"

// Commands routed through the dispatcher.
const (
	CmdMarkersSnapshot = "markers:snapshot"
	CmdMarkersError    = "markers:error"
)

var (
	// ErrClosed is returned by Dispatch and Register after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned by Dispatch for a command without a lane.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned by Dispatch when a Drop lane has no room.
	ErrQueueFull = errors.New("queue full")
)

// Event is one unit of work. Payload is owned by the handler once dispatched.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// Handler processes one event.
type Handler func(Event) error

// Overflow decides what Dispatch does when a queue is full.
type Overflow int

const (
	// Block waits for room, so no event is lost. Marker snapshots use it: a lost
	// first snapshot would move the new-route baseline.
	Block Overflow = iota
	// Drop rejects the event with ErrQueueFull.
	Drop
)

func (o Overflow) String() string {
	if o == Drop {
		return "drop"
	}
	return "block"
}

// Option configures a lane.
type Option func(*lane)

// Queued runs the handler on its own worker behind a queue of size events.
func Queued(size int, o Overflow) Option {
	return func(l *lane) {
		l.queue = make(chan Event, size)
		l.overflow = o
	}
}

type lane struct {
	command  string
	handle   Handler
	queue    chan Event // nil runs the handler inline
	overflow Overflow
	attrs    metric.MeasurementOption
}

// Dispatcher routes events to lanes.
type Dispatcher struct {
	logger *slog.Logger

	mu      sync.RWMutex
	lanes   map[string]*lane
	closed  bool
	workers sync.WaitGroup

	queued  metric.Int64ObservableGauge
	handled metric.Int64Counter
	failed  metric.Int64Counter
	dropped metric.Int64Counter
}

// New creates a Dispatcher. Metrics go to the global OTel meter, a no-op until a
// provider is installed.
func New(logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger: logger,
		lanes:  make(map[string]*lane),
	}

	m := otel.Meter(instrumentationName)
	var err error
	d.queued, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a lane"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for _, l := range d.lanes {
			if l.queue != nil {
				o.ObserveInt64(d.queued, int64(len(l.queue)), l.attrs)
			}
		}
		return nil
	}, d.queued)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}
	if d.handled, err = m.Int64Counter("dispatcher.events.handled",
		metric.WithDescription("Events handled")); err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	if d.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events rejected by a full drop lane")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return d, nil
}

// Register opens the lane for command. Each command can be registered once.
func (d *Dispatcher) Register(command string, h Handler, opts ...Option) error {
	l := &lane{
		command: command,
		handle:  h,
		attrs:   metric.WithAttributes(attribute.String("command", command)),
	}
	for _, opt := range opts {
		opt(l)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, dup := d.lanes[command]; dup {
		return fmt.Errorf("command %s already registered", command)
	}
	d.lanes[command] = l

	if l.queue != nil {
		d.workers.Add(1)
		go d.drain(l)
		d.logger.Debug("Dispatcher lane opened", "command", command, "size", cap(l.queue), "overflow", l.overflow.String())
	}
	return nil
}

// Dispatch hands e to its lane. Inline lanes return the handler's error; queued
// lanes return once the event is queued. A zero Timestamp is set to now.
func (d *Dispatcher) Dispatch(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	// The read lock keeps Close from closing a queue mid-send.
	d.mu.RLock()
	l, ok := d.lanes[e.Command]
	switch {
	case d.closed:
		d.mu.RUnlock()
		return ErrClosed
	case !ok:
		d.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	case l.queue == nil:
		d.mu.RUnlock()
		return d.run(l, e)
	}
	defer d.mu.RUnlock()

	if l.overflow == Block {
		l.queue <- e
		return nil
	}
	select {
	case l.queue <- e:
		return nil
	default:
		d.dropped.Add(context.Background(), 1, l.attrs)
		return fmt.Errorf("%w: %s", ErrQueueFull, e.Command)
	}
}

// Close stops accepting events and waits until every queued one is handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, l := range d.lanes {
		if l.queue != nil {
			close(l.queue)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) drain(l *lane) {
	defer d.workers.Done()
	for e := range l.queue {
		_ = d.run(l, e)
	}
}

func (d *Dispatcher) run(l *lane, e Event) error {
	start := time.Now()
	err := l.handle(e)

	ctx := context.Background()
	d.handled.Add(ctx, 1, l.attrs)
	if err != nil {
		d.failed.Add(ctx, 1, l.attrs)
		d.logger.Error("Event failed", "command", l.command, "error", err)
		return err
	}
	d.logger.Debug("Event handled", "command", l.command, "waited", start.Sub(e.Timestamp), "took", time.Since(start))
	return nil
}
