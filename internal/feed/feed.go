// Package feed keeps the live marker snapshot and works out which routes appeared
// since the subscription started.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/huiputin/routemap/internal/cache"
	"github.com/huiputin/routemap/internal/dispatcher"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/pkg/core"
	"go.opentelemetry.io/otel/metric"
)

// MarkerSource is the push subscription the feed consumes.
type MarkerSource interface {
	SubscribeMarkers(ctx context.Context, onSnapshot func([]core.Marker), onError func(error)) (storage.Unsubscribe, error)
}

// Update is handed to change listeners after every snapshot.
type Update struct {
	Markers     []core.Marker
	NewRouteIDs map[string]struct{}
	// Baseline is set for the first snapshot, which never reports new routes.
	Baseline bool
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// WithCache stores the snapshot in c instead of a private cache.
func WithCache(c *cache.MarkerCache) Option {
	return func(f *Feed) { f.cache = c }
}

// WithDispatcher routes pushes through d so that snapshots are processed one at a
// time, in push order, on the dispatcher's worker goroutine.
func WithDispatcher(d *dispatcher.Dispatcher) Option {
	return func(f *Feed) { f.dispatcher = d }
}

// Feed consumes the marker subscription.
//
// The first snapshot becomes the baseline. Every later snapshot reports the ids
// missing from that baseline as new routes. The baseline is never advanced, so a
// route stays "new" for the lifetime of the subscription.
type Feed struct {
	src        MarkerSource
	logger     *slog.Logger
	cache      *cache.MarkerCache
	dispatcher *dispatcher.Dispatcher

	mu          sync.RWMutex
	baseline    map[string]struct{}
	hasBaseline bool
	newIDs      map[string]struct{}
	err         error
	unsub       storage.Unsubscribe

	listenersMu sync.RWMutex
	onChange    []func(Update)
	onError     []func(error)

	snapshots metric.Int64Counter
	errors    metric.Int64Counter
	newRoutes metric.Int64Counter
}

// New creates a feed over src. Call Start to subscribe.
func New(src MarkerSource, opts ...Option) (*Feed, error) {
	f := &Feed{
		src:    src,
		logger: slog.Default(),
		newIDs: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = cache.NewMarkerCache()
	}

	m := meter()
	var err error
	f.snapshots, err = m.Int64Counter("feed.snapshots", metric.WithDescription("Marker snapshots received"))
	if err != nil {
		return nil, fmt.Errorf("creating snapshots counter: %w", err)
	}
	f.errors, err = m.Int64Counter("feed.errors", metric.WithDescription("Marker subscription errors"))
	if err != nil {
		return nil, fmt.Errorf("creating errors counter: %w", err)
	}
	f.newRoutes, err = m.Int64Counter("feed.new_routes", metric.WithDescription("New route ids reported per snapshot"))
	if err != nil {
		return nil, fmt.Errorf("creating new routes counter: %w", err)
	}

	if f.dispatcher != nil {
		// Both lanes block: a dropped snapshot could become a wrong baseline.
		err = f.dispatcher.Register(dispatcher.CmdMarkersSnapshot, func(e dispatcher.Event) error {
			markers, ok := e.Payload.([]core.Marker)
			if !ok {
				return fmt.Errorf("unexpected payload %T", e.Payload)
			}
			f.Apply(markers)
			return nil
		}, dispatcher.Queued(64, dispatcher.Block))
		if err != nil {
			return nil, err
		}
		err = f.dispatcher.Register(dispatcher.CmdMarkersError, func(e dispatcher.Event) error {
			err, ok := e.Payload.(error)
			if !ok {
				return fmt.Errorf("unexpected payload %T", e.Payload)
			}
			f.Fail(err)
			return nil
		}, dispatcher.Queued(16, dispatcher.Block))
		if err != nil {
			return nil, err
		}
	}

	return f, nil
}

// OnChange registers fn to run after every processed snapshot.
func (f *Feed) OnChange(fn func(Update)) {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	f.onChange = append(f.onChange, fn)
}

// OnError registers fn to run after every subscription error.
func (f *Feed) OnError(fn func(error)) {
	f.listenersMu.Lock()
	defer f.listenersMu.Unlock()
	f.onError = append(f.onError, fn)
}

// Start subscribes to the source. A second call is a no-op.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.unsub != nil {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	unsub, err := f.src.SubscribeMarkers(ctx, f.push, f.pushError)
	if err != nil {
		f.Fail(err)
		return err
	}

	f.mu.Lock()
	f.unsub = unsub
	f.mu.Unlock()
	return nil
}

// Stop releases the subscription and drops the snapshot, so a later Start takes a
// fresh baseline. Safe to call more than once and after errors.
func (f *Feed) Stop() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	if unsub != nil {
		f.cache.Reset()
		f.baseline, f.hasBaseline = nil, false
		f.newIDs = make(map[string]struct{})
	}
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (f *Feed) push(markers []core.Marker) {
	if f.dispatcher == nil {
		f.Apply(markers)
		return
	}
	if err := f.dispatcher.Dispatch(dispatcher.Event{Command: dispatcher.CmdMarkersSnapshot, Payload: markers}); err != nil {
		f.logger.Warn("Dropped marker snapshot", "error", err)
	}
}

func (f *Feed) pushError(err error) {
	if f.dispatcher == nil {
		f.Fail(err)
		return
	}
	if derr := f.dispatcher.Dispatch(dispatcher.Event{Command: dispatcher.CmdMarkersError, Payload: err}); derr != nil {
		f.logger.Warn("Dropped marker subscription error", "error", err, "dispatchError", derr)
	}
}

// Apply processes one snapshot and notifies change listeners.
func (f *Feed) Apply(markers []core.Marker) {
	clean := make([]core.Marker, 0, len(markers))
	for _, m := range markers {
		if m.ID == "" {
			f.logger.Warn("Dropping marker without id", "routeId", m.RouteID, "x", m.X, "y", m.Y)
			continue
		}
		clean = append(clean, m)
	}

	f.mu.Lock()
	f.cache.Replace(clean)
	update := Update{Markers: f.cache.All()}
	if !f.hasBaseline {
		f.baseline = f.cache.IDs()
		f.hasBaseline = true
		f.newIDs = make(map[string]struct{})
		update.Baseline = true
	} else {
		fresh := make(map[string]struct{})
		for _, m := range clean {
			if _, ok := f.baseline[m.ID]; !ok {
				fresh[m.ID] = struct{}{}
			}
		}
		f.newIDs = fresh
	}
	f.err = nil
	update.NewRouteIDs = copySet(f.newIDs)
	f.mu.Unlock()

	ctx := context.Background()
	f.snapshots.Add(ctx, 1)
	f.newRoutes.Add(ctx, int64(len(update.NewRouteIDs)))
	f.logger.Debug("Marker snapshot", "markers", len(update.Markers), "newRoutes", len(update.NewRouteIDs), "baseline", update.Baseline)

	f.listenersMu.RLock()
	listeners := append([]func(Update){}, f.onChange...)
	f.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(update)
	}
}

// Fail records a subscription error. The last good snapshot is kept.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()

	f.errors.Add(context.Background(), 1)
	f.logger.Error("Marker subscription error", "error", err)

	f.listenersMu.RLock()
	listeners := append([]func(error){}, f.onError...)
	f.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// Snapshot returns the last good marker list in push order.
func (f *Feed) Snapshot() []core.Marker {
	return f.cache.All()
}

// Marker returns the marker with id from the last good snapshot.
func (f *Feed) Marker(id string) (core.Marker, bool) {
	return f.cache.Get(id)
}

// Len returns the number of markers in the last good snapshot.
func (f *Feed) Len() int {
	return f.cache.Len()
}

// NewRouteIDs returns the ids that are not part of the baseline.
func (f *Feed) NewRouteIDs() map[string]struct{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return copySet(f.newIDs)
}

// Err returns the last subscription error, cleared by the next good snapshot.
func (f *Feed) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// HasBaseline reports whether the first snapshot arrived.
func (f *Feed) HasBaseline() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hasBaseline
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
