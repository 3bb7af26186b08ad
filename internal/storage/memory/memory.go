// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/huiputin/routemap/internal/changefeed"
	"github.com/huiputin/routemap/internal/config"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/pkg/core"
)

// Backend keeps markers and routes in memory and optionally persists them to a
// JSON snapshot file between runs.
type Backend struct {
	cfg config.MemoryConfig

	markers map[string]*core.Marker // keyed by marker ID
	order   []string                // marker IDs in creation order
	routes  map[string]*core.RouteData

	feed   *changefeed.Local
	closed bool
	mu     sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		markers: make(map[string]*core.Marker),
		routes:  make(map[string]*core.RouteData),
		feed:    changefeed.NewLocal(),
	}
}

// Init loads the snapshot file when one is configured and exists.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = false
	if b.cfg.SnapshotPath == "" {
		return nil
	}
	return b.load()
}

// Close writes the snapshot file when configured. Later calls fail with a transport error.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.feed.Close()
	if b.cfg.SnapshotPath == "" {
		return nil
	}
	return b.save()
}

// Seed inserts markers and routes as they are, for fixtures and imports.
func (b *Backend) Seed(markers []core.Marker, routes []core.RouteData) {
	b.mu.Lock()
	for _, m := range markers {
		b.putMarker(m)
	}
	for _, r := range routes {
		b.putRoute(r)
	}
	b.mu.Unlock()

	ctx := context.Background()
	b.feed.Publish(ctx, changefeed.TopicMarkers)
	for _, r := range routes {
		b.feed.Publish(ctx, changefeed.RouteTopic(r.ID))
	}
}

func (b *Backend) putMarker(m core.Marker) {
	if _, ok := b.markers[m.ID]; !ok {
		b.order = append(b.order, m.ID)
	}
	b.markers[m.ID] = &m
}

func (b *Backend) putRoute(r core.RouteData) {
	r.SentBy = append([]core.SentRecord{}, r.SentBy...)
	r.VotedForDelete = append([]core.DeleteVote{}, r.VotedForDelete...)
	b.routes[r.ID] = &r
}

func (b *Backend) checkOpen(op string) error {
	if b.closed {
		return core.Transport(op, storage.ErrClosed)
	}
	return nil
}

// SubscribeMarkers delivers the current marker list, then a fresh list after every write.
func (b *Backend) SubscribeMarkers(ctx context.Context, onSnapshot func([]core.Marker), onError func(error)) (storage.Unsubscribe, error) {
	b.mu.RLock()
	err := b.checkOpen("subscribe markers")
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	deliver := func() {
		markers, err := b.Markers(ctx)
		if err != nil {
			onError(err)
			return
		}
		onSnapshot(markers)
	}

	cancel, err := b.feed.Subscribe(ctx, changefeed.TopicMarkers, deliver)
	if err != nil {
		return nil, core.Transport("subscribe markers", err)
	}
	deliver()
	return storage.Once(cancel), nil
}

// FetchRoute delivers the route document, then a fresh copy after every write to it.
func (b *Backend) FetchRoute(ctx context.Context, routeID string, onData func(core.RouteData), onLoading func(bool), onError func(error)) (storage.Unsubscribe, error) {
	b.mu.RLock()
	err := b.checkOpen("fetch route")
	_, ok := b.routes[routeID]
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: route %s", core.ErrNotFound, routeID)
	}

	deliver := func() {
		data, err := b.Route(ctx, routeID)
		if err != nil {
			onError(err)
			return
		}
		onData(data)
	}

	cancel, err := b.feed.Subscribe(ctx, changefeed.RouteTopic(routeID), deliver)
	if err != nil {
		return nil, core.Transport("fetch route", err)
	}
	onLoading(true)
	deliver()
	onLoading(false)
	return storage.Once(cancel), nil
}

// CreateRoute stores a new route and a visible marker pointing at it in one step.
func (b *Backend) CreateRoute(ctx context.Context, pos core.Position, draft core.RouteDraft) (core.Marker, error) {
	b.mu.Lock()
	if err := b.checkOpen("create route"); err != nil {
		b.mu.Unlock()
		return core.Marker{}, err
	}

	route := core.RouteData{
		ID:              uuid.NewString(),
		RouteName:       draft.Name,
		RouteImageURL:   draft.ImageURL,
		RouteHoldColor:  draft.HoldColor,
		RouteGradeColor: draft.Grade,
	}
	marker := core.Marker{
		ID:      uuid.NewString(),
		X:       pos.X,
		Y:       pos.Y,
		RouteID: route.ID,
		Visible: true,
	}
	b.putRoute(route)
	b.putMarker(marker)
	b.mu.Unlock()

	b.feed.Publish(ctx, changefeed.TopicMarkers)
	return marker, nil
}

// VoteForDelete appends voterID to the route's delete votes and returns the new count.
func (b *Backend) VoteForDelete(ctx context.Context, routeID, voterID string) (int, error) {
	b.mu.Lock()
	if err := b.checkOpen("vote for delete"); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	route, ok := b.routes[routeID]
	if !ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("%w: route %s", core.ErrNotFound, routeID)
	}
	if route.HasVoted(voterID) {
		b.mu.Unlock()
		return 0, core.ErrAlreadyVoted
	}
	route.VotedForDelete = append(route.VotedForDelete, core.DeleteVote{VotedBy: voterID})
	count := len(route.VotedForDelete)
	b.mu.Unlock()

	b.feed.Publish(ctx, changefeed.RouteTopic(routeID))
	return count, nil
}

// SetMarkerInvisible soft deletes a marker.
func (b *Backend) SetMarkerInvisible(ctx context.Context, markerID string) error {
	return b.setVisible(ctx, markerID, false, "set marker invisible")
}

// RestoreMarker reverses SetMarkerInvisible.
func (b *Backend) RestoreMarker(ctx context.Context, markerID string) error {
	return b.setVisible(ctx, markerID, true, "restore marker")
}

func (b *Backend) setVisible(ctx context.Context, markerID string, visible bool, op string) error {
	b.mu.Lock()
	if err := b.checkOpen(op); err != nil {
		b.mu.Unlock()
		return err
	}
	marker, ok := b.markers[markerID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: marker %s", core.ErrNotFound, markerID)
	}
	marker.Visible = visible
	b.mu.Unlock()

	b.feed.Publish(ctx, changefeed.TopicMarkers)
	return nil
}

// MarkRouteAsSent appends a send record and refreshes the aggregated grade.
func (b *Backend) MarkRouteAsSent(ctx context.Context, routeID string, rec core.SentRecord) error {
	b.mu.Lock()
	if err := b.checkOpen("mark route as sent"); err != nil {
		b.mu.Unlock()
		return err
	}
	route, ok := b.routes[routeID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: route %s", core.ErrNotFound, routeID)
	}
	if route.HasSent(rec.SenderID) {
		b.mu.Unlock()
		return core.ErrAlreadySent
	}
	route.SentBy = append(route.SentBy, rec)
	route.VotedGrade = core.AggregateGrade(route.SentBy)
	b.mu.Unlock()

	b.feed.Publish(ctx, changefeed.RouteTopic(routeID))
	return nil
}

// Markers returns every marker, visible or not, in creation order.
func (b *Backend) Markers(_ context.Context) ([]core.Marker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen("markers"); err != nil {
		return nil, err
	}

	out := make([]core.Marker, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.markers[id])
	}
	return out, nil
}

// Route returns a copy of the route document.
func (b *Backend) Route(_ context.Context, routeID string) (core.RouteData, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen("route"); err != nil {
		return core.RouteData{}, err
	}

	route, ok := b.routes[routeID]
	if !ok {
		return core.RouteData{}, fmt.Errorf("%w: route %s", core.ErrNotFound, routeID)
	}
	out := *route
	out.SentBy = append([]core.SentRecord{}, route.SentBy...)
	out.VotedForDelete = append([]core.DeleteVote{}, route.VotedForDelete...)
	return out, nil
}
