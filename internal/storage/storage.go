// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/huiputin/routemap/pkg/core"
)

// ErrClosed is wrapped into a transport error when a closed backend is used.
var ErrClosed = errors.New("backend closed")

// Unsubscribe releases a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Backend is the interface all route store implementations must satisfy.
// Every failure to reach the store is reported wrapped in core.ErrTransport.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Push subscriptions. Both deliver the current state before returning, then
	// once per change. onError reports a failed push; the subscription stays alive.
	SubscribeMarkers(ctx context.Context, onSnapshot func([]core.Marker), onError func(error)) (Unsubscribe, error)
	FetchRoute(ctx context.Context, routeID string, onData func(core.RouteData), onLoading func(bool), onError func(error)) (Unsubscribe, error)

	// Writes
	CreateRoute(ctx context.Context, pos core.Position, draft core.RouteDraft) (core.Marker, error)
	VoteForDelete(ctx context.Context, routeID, voterID string) (int, error)
	SetMarkerInvisible(ctx context.Context, markerID string) error
	RestoreMarker(ctx context.Context, markerID string) error
	MarkRouteAsSent(ctx context.Context, routeID string, rec core.SentRecord) error

	// One-shot reads
	Markers(ctx context.Context) ([]core.Marker, error)
	Route(ctx context.Context, routeID string) (core.RouteData, error)
}

// Once wraps fn so that only the first call runs it.
func Once(fn func()) Unsubscribe {
	var once sync.Once
	return func() { once.Do(fn) }
}
