// Package notify turns newly appeared routes into user notifications.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/huiputin/routemap/pkg/core"
)

// DefaultNewRouteDuration is how long the new-route notification stays on screen.
const DefaultNewRouteDuration = 8 * time.Second

// Messages shown by the route lifecycle.
const (
	MsgFirstSend    = "Be the first to send this route!"
	MsgRouteDeleted = "Route deleted successfully!"
	MsgRouteSent    = "Route marked as sent successfully!"

	newRoutePrefix = "New route(s) to climb in "
)

// LifecycleDuration is the display time of lifecycle messages.
const LifecycleDuration = 4 * time.Second

// Sink delivers notifications to the UI. Delivery is fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, ev core.NotificationEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev core.NotificationEvent)

func (f SinkFunc) Notify(ctx context.Context, ev core.NotificationEvent) { f(ctx, ev) }

// AffectedClusters returns the clusters holding at least one id from newIDs, in
// the order given.
func AffectedClusters(clusters []core.Cluster, newIDs map[string]struct{}) []core.Cluster {
	if len(newIDs) == 0 {
		return nil
	}
	var out []core.Cluster
	for _, c := range clusters {
		for _, m := range c.Markers {
			if _, ok := newIDs[m.ID]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// NewRouteMessage builds the notification text for the given clusters.
func NewRouteMessage(clusters []core.Cluster) string {
	names := make([]string, len(clusters))
	for i, c := range clusters {
		names[i] = c.Name
	}
	return newRoutePrefix + strings.Join(names, ", ")
}

// Notifier emits one notification per evaluation that finds new routes.
type Notifier struct {
	sink     Sink
	duration time.Duration
}

// NewNotifier creates a Notifier. A zero duration uses DefaultNewRouteDuration.
func NewNotifier(sink Sink, duration time.Duration) *Notifier {
	if duration <= 0 {
		duration = DefaultNewRouteDuration
	}
	return &Notifier{sink: sink, duration: duration}
}

// Evaluate sends a notification naming every cluster with a new route. It returns
// the event and whether one was sent.
func (n *Notifier) Evaluate(ctx context.Context, clusters []core.Cluster, newIDs map[string]struct{}) (core.NotificationEvent, bool) {
	affected := AffectedClusters(clusters, newIDs)
	if len(affected) == 0 {
		return core.NotificationEvent{}, false
	}

	ev := core.NotificationEvent{
		Message:  NewRouteMessage(affected),
		Duration: n.duration,
	}
	n.sink.Notify(ctx, ev)
	return ev, true
}
