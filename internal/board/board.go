// Package board runs the marker pipeline: every feed update is clustered by
// sector and checked for new routes.
package board

import (
	"context"
	"log/slog"
	"sync"

	"github.com/huiputin/routemap/internal/cluster"
	"github.com/huiputin/routemap/internal/feed"
	"github.com/huiputin/routemap/internal/notify"
	"github.com/huiputin/routemap/internal/sector"
	"github.com/huiputin/routemap/pkg/core"
)

// Board holds the latest clusters.
type Board struct {
	index    *sector.Index
	notifier *notify.Notifier
	logger   *slog.Logger

	mu       sync.RWMutex
	clusters []core.Cluster
	newIDs   map[string]struct{}

	listenersMu sync.RWMutex
	listeners   []func([]core.Cluster)
}

// New wires a board onto f. notifier may be nil, in which case no new-route
// notifications are sent.
func New(f *feed.Feed, index *sector.Index, notifier *notify.Notifier, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Board{
		index:    index,
		notifier: notifier,
		logger:   logger,
		clusters: cluster.Aggregate(nil, index),
		newIDs:   map[string]struct{}{},
	}
	f.OnChange(b.handle)
	return b
}

func (b *Board) handle(u feed.Update) {
	clusters := cluster.Aggregate(u.Markers, b.index)

	b.mu.Lock()
	b.clusters = clusters
	b.newIDs = u.NewRouteIDs
	b.mu.Unlock()

	if b.notifier != nil && !u.Baseline {
		if ev, ok := b.notifier.Evaluate(context.Background(), clusters, u.NewRouteIDs); ok {
			b.logger.Info("New routes", "message", ev.Message, "routes", len(u.NewRouteIDs))
		}
	}

	b.listenersMu.RLock()
	listeners := append([]func([]core.Cluster){}, b.listeners...)
	b.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(clusters)
	}
}

// Clusters returns the clusters computed from the latest snapshot.
func (b *Board) Clusters() []core.Cluster {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Cluster{}, b.clusters...)
}

// NewRouteIDs returns the new route ids of the latest snapshot.
func (b *Board) NewRouteIDs() map[string]struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]struct{}, len(b.newIDs))
	for id := range b.newIDs {
		out[id] = struct{}{}
	}
	return out
}

// OnClusters registers fn to receive every recomputed cluster list.
func (b *Board) OnClusters(fn func([]core.Cluster)) {
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.listenersMu.Unlock()
}
