// Package changefeed tells storage subscribers that a document changed so they can
// re-read it. Payloads carry no data; readers always fetch the committed state.
package changefeed

import (
	"context"
	"sync"
)

// TopicMarkers is published after any marker write.
const TopicMarkers = "markers"

// RouteTopic is published after any write to the given route.
func RouteTopic(routeID string) string {
	return "route:" + routeID
}

// Feed publishes and delivers change notifications.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe registers fn for topic. ctx bounds only the registration; the
	// subscription lives until cancel is called.
	Subscribe(ctx context.Context, topic string, fn func()) (cancel func(), err error)
	Close() error
}

// Local delivers notifications in-process, synchronously on the publisher's goroutine.
type Local struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func()
}

// NewLocal creates an in-process feed.
func NewLocal() *Local {
	return &Local{subs: make(map[string]map[int]func())}
}

// Publish calls every subscriber of topic. Subscribers run outside the lock and may
// subscribe or cancel from inside the callback.
func (l *Local) Publish(_ context.Context, topic string) error {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.subs[topic]))
	for _, fn := range l.subs[topic] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

func (l *Local) Subscribe(_ context.Context, topic string, fn func()) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	if l.subs[topic] == nil {
		l.subs[topic] = make(map[int]func())
	}
	l.subs[topic][id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs[topic], id)
		if len(l.subs[topic]) == 0 {
			delete(l.subs, topic)
		}
	}, nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = make(map[string]map[int]func())
	return nil
}
