package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces routemap channels on a shared redis.
const ChannelPrefix = "routemap:"

const resubscribeDelay = time.Second

// Redis fans notifications out over redis pub/sub so that every routemapd instance
// sharing one database sees writes made by the others.
type Redis struct {
	rc     *redis.Client
	logger *slog.Logger
}

// NewRedis wraps a connected client. The caller keeps ownership of rc only until
// Close is called.
func NewRedis(rc *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rc: rc, logger: logger}
}

// Publish sends a change notification for topic.
func (r *Redis) Publish(ctx context.Context, topic string) error {
	if err := r.rc.Publish(ctx, ChannelPrefix+topic, "changed").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe waits until redis confirmed the subscription, then calls fn on its own
// goroutine for every notification until cancel is called. cancel does not wait for
// a running fn, so it is safe to call from inside fn.
func (r *Redis) Subscribe(ctx context.Context, topic string, fn func()) (func(), error) {
	channel := ChannelPrefix + topic

	sub := r.rc.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go r.listen(subCtx, sub, channel, fn)

	return cancel, nil
}

func (r *Redis) listen(ctx context.Context, sub *redis.PubSub, channel string, fn func()) {
	for {
		ch := sub.Channel()
	inner:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case _, ok := <-ch:
				if !ok {
					break inner
				}
				fn()
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("pubsub channel closed, reconnecting", "channel", channel)
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
		sub = r.rc.Subscribe(ctx, channel)
	}
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.rc.Close()
}
