package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel shared by every instance.
const DefaultChannel = "playmarket:events"

// RedisBus fans events out across instances over Redis Pub/Sub.
type RedisBus struct {
	rdb     redis.UniversalClient
	channel string
}

// NewRedisBus creates a bus on channel (DefaultChannel when empty).
func NewRedisBus(rdb redis.UniversalClient, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, channel: channel}
}

// Publish sends e to every subscribed instance. Failures are logged.
func (b *RedisBus) Publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		slog.Error("event marshal failed", "type", e.Type, "err", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		slog.Warn("event publish failed", "channel", b.channel, "type", e.Type, "err", err)
	}
}

// Relay subscribes to the bus and forwards every event to sink until ctx
// is cancelled.
func (b *RedisBus) Relay(ctx context.Context, sink Publisher) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				slog.Warn("dropping malformed event", "channel", b.channel, "err", err)
				continue
			}
			sink.Publish(ctx, e)
		}
	}
}
