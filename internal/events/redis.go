package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisFeed carries change events over a Redis pub/sub channel so every API
// replica sees writes made by the others.
type RedisFeed struct {
	client  *redis.Client
	channel string
	buffer  int
	logger  *zap.Logger
}

// NewRedisFeed creates a feed on channel. The client is owned by the caller.
func NewRedisFeed(client *redis.Client, channel string, buffer int, logger *zap.Logger) *RedisFeed {
	return &RedisFeed{client: client, channel: channel, buffer: buffer, logger: logger}
}

// Publish encodes the event as JSON and publishes it.
func (f *RedisFeed) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(stamp(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", f.channel, err)
	}
	return nil
}

// Subscribe opens a pub/sub connection and waits for the server to confirm it
// before returning, so no event published afterwards is missed.
func (f *RedisFeed) Subscribe(ctx context.Context, mask Mask) (Subscription, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", f.channel, err)
	}

	sub := newRelaySubscription(f.buffer, pubsub.Close)
	startRelay(ctx, sub, pubsub.Channel(), func(m *redis.Message) []byte {
		return []byte(m.Payload)
	}, mask, f.logger)
	return sub, nil
}

// Close is a no-op; subscriptions are closed by their owners and the client
// by whoever created it.
func (f *RedisFeed) Close() error {
	return nil
}
