package feed

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Publisher broadcasts change events to other clients.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// DefaultChannel is the Redis channel carrying document events.
const DefaultChannel = "doctrack:feed"

// RedisPublisher publishes events as JSON on a Redis channel so every
// service instance can relay them to its own websocket clients.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (r *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Relay subscribes to the channel and hands each decoded event to fn until
// ctx is cancelled. ready is closed once the subscription is confirmed.
func (r *RedisPublisher) Relay(ctx context.Context, ready chan<- struct{}, fn func(Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warnf("feed: dropping malformed event: %v", err)
				continue
			}
			fn(ev)
		}
	}
}
