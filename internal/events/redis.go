package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans events out over redis pub/sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to redis and verifies the connection with a PING.
func NewRedisPublisher(ctx context.Context, options *redis.Options, channel string) (*RedisPublisher, error) {
	if strings.TrimSpace(channel) == "" {
		return nil, errEmptyChannel
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("events: redis ping: %w", err)
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// PublishVersionPublished sends the event as JSON on the configured channel.
func (p *RedisPublisher) PublishVersionPublished(ctx context.Context, event VersionPublished) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal version published: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
