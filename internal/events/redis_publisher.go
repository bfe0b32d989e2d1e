package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "charging.events"

// RedisPublisher pushes domain events onto a redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher builds a publisher for the given channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish serializes the event and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}
