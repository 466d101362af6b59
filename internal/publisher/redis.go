// Package publisher fans ticker snapshots and fired events out to Redis for
// downstream consumers. The session core itself persists nothing; this is
// daemon-side plumbing.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/event"
)

// RedisPublisher publishes snapshots to Redis Streams and Pub/Sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher and verifies the connection.
func NewRedisPublisher(addr string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// PublishTicker publishes a snapshot to the instrument's stream (bounded
// history for replay) and to Pub/Sub for live consumers.
func (p *RedisPublisher) PublishTicker(ctx context.Context, isin string, snap *event.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	streamKey := fmt.Sprintf("ticker:%s", isin)

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err(); err != nil {
		return err
	}

	return p.client.Publish(ctx, streamKey, string(data)).Err()
}

// PublishEvent publishes a fired event verdict to the events stream.
func (p *RedisPublisher) PublishEvent(ctx context.Context, result *event.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "events",
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
}
