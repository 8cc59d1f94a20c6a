package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSender publishes alerts on a Redis pub/sub channel so other processes
// (dashboards, pagers) can react to them.
type RedisSender struct {
	client  *redis.Client
	channel string
}

// redisAlert is the published payload.
type redisAlert struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRedisSender creates a RedisSender publishing on the given channel.
func NewRedisSender(addr, password string, db int, channel string) *RedisSender {
	return &RedisSender{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		channel: channel,
	}
}

// Send publishes the alert as JSON.
func (r *RedisSender) Send(ctx context.Context, title, message string) error {
	payload, err := json.Marshal(redisAlert{
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal alert: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish on %s: %w", r.channel, err)
	}
	return nil
}

// Name returns the sender identifier.
func (r *RedisSender) Name() string {
	return "redis"
}

// Close releases the underlying Redis connection.
func (r *RedisSender) Close() error {
	return r.client.Close()
}
