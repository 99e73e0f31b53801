package bans

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the channel bans are published on.
const DefaultRedisChannel = "tkl"

// RedisPropagator stores each ban as a hash that expires with the ban and
// publishes it so peer servers can apply it.
type RedisPropagator struct {
	client  *redis.Client
	channel string
}

// NewRedisPropagator constructs a Redis-backed propagator. An empty channel
// selects DefaultRedisChannel.
func NewRedisPropagator(client *redis.Client, channel string) *RedisPropagator {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPropagator{client: client, channel: channel}
}

// Name implements Propagator.
func (p *RedisPropagator) Name() string { return "redis" }

func (p *RedisPropagator) banKey(req Request) string {
	return fmt.Sprintf("tkl:%s:%s", req.Kind, req.Mask())
}

// Propagate implements Propagator.
func (p *RedisPropagator) Propagate(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode ban: %w", err)
	}

	key := p.banKey(req)
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, serializeBan(req))
	if ttl := time.Until(req.ExpireAt); !req.ExpireAt.IsZero() && ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	pipe.Publish(ctx, p.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("propagate %s: %w", key, err)
	}
	return nil
}

func serializeBan(req Request) map[string]interface{} {
	expireAt := ""
	if !req.ExpireAt.IsZero() {
		expireAt = req.ExpireAt.Format(time.RFC3339Nano)
	}
	return map[string]interface{}{
		"kind":      req.Kind,
		"user":      req.User,
		"host":      req.Host,
		"set_by":    req.SetBy,
		"set_at":    req.SetAt.Format(time.RFC3339Nano),
		"expire_at": expireAt,
		"reason":    req.Reason,
		"country":   req.Country,
	}
}
