package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses redelivered webhook events. The upstream provider
// retries deliveries that time out, so the same booking event can arrive
// more than once.
type Deduper interface {
	// Seen marks the event as processed and reports whether it had already
	// been marked by an earlier delivery.
	Seen(ctx context.Context, eventKey string) (bool, error)
}

type redisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper remembers processed event keys in Redis for ttl. The
// invalidation calls themselves are idempotent, so dedup only saves work; a
// Redis outage therefore degrades to processing duplicates, not to dropping
// events.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisDeduper{client: client, ttl: ttl}
}

func (d *redisDeduper) Seen(ctx context.Context, eventKey string) (bool, error) {
	key := fmt.Sprintf("webhook:seen:%s", eventKey)

	ok, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return !ok, nil
}

// NewRedisClient connects to Redis and verifies connectivity before
// returning.
func NewRedisClient(addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
