package order

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResolvedCache remembers orders that have left UNPAID. An order never
// returns to UNPAID, so a hit can be answered as already resolved without
// opening a transaction. Misses and errors always fall through to the store.
type ResolvedCache interface {
	IsResolved(ctx context.Context, orderID uint) (bool, error)
	MarkResolved(ctx context.Context, orderID uint) error
}

type NopResolvedCache struct{}

func (NopResolvedCache) IsResolved(context.Context, uint) (bool, error) { return false, nil }
func (NopResolvedCache) MarkResolved(context.Context, uint) error       { return nil }

type RedisResolvedCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResolvedCache(client *redis.Client, ttl time.Duration) *RedisResolvedCache {
	return &RedisResolvedCache{client: client, ttl: ttl}
}

func resolvedKey(orderID uint) string {
	return fmt.Sprintf("order:resolved:%d", orderID)
}

func (c *RedisResolvedCache) IsResolved(ctx context.Context, orderID uint) (bool, error) {
	n, err := c.client.Exists(ctx, resolvedKey(orderID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisResolvedCache) MarkResolved(ctx context.Context, orderID uint) error {
	return c.client.Set(ctx, resolvedKey(orderID), "1", c.ttl).Err()
}
