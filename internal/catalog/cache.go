package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through product cache. Invalidation is scoped to the
// product ids touched by a write instead of flushing whole collections.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func productKey(id int64) string {
	return fmt.Sprintf("catalog:product:%d", id)
}

// GetProduct returns the cached product, if present.
func (c *Cache) GetProduct(ctx context.Context, id int64) (Product, bool) {
	if c == nil || c.client == nil {
		return Product{}, false
	}
	payload, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		return Product{}, false
	}
	var p Product
	if err := json.Unmarshal(payload, &p); err != nil {
		return Product{}, false
	}
	return p, true
}

// SetProduct stores the product with the configured TTL.
func (c *Cache) SetProduct(ctx context.Context, p Product) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, productKey(p.ID), payload, c.ttl).Err()
}

// Invalidate drops the cached entries for the given product ids.
func (c *Cache) Invalidate(ctx context.Context, ids ...int64) error {
	if c == nil || c.client == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
