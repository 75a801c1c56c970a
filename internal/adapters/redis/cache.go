package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetCheckoutLock takes a single-flight lock on a cart so two concurrent
// checkout requests cannot authorize the same items twice.
func (c *Cache) SetCheckoutLock(ctx context.Context, cartID string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "checkout:"+cartID, "1", ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseCheckoutLock(ctx context.Context, cartID string) error {
	return c.client.Del(ctx, "checkout:"+cartID).Err()
}
