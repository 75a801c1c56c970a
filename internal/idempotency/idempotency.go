package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/tropicbook/resort-reservations-and-payments/internal/adapters/redis"
)

// Idempotency caches whole HTTP responses keyed by the client-supplied
// Idempotency-Key header. This covers client retries of the outer API; the
// materializer's exactly-once guarantee does not depend on it.
type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	if key == "" {
		return nil, nil
	}
	cached, err := i.redis.Get(ctx, key)
	if err != nil || cached == nil {
		return nil, err
	}
	return &Response{Status: cached.Status, Result: cached.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	if key == "" {
		return nil
	}
	return i.redis.Set(ctx, key, redisadapter.IdempResponse{Status: resp.Status, Result: resp.Result}, i.ttl)
}
