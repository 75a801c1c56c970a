package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys are namespaced so the intent-creation replay cache never collides
// with the rate-limit and checkout-lock keys sharing the instance.
const idempKeyPrefix = "rsv:idemp:"

// Idempotency stores HTTP responses for replay when a client retries a
// payment-intent request under the same Idempotency-Key, so a retried POST
// cannot authorize the gateway twice.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status int
	Result []byte
}

// Get returns the recorded response for key, or nil when the key was never
// seen (or its TTL lapsed).
func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	err = json.Unmarshal(val, &resp)
	return &resp, err
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, idempKeyPrefix+key, data, ttl).Err()
}
