package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore keeps idempotency records under checkout:idempotency:<scope>.
type IdempotencyStore struct {
	client cmdable
}

// NewIdempotencyStore returns an IdempotencyStore over the given client.
func NewIdempotencyStore(client cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Key returns the namespaced key for an idempotency key within scope.
func (s *IdempotencyStore) Key(scope, id string) string {
	return buildKey("idempotency", scope, id)
}

// Get returns the stored record, or "" and no error when absent.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("getting idempotency record: %w", err)
	}
	return v, nil
}

// SetNX stores value only if key is absent.
func (s *IdempotencyStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserving idempotency key: %w", err)
	}
	return ok, nil
}

// Set overwrites the record at key.
func (s *IdempotencyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("storing idempotency record: %w", err)
	}
	return nil
}

// Del removes the record at key.
func (s *IdempotencyStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting idempotency record: %w", err)
	}
	return nil
}
