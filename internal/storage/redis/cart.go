package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/parcel-checkout/internal/domain/cart"
)

var _ cart.Provider = (*CartStore)(nil)

// CartStore reads and writes customer carts stored as JSON under
// checkout:cart:<customer>.
type CartStore struct {
	client cmdable
}

// NewCartStore returns a CartStore over the given client.
func NewCartStore(client cmdable) *CartStore {
	return &CartStore{client: client}
}

// CartKey returns the key holding the customer's cart.
func CartKey(customerID string) string {
	return buildKey("cart", customerID)
}

// Get returns the customer's cart or cart.ErrNotFound.
func (s *CartStore) Get(ctx context.Context, customerID string) (*cart.Cart, error) {
	raw, err := s.client.Get(ctx, CartKey(customerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart: %w", err)
	}
	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	return &c, nil
}

// Put stores the customer's cart with the given TTL. Zero TTL keeps it
// until deleted.
func (s *CartStore) Put(ctx context.Context, customerID string, c *cart.Cart, ttl time.Duration) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	if err := s.client.Set(ctx, CartKey(customerID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("storing cart: %w", err)
	}
	return nil
}
