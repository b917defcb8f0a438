package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/parcel-checkout/internal/domain/cart"
)

type mockCmdable struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttl:  make(map[string]time.Duration),
	}
}

func toString(v any) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	panic("unexpected value type")
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.data[key] = toString(value)
	m.ttl[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = toString(value)
	m.ttl[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestCartStore(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	store := NewCartStore(mock)

	_, err := store.Get(ctx, "cus-1")
	require.ErrorIs(t, err, cart.ErrNotFound)

	in := &cart.Cart{
		Content:  []cart.Item{{ProductID: "p1", Qty: 2, Price: decimal.NewFromInt(500)}},
		Subtotal: decimal.NewFromInt(1000),
		Total:    decimal.NewFromInt(1000),
	}
	require.NoError(t, store.Put(ctx, "cus-1", in, time.Hour))
	assert.Equal(t, time.Hour, mock.ttl["checkout:cart:cus-1"])

	got, err := store.Get(ctx, "cus-1")
	require.NoError(t, err)
	require.Len(t, got.Content, 1)
	assert.Equal(t, "p1", got.Content[0].ProductID)
	assert.Equal(t, 2, got.Content[0].Qty)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(1000)))
}

func TestCartStore_DecodesExternalFormat(t *testing.T) {
	mock := newMockCmdable()
	mock.data[CartKey("cus-2")] = `{"content":[{"productId":"p9","qty":1,"price":"199.90"}],"subtotal":199.9,"total":199.9}`

	got, err := NewCartStore(mock).Get(context.Background(), "cus-2")
	require.NoError(t, err)
	assert.True(t, got.Content[0].Price.Equal(decimal.RequireFromString("199.90")))
	assert.True(t, got.Subtotal.Equal(decimal.RequireFromString("199.9")))
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	store := NewIdempotencyStore(mock)
	key := store.Key("cus-1|POST|/orders", "abc")
	assert.Equal(t, "checkout:idempotency:cus-1|POST|/orders:abc", key)

	v, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, v)

	ok, err := store.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, key, "done", time.Hour))
	v, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	require.NoError(t, store.Del(ctx, key))
	v, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, v)
}
