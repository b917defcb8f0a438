package order

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/xenking/parcel-checkout/internal/domain/coupon"
	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

// --- Mock implementations ---

// memStore stages writes per transaction and commits them only when the
// callback succeeds.
type memStore struct {
	orders     map[string]Order
	lineItems  map[string]LineItem
	payments   map[string]Payment
	deliveries map[string]Delivery

	// failOn names a Writer method that returns an error.
	failOn string
	calls  []string
	seq    int
}

func newMemStore() *memStore {
	return &memStore{
		orders:     map[string]Order{},
		lineItems:  map[string]LineItem{},
		payments:   map[string]Payment{},
		deliveries: map[string]Delivery{},
	}
}

func (m *memStore) InTx(_ context.Context, fn func(w Writer) error) error {
	tx := &memTx{
		store:      m,
		orders:     maps.Clone(m.orders),
		lineItems:  maps.Clone(m.lineItems),
		payments:   maps.Clone(m.payments),
		deliveries: maps.Clone(m.deliveries),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.orders, m.lineItems, m.payments, m.deliveries = tx.orders, tx.lineItems, tx.payments, tx.deliveries
	return nil
}

type memTx struct {
	store      *memStore
	orders     map[string]Order
	lineItems  map[string]LineItem
	payments   map[string]Payment
	deliveries map[string]Delivery
}

func (t *memTx) step(name string) (string, error) {
	t.store.calls = append(t.store.calls, name)
	if t.store.failOn == name {
		return "", fmt.Errorf("%s: connection reset", name)
	}
	t.store.seq++
	return fmt.Sprintf("%s-%d", name, t.store.seq), nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order) error {
	id, err := t.step("CreateOrder")
	if err != nil {
		return err
	}
	o.ID = id
	o.CreatedAt = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	o.UpdatedAt = o.CreatedAt
	t.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *memTx) CreateLineItem(_ context.Context, li *LineItem) error {
	id, err := t.step("CreateLineItem")
	if err != nil {
		return err
	}
	li.ID = id
	t.lineItems[li.ID] = *li
	return nil
}

func (t *memTx) SaveOrder(_ context.Context, o *Order) error {
	if _, err := t.step("SaveOrder"); err != nil {
		return err
	}
	if _, ok := t.orders[o.ID]; !ok {
		return ErrNotFound
	}
	t.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, p *Payment) error {
	id, err := t.step("CreatePayment")
	if err != nil {
		return err
	}
	p.ID = id
	t.payments[p.ID] = *p
	return nil
}

func (t *memTx) CreateDelivery(_ context.Context, d *Delivery) error {
	id, err := t.step("CreateDelivery")
	if err != nil {
		return err
	}
	d.ID = id
	t.deliveries[d.ID] = *d
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id string) (*Order, error) {
	if _, err := t.step("GetOrder"); err != nil {
		return nil, err
	}
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func cloneOrder(o Order) Order {
	o.Summary = slices.Clone(o.Summary)
	o.Payments = slices.Clone(o.Payments)
	o.Deliveries = slices.Clone(o.Deliveries)
	return o
}

type mockEvaluator struct {
	coupon   *coupon.Coupon
	discount *coupon.Discount
	err      error
	calls    int
}

func (m *mockEvaluator) Evaluate(_ context.Context, _ coupon.EvaluateRequest) (*coupon.Coupon, *coupon.Discount, error) {
	m.calls++
	return m.coupon, m.discount, m.err
}

type mockRedeemer struct {
	redeemErr  error
	releaseErr error
	redeemed   int
	released   int
}

func (m *mockRedeemer) Redeem(_ context.Context, _ *coupon.Coupon, _ string) error {
	if m.redeemErr != nil {
		return m.redeemErr
	}
	m.redeemed++
	return nil
}

func (m *mockRedeemer) Release(_ context.Context, _ *coupon.Coupon, _ string) error {
	m.released++
	return m.releaseErr
}

type mockCharger struct {
	result *gateway.Result
	err    error
	params []gateway.OrderParams
}

func (m *mockCharger) ChargeOrder(_ context.Context, params gateway.OrderParams) (*gateway.Result, error) {
	m.params = append(m.params, params)
	return m.result, m.err
}

type mockPublisher struct {
	events []*Aggregate
	err    error
}

func (m *mockPublisher) OrderPlaced(_ context.Context, agg *Aggregate) error {
	m.events = append(m.events, agg)
	return m.err
}

// blockingPublisher waits for its context, like a writer retrying against an
// unreachable broker.
type blockingPublisher struct {
	deadline bool
}

func (b *blockingPublisher) OrderPlaced(ctx context.Context, _ *Aggregate) error {
	_, b.deadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}
