package handler

import (
	"context"

	"github.com/xenking/parcel-checkout/internal/domain/cart"
	"github.com/xenking/parcel-checkout/internal/domain/customer"
	"github.com/xenking/parcel-checkout/internal/domain/order"
	"github.com/xenking/parcel-checkout/internal/domain/product"
)

type mockCreator struct {
	got *order.Checkout
	agg *order.Aggregate
	err error
}

func (m *mockCreator) CreateOrder(_ context.Context, co order.Checkout) (*order.Aggregate, error) {
	m.got = &co
	return m.agg, m.err
}

type mockCarts struct {
	carts map[string]*cart.Cart
	err   error
}

func (m *mockCarts) Get(_ context.Context, customerID string) (*cart.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[customerID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

type mockReader struct {
	orders     []order.Order
	lineItems  []order.LineItem
	payments   []order.Payment
	deliveries []order.Delivery
	listed     *order.ListParams
}

func (m *mockReader) Get(_ context.Context, customerID, id string) (*order.Order, error) {
	for _, o := range m.orders {
		if o.ID == id && o.CustomerID == customerID {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockReader) List(_ context.Context, params order.ListParams) (*order.Page, error) {
	m.listed = &params
	var docs []order.Order
	for _, o := range m.orders {
		if o.CustomerID == params.CustomerID {
			docs = append(docs, o)
		}
	}
	return &order.Page{Docs: docs, Total: len(docs), Limit: params.Limit, Page: params.Page, Pages: 1}, nil
}

func (m *mockReader) LineItems(_ context.Context, ids []string) ([]order.LineItem, error) {
	return filter(m.lineItems, ids, func(li order.LineItem) string { return li.ID }), nil
}

func (m *mockReader) Payments(_ context.Context, ids []string) ([]order.Payment, error) {
	return filter(m.payments, ids, func(p order.Payment) string { return p.ID }), nil
}

func (m *mockReader) Deliveries(_ context.Context, ids []string) ([]order.Delivery, error) {
	return filter(m.deliveries, ids, func(d order.Delivery) string { return d.ID }), nil
}

type mockProducts struct {
	products []product.Product
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	return filter(m.products, ids, func(p product.Product) string { return p.ID }), nil
}

type mockCustomers struct {
	customers map[string]*customer.Customer
}

func (m *mockCustomers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func filter[T any](records []T, ids []string, id func(T) string) []T {
	want := make(map[string]bool, len(ids))
	for _, i := range ids {
		want[i] = true
	}
	var out []T
	for _, r := range records {
		if want[id(r)] {
			out = append(out, r)
		}
	}
	return out
}
