// Package handler implements the checkout HTTP API on top of chi.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/parcel-checkout/internal/domain/cart"
	"github.com/xenking/parcel-checkout/internal/domain/order"
	"github.com/xenking/parcel-checkout/internal/domain/product"
)

// OrderCreator runs checkouts. It is implemented by *order.Service.
type OrderCreator interface {
	CreateOrder(ctx context.Context, co order.Checkout) (*order.Aggregate, error)
}

var _ OrderCreator = (*order.Service)(nil)

// Handler serves the order endpoints. Every route expects the customer
// stored in the request context by SecurityHandler.Authenticate.
type Handler struct {
	orders   OrderCreator
	carts    cart.Provider
	reader   order.Reader
	products product.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders OrderCreator,
	carts cart.Provider,
	reader order.Reader,
	products product.Repository,
) *Handler {
	return &Handler{
		orders:   orders,
		carts:    carts,
		reader:   reader,
		products: products,
	}
}

// Register mounts the order routes on r. The create middlewares wrap only
// POST /orders.
func (h *Handler) Register(r chi.Router, create ...func(http.Handler) http.Handler) {
	r.With(create...).Post("/orders", h.CreateOrder)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{id}", h.GetOrder)
}
