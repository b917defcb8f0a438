package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/internal/domain/cart"
	"github.com/xenking/parcel-checkout/internal/domain/order"
	"github.com/xenking/parcel-checkout/pkg/httperr"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	maxPage          = 100_000
	maxBodySize      = 1 << 20
)

type createOrderResponse struct {
	Payment  order.Payment  `json:"payment"`
	Order    order.Order    `json:"order"`
	Delivery order.Delivery `json:"delivery"`
}

type dataResponse struct {
	Data any `json:"data"`
}

type pageResponse struct {
	Docs  []orderView `json:"docs"`
	Total int         `json:"total"`
	Limit int         `json:"limit"`
	Page  int         `json:"page"`
	Pages int         `json:"pages"`
}

// CreateOrder checks out the customer's current cart.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cus, ok := CustomerFromContext(ctx)
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, "")
		return
	}

	var req order.CheckoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		httperr.Write(w, http.StatusBadRequest, "The request body is not valid JSON.")
		return
	}

	// A missing cart checks out as an empty one.
	c, err := h.carts.Get(ctx, cus.ID)
	if err != nil && !errors.Is(err, cart.ErrNotFound) {
		zctx.From(ctx).Error("Load cart", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, "")
		return
	}

	agg, err := h.orders.CreateOrder(ctx, order.Checkout{
		Customer: cus,
		Cart:     c,
		Request:  req,
		Headers:  r.Header,
	})
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		Payment:  agg.Payment,
		Order:    agg.Order,
		Delivery: agg.Delivery,
	})
}

// GetOrder returns one order of the customer.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cus, ok := CustomerFromContext(ctx)
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, "")
		return
	}
	rel, err := parseRelations(r.URL.Query().Get("with"))
	if err != nil {
		httperr.Write(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	o, err := h.reader.Get(ctx, cus.ID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			httperr.Write(w, http.StatusNotFound, "Order not found.")
			return
		}
		zctx.From(ctx).Error("Get order", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, "")
		return
	}

	views, err := h.expand(ctx, []order.Order{*o}, cus, rel)
	if err != nil {
		zctx.From(ctx).Error("Expand order", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: views[0]})
}

// ListOrders returns a page of the customer's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cus, ok := CustomerFromContext(ctx)
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, "")
		return
	}
	q := r.URL.Query()
	rel, err := parseRelations(q.Get("with"))
	if err != nil {
		httperr.Write(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	page, err := positiveParam(q.Get("page"), 1)
	if err != nil {
		httperr.Write(w, http.StatusUnprocessableEntity, "The page must be a positive integer.")
		return
	}
	if page > maxPage {
		httperr.Write(w, http.StatusUnprocessableEntity, fmt.Sprintf("The page must be at most %d.", maxPage))
		return
	}
	limit, err := positiveParam(q.Get("limit"), defaultPageLimit)
	if err != nil {
		httperr.Write(w, http.StatusUnprocessableEntity, "The limit must be a positive integer.")
		return
	}
	limit = min(limit, maxPageLimit)

	p, err := h.reader.List(ctx, order.ListParams{
		CustomerID: cus.ID,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		zctx.From(ctx).Error("List orders", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, "")
		return
	}
	docs, err := h.expand(ctx, p.Docs, cus, rel)
	if err != nil {
		zctx.From(ctx).Error("Expand orders", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: pageResponse{
		Docs:  docs,
		Total: p.Total,
		Limit: p.Limit,
		Page:  p.Page,
		Pages: p.Pages,
	}})
}

func positiveParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.Errorf("%d is not positive", n)
	}
	return n, nil
}
