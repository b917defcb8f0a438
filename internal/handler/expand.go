package handler

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/parcel-checkout/internal/domain/customer"
	"github.com/xenking/parcel-checkout/internal/domain/order"
	"github.com/xenking/parcel-checkout/internal/domain/product"
)

// relations selects the references expanded into full records.
type relations struct {
	summary        bool
	summaryProduct bool
	payments       bool
	deliveries     bool
	customer       bool
}

// parseRelations parses the comma separated with query parameter.
// summary.product implies summary.
func parseRelations(raw string) (relations, error) {
	var rel relations
	for _, name := range strings.Split(raw, ",") {
		switch name = strings.TrimSpace(name); name {
		case "":
		case "summary":
			rel.summary = true
		case "summary.product":
			rel.summary = true
			rel.summaryProduct = true
		case "payments":
			rel.payments = true
		case "deliveries":
			rel.deliveries = true
		case "customer":
			rel.customer = true
		default:
			return relations{}, errors.Errorf("The relation %q can't be expanded.", name)
		}
	}
	return rel, nil
}

// orderView is the public projection of an order. Relation fields hold ids
// unless expanded.
type orderView struct {
	ID         string          `json:"id"`
	Total      decimal.Decimal `json:"total"`
	Summary    any             `json:"summary"`
	Deliveries any             `json:"deliveries"`
	Payments   any             `json:"payments"`
	Customer   any             `json:"customer"`
	Status     order.Status    `json:"status"`
	Gift       bool            `json:"gift"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type lineItemView struct {
	ID      string          `json:"id"`
	Order   string          `json:"order"`
	Product any             `json:"product"`
	Qty     int             `json:"qty"`
	Price   decimal.Decimal `json:"price"`
}

type customerView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

// expand projects orders of cus, loading the requested relations for all of
// them with one query per relation. Queries run concurrently.
func (h *Handler) expand(ctx context.Context, orders []order.Order, cus *customer.Customer, rel relations) ([]orderView, error) {
	var (
		items      map[string]order.LineItem
		products   map[string]product.Product
		payments   map[string]order.Payment
		deliveries map[string]order.Delivery
	)
	g, gctx := errgroup.WithContext(ctx)
	if rel.summary {
		g.Go(func() error {
			li, err := h.reader.LineItems(gctx, collect(orders, func(o order.Order) []string { return o.Summary }))
			if err != nil {
				return errors.Wrap(err, "line items")
			}
			items = index(li, func(li order.LineItem) string { return li.ID })
			if !rel.summaryProduct {
				return nil
			}
			ids := make([]string, 0, len(li))
			seen := make(map[string]struct{}, len(li))
			for _, item := range li {
				if _, ok := seen[item.ProductID]; !ok {
					seen[item.ProductID] = struct{}{}
					ids = append(ids, item.ProductID)
				}
			}
			ps, err := h.products.GetByIDs(gctx, ids)
			if err != nil {
				return errors.Wrap(err, "products")
			}
			products = index(ps, func(p product.Product) string { return p.ID })
			return nil
		})
	}
	if rel.payments {
		g.Go(func() error {
			ps, err := h.reader.Payments(gctx, collect(orders, func(o order.Order) []string { return o.Payments }))
			if err != nil {
				return errors.Wrap(err, "payments")
			}
			payments = index(ps, func(p order.Payment) string { return p.ID })
			return nil
		})
	}
	if rel.deliveries {
		g.Go(func() error {
			ds, err := h.reader.Deliveries(gctx, collect(orders, func(o order.Order) []string { return o.Deliveries }))
			if err != nil {
				return errors.Wrap(err, "deliveries")
			}
			deliveries = index(ds, func(d order.Delivery) string { return d.ID })
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]orderView, len(orders))
	for i, o := range orders {
		v := orderView{
			ID:         o.ID,
			Total:      o.Total,
			Summary:    refsOrEmpty(o.Summary),
			Deliveries: refsOrEmpty(o.Deliveries),
			Payments:   refsOrEmpty(o.Payments),
			Customer:   o.CustomerID,
			Status:     o.Status,
			Gift:       o.Gift,
			CreatedAt:  o.CreatedAt,
			UpdatedAt:  o.UpdatedAt,
		}
		if rel.summary {
			summary := make([]lineItemView, 0, len(o.Summary))
			for _, li := range pick(items, o.Summary) {
				lv := lineItemView{ID: li.ID, Order: li.OrderID, Product: li.ProductID, Qty: li.Qty, Price: li.Price}
				if p, ok := products[li.ProductID]; ok {
					lv.Product = p
				}
				summary = append(summary, lv)
			}
			v.Summary = summary
		}
		if rel.payments {
			v.Payments = pick(payments, o.Payments)
		}
		if rel.deliveries {
			v.Deliveries = pick(deliveries, o.Deliveries)
		}
		if rel.customer && o.CustomerID == cus.ID {
			v.Customer = customerView{
				ID:        cus.ID,
				Email:     cus.Email,
				FirstName: cus.FirstName,
				LastName:  cus.LastName,
				Phone:     cus.Phone,
			}
		}
		views[i] = v
	}
	return views, nil
}

func collect(orders []order.Order, refs func(order.Order) []string) []string {
	var out []string
	for _, o := range orders {
		out = append(out, refs(o)...)
	}
	return out
}

func index[T any](records []T, id func(T) string) map[string]T {
	m := make(map[string]T, len(records))
	for _, r := range records {
		m[id(r)] = r
	}
	return m
}

// pick returns the records of ids in order, skipping dangling references.
func pick[T any](m map[string]T, ids []string) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if r, ok := m[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func refsOrEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
