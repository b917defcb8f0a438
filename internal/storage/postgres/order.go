package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/parcel-checkout/internal/domain/gateway"
	"github.com/xenking/parcel-checkout/internal/domain/order"
)

const orderColumns = `id, customer_id, subtotal, total, discount, COALESCE(coupon_id, ''), coupon_code,
	gateway_customer_id, gateway_order_id, bill, gift, summary, payments, deliveries, status,
	created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (id, customer_id, subtotal, total, discount, coupon_id,
		coupon_code, gateway_customer_id, gateway_order_id, bill, gift, summary, payments,
		deliveries, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING created_at, updated_at`

	saveOrderSQL = `UPDATE orders SET subtotal = $2, total = $3, discount = $4, coupon_id = $5,
		coupon_code = $6, gateway_order_id = $7, bill = $8, gift = $9, summary = $10,
		payments = $11, deliveries = $12, status = $13, updated_at = now()
	WHERE id = $1
	RETURNING updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getCustomerOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND customer_id = $2`

	countCustomerOrdersSQL = `SELECT count(*) FROM orders WHERE customer_id = $1`

	listCustomerOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE customer_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2 OFFSET $3`

	createLineItemSQL = `INSERT INTO order_line_items (id, order_id, product_id, qty, price)
	VALUES ($1, $2, $3, $4, $5)`

	getLineItemsSQL = `SELECT id, order_id, product_id, qty, price
	FROM order_line_items WHERE id = ANY($1)`

	createPaymentSQL = `INSERT INTO payments (id, order_id, gateway_charge_id, method, status,
		amount, fee, reference, clabe, receiving_account_bank, receiving_account_number,
		paid_at, reference_expiration)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING created_at`

	getPaymentsSQL = `SELECT id, order_id, gateway_charge_id, method, status, amount, fee,
		reference, clabe, receiving_account_bank, receiving_account_number, paid_at,
		reference_expiration, created_at
	FROM payments WHERE id = ANY($1)`

	createDeliverySQL = `INSERT INTO deliveries (id, order_id, origin, destination, amount,
		carrier, type, secured)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING created_at`

	getDeliveriesSQL = `SELECT id, order_id, origin, destination, amount, carrier, type,
		secured, created_at
	FROM deliveries WHERE id = ANY($1)`
)

var (
	_ order.Store  = (*OrderRepository)(nil)
	_ order.Reader = (*OrderRepository)(nil)
)

// OrderRepository persists orders and their related records in PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// InTx runs fn inside a transaction. The transaction commits only when fn
// returns nil.
func (r *OrderRepository) InTx(ctx context.Context, fn func(w order.Writer) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&orderWriter{q: tx})
	})
}

// Get returns the order owned by customerID.
func (r *OrderRepository) Get(ctx context.Context, customerID, id string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, getCustomerOrderSQL, id, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// List returns one page of the customer's orders, newest first.
func (r *OrderRepository) List(ctx context.Context, params order.ListParams) (*order.Page, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countCustomerOrdersSQL, params.CustomerID).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	offset := (params.Page - 1) * params.Limit
	rows, err := r.pool.Query(ctx, listCustomerOrdersSQL, params.CustomerID, params.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}

	pages := 0
	if params.Limit > 0 {
		pages = (total + params.Limit - 1) / params.Limit
	}
	return &order.Page{
		Docs:  docs,
		Total: total,
		Limit: params.Limit,
		Page:  params.Page,
		Pages: pages,
	}, nil
}

// LineItems returns the line items with the given ids in the order of ids.
func (r *OrderRepository) LineItems(ctx context.Context, ids []string) ([]order.LineItem, error) {
	if len(ids) == 0 {
		return []order.LineItem{}, nil
	}
	rows, err := r.pool.Query(ctx, getLineItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting line items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.LineItem, error) {
		var li order.LineItem
		err := row.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.Qty, &li.Price)
		return li, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning line items: %w", err)
	}
	return sortByIDs(ids, items, func(li order.LineItem) string { return li.ID }), nil
}

// Payments returns the payments with the given ids in the order of ids.
func (r *OrderRepository) Payments(ctx context.Context, ids []string) ([]order.Payment, error) {
	if len(ids) == 0 {
		return []order.Payment{}, nil
	}
	rows, err := r.pool.Query(ctx, getPaymentsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Payment, error) {
		var (
			p      order.Payment
			method string
		)
		err := row.Scan(
			&p.ID, &p.OrderID, &p.GatewayChargeID, &method, &p.Status, &p.Amount, &p.Fee,
			&p.Reference, &p.CLABE, &p.ReceivingAccountBank, &p.ReceivingAccountNumber,
			&p.PaidAt, &p.ReferenceExpiration, &p.CreatedAt,
		)
		p.Method = gateway.Method(method)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning payments: %w", err)
	}
	return sortByIDs(ids, payments, func(p order.Payment) string { return p.ID }), nil
}

// Deliveries returns the deliveries with the given ids in the order of ids.
func (r *OrderRepository) Deliveries(ctx context.Context, ids []string) ([]order.Delivery, error) {
	if len(ids) == 0 {
		return []order.Delivery{}, nil
	}
	rows, err := r.pool.Query(ctx, getDeliveriesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting deliveries: %w", err)
	}
	deliveries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Delivery, error) {
		var d order.Delivery
		err := row.Scan(
			&d.ID, &d.OrderID, &d.From, &d.To, &d.Amount, &d.Carrier, &d.Type,
			&d.Secured, &d.CreatedAt,
		)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning deliveries: %w", err)
	}
	return sortByIDs(ids, deliveries, func(d order.Delivery) string { return d.ID }), nil
}

// orderWriter implements order.Writer on a single transaction.
type orderWriter struct {
	q querier
}

func (w *orderWriter) CreateOrder(ctx context.Context, o *order.Order) error {
	o.ID = uuid.New().String()
	err := w.q.QueryRow(ctx, createOrderSQL,
		o.ID, o.CustomerID, o.Subtotal, o.Total, o.Discount, nullIfEmpty(o.CouponID),
		o.CouponCode, o.GatewayCustomerID, o.GatewayOrderID, o.Bill, o.Gift,
		nonNil(o.Summary), nonNil(o.Payments), nonNil(o.Deliveries), string(o.Status),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

func (w *orderWriter) SaveOrder(ctx context.Context, o *order.Order) error {
	err := w.q.QueryRow(ctx, saveOrderSQL,
		o.ID, o.Subtotal, o.Total, o.Discount, nullIfEmpty(o.CouponID), o.CouponCode,
		o.GatewayOrderID, o.Bill, o.Gift, nonNil(o.Summary), nonNil(o.Payments),
		nonNil(o.Deliveries), string(o.Status),
	).Scan(&o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	return nil
}

func (w *orderWriter) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(w.q.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

func (w *orderWriter) CreateLineItem(ctx context.Context, li *order.LineItem) error {
	li.ID = uuid.New().String()
	if _, err := w.q.Exec(ctx, createLineItemSQL, li.ID, li.OrderID, li.ProductID, li.Qty, li.Price); err != nil {
		return fmt.Errorf("creating line item for product %q: %w", li.ProductID, err)
	}
	return nil
}

func (w *orderWriter) CreatePayment(ctx context.Context, p *order.Payment) error {
	p.ID = uuid.New().String()
	err := w.q.QueryRow(ctx, createPaymentSQL,
		p.ID, p.OrderID, p.GatewayChargeID, string(p.Method), p.Status, p.Amount, p.Fee,
		p.Reference, p.CLABE, p.ReceivingAccountBank, p.ReceivingAccountNumber,
		p.PaidAt, p.ReferenceExpiration,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}
	return nil
}

func (w *orderWriter) CreateDelivery(ctx context.Context, d *order.Delivery) error {
	d.ID = uuid.New().String()
	err := w.q.QueryRow(ctx, createDeliverySQL,
		d.ID, d.OrderID, d.From, d.To, d.Amount, d.Carrier, d.Type, d.Secured,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating delivery: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Subtotal, &o.Total, &o.Discount, &o.CouponID, &o.CouponCode,
		&o.GatewayCustomerID, &o.GatewayOrderID, &o.Bill, &o.Gift, &o.Summary, &o.Payments,
		&o.Deliveries, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.CreatedAt = o.CreatedAt.In(time.UTC)
	o.UpdatedAt = o.UpdatedAt.In(time.UTC)
	return &o, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// sortByIDs orders records by their position in ids, dropping unknown ones.
func sortByIDs[T any](ids []string, records []T, id func(T) string) []T {
	byID := make(map[string]T, len(records))
	for _, r := range records {
		byID[id(r)] = r
	}
	out := make([]T, 0, len(ids))
	for _, want := range ids {
		if r, ok := byID[want]; ok {
			out = append(out, r)
		}
	}
	return out
}
