package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/parcel-checkout/internal/domain/gateway"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Order is a placed checkout. Summary, Payments and Deliveries hold the ids
// of the related records in creation order.
type Order struct {
	ID                string          `json:"id"`
	CustomerID        string          `json:"customer"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Total             decimal.Decimal `json:"total"`
	Discount          decimal.Decimal `json:"discount"`
	CouponID          string          `json:"coupon,omitempty"`
	CouponCode        string          `json:"couponCode,omitempty"`
	GatewayCustomerID string          `json:"gatewayCustomerId,omitempty"`
	GatewayOrderID    string          `json:"gatewayOrderId,omitempty"`
	Bill              bool            `json:"bill"`
	Gift              bool            `json:"gift"`
	Summary           []string        `json:"summary"`
	Payments          []string        `json:"payments"`
	Deliveries        []string        `json:"deliveries"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// LineItem is a per-product snapshot of quantity and price at checkout.
type LineItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order"`
	ProductID string          `json:"product"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

// Payment records how an order was (or will be) paid.
type Payment struct {
	ID                     string          `json:"id"`
	OrderID                string          `json:"order"`
	GatewayChargeID        string          `json:"gatewayChargeId,omitempty"`
	Method                 gateway.Method  `json:"method"`
	Status                 string          `json:"status"`
	Amount                 decimal.Decimal `json:"amount"`
	Fee                    decimal.Decimal `json:"fee"`
	Reference              string          `json:"reference,omitempty"`
	CLABE                  string          `json:"clabe,omitempty"`
	ReceivingAccountBank   string          `json:"receivingAccountBank,omitempty"`
	ReceivingAccountNumber string          `json:"receivingAccountNumber,omitempty"`
	PaidAt                 *time.Time      `json:"paidAt,omitempty"`
	ReferenceExpiration    *time.Time      `json:"referenceExpiration,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
}

// Point is a GeoJSON point. Coordinates are [longitude, latitude].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewPoint returns a GeoJSON point for the given coordinates.
func NewPoint(lng, lat float64) Point {
	return Point{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

// PostalAddress is a street address of a delivery endpoint.
type PostalAddress struct {
	Line1          string `json:"line1"`
	Line2          string `json:"line2,omitempty"`
	Line3          string `json:"line3,omitempty"`
	BetweenStreets string `json:"betweenStreets,omitempty"`
	References     string `json:"references,omitempty"`
	Zip            string `json:"zip"`
	City           string `json:"city"`
	State          string `json:"state"`
	Country        string `json:"country"`
}

// Contact is a person at one end of a delivery.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Origin is the pickup end of a delivery.
type Origin struct {
	Address  PostalAddress `json:"address"`
	Location Point         `json:"location"`
	Sender   Contact       `json:"sender"`
}

// Destination is the drop-off end of a delivery.
type Destination struct {
	Address  PostalAddress `json:"address"`
	Location Point         `json:"location"`
	Receiver Contact       `json:"receiver"`
}

// Delivery is the shipment created for an order.
type Delivery struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order"`
	From      Origin          `json:"from"`
	To        Destination     `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Carrier   string          `json:"carrier"`
	Type      string          `json:"type"`
	Secured   bool            `json:"secured"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Aggregate is an order with every record written for it at checkout.
type Aggregate struct {
	Order     Order
	LineItems []LineItem
	Payment   Payment
	Delivery  Delivery
}

// Writer is the set of writes available inside a persistence transaction.
// Create methods assign the record id and timestamps.
type Writer interface {
	CreateOrder(ctx context.Context, o *Order) error
	CreateLineItem(ctx context.Context, li *LineItem) error
	SaveOrder(ctx context.Context, o *Order) error
	CreatePayment(ctx context.Context, p *Payment) error
	CreateDelivery(ctx context.Context, d *Delivery) error
	GetOrder(ctx context.Context, id string) (*Order, error)
}

// Store runs a function inside a single transaction. Any error returned by fn
// rolls back every write made through the Writer.
type Store interface {
	InTx(ctx context.Context, fn func(w Writer) error) error
}

// ListParams selects a page of a customer's orders.
type ListParams struct {
	CustomerID string
	Page       int
	Limit      int
}

// Page is one page of orders, newest first.
type Page struct {
	Docs  []Order
	Total int
	Limit int
	Page  int
	Pages int
}

// Reader provides read access to orders and their related records.
type Reader interface {
	// Get returns the order with id owned by customerID, or ErrNotFound.
	Get(ctx context.Context, customerID, id string) (*Order, error)
	List(ctx context.Context, params ListParams) (*Page, error)
	LineItems(ctx context.Context, ids []string) ([]LineItem, error)
	Payments(ctx context.Context, ids []string) ([]Payment, error)
	Deliveries(ctx context.Context, ids []string) ([]Delivery, error)
}
