package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the customer has no cart in their session.
var ErrNotFound = errors.New("cart not found")

// Item is a single cart entry with the price snapshot taken by the cart owner.
type Item struct {
	ProductID string          `json:"productId"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

// Cart is the externally computed shopping cart attached to a checkout
// request. The checkout core only reads it.
type Cart struct {
	Content  []Item          `json:"content"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
}

// IsEmpty reports whether the cart has no entries.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Content) == 0
}

// Provider loads the current cart for a customer.
type Provider interface {
	Get(ctx context.Context, customerID string) (*Cart, error)
}
