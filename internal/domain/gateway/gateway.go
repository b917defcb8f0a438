package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Method is the way a customer pays for an order.
type Method string

const (
	MethodCard Method = "card"
	// MethodOXXO is a cash voucher paid at a convenience store.
	MethodOXXO Method = "oxxo"
	// MethodSPEI is an interbank transfer to a generated CLABE.
	MethodSPEI Method = "spei"
	// MethodCoupon marks orders fully covered by a discount. It never
	// reaches the gateway.
	MethodCoupon Method = "coupon"
)

// Deferred reports whether the method settles after checkout and therefore
// carries an expiration deadline.
func (m Method) Deferred() bool {
	return m == MethodOXXO || m == MethodSPEI
}

// ChargeStatusPaid is the charge status reported for settled payments.
const ChargeStatusPaid = "paid"

// LineItem is a product line of a gateway order.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ShippingLine is a shipping charge of a gateway order.
type ShippingLine struct {
	Amount  decimal.Decimal
	Carrier string
}

// DiscountLine is a discount applied to a gateway order.
type DiscountLine struct {
	Code   string
	Type   string
	Amount decimal.Decimal
}

// Address is the receiver's postal address as the gateway expects it.
type Address struct {
	Street         string
	Reference      string
	City           string
	State          string
	Zip            string
	Country        string
	BetweenStreets string
	Residential    bool
}

// Receiver is the person who receives the shipment.
type Receiver struct {
	Name    string
	Phone   string
	Email   string
	Address Address
}

// PaymentMethod selects how the order is charged. Token is set for card
// payments, ExpiresAt for deferred methods.
type PaymentMethod struct {
	Type      Method
	Token     string
	ExpiresAt time.Time
}

// OrderParams is the normalized order submitted to a payment gateway.
type OrderParams struct {
	Currency      string
	CustomerID    string
	LineItems     []LineItem
	ShippingLines []ShippingLine
	DiscountLines []DiscountLine
	Metadata      map[string]string
	Receiver      Receiver
	PaymentMethod PaymentMethod
}

// Result is the gateway's view of the created order and its charge.
type Result struct {
	OrderID      string
	ChargeID     string
	ChargeStatus string
	Amount       decimal.Decimal
	Fee          decimal.Decimal

	// Reference is the cash voucher reference (oxxo).
	Reference string
	// CLABE and the receiving account fields are set for bank transfers (spei).
	CLABE                  string
	ReceivingAccountBank   string
	ReceivingAccountNumber string
}

// Charger creates an order with a charge at the payment gateway.
type Charger interface {
	ChargeOrder(ctx context.Context, params OrderParams) (*Result, error)
}

// Error is a failure reported by a payment gateway. Payload holds the
// provider's raw error body.
type Error struct {
	Provider string
	Status   int
	Type     string
	Message  string
	Payload  []byte
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Type, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
