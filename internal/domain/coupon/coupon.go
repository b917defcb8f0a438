package coupon

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypeAmount subtracts a flat amount from the order.
	TypeAmount Type = "amount"
	// TypePercentage subtracts a percentage of subtotal plus shipping,
	// optionally capped by Limits.MaximumAmount.
	TypePercentage Type = "percentage"
)

// DiscountLineType is the discount line type sent to the payment gateway.
const DiscountLineType = "coupon"

var (
	// ErrCouponNotFound is returned when no coupon matches the code.
	ErrCouponNotFound = errors.New("The coupon code doesn't exist.")
	// ErrCouponDisabled is returned when the coupon exists but is switched off.
	ErrCouponDisabled = errors.New("The coupon is not available.")
	// ErrRedemptionLimitExceeded is returned when the global uses limit is reached.
	ErrRedemptionLimitExceeded = errors.New("The coupon has reached its redemption limit.")
	// ErrPerCustomerLimitExceeded is returned when the customer used up their share.
	ErrPerCustomerLimitExceeded = errors.New("You have used this coupon.")
	// ErrMinimumAmountNotMet is the sentinel wrapped by MinimumAmountError.
	ErrMinimumAmountNotMet = errors.New("minimum amount not met")
)

// MinimumAmountError reports that the order total is below the coupon's
// configured minimum.
type MinimumAmountError struct {
	Minimum decimal.Decimal
}

func (e *MinimumAmountError) Error() string {
	return fmt.Sprintf("The minimum amount to apply this coupon is $%s", e.Minimum.StringFixed(2))
}

// Unwrap lets errors.Is match ErrMinimumAmountNotMet.
func (e *MinimumAmountError) Unwrap() error {
	return ErrMinimumAmountNotMet
}

// Limits constrains when and how often a coupon may be redeemed. Zero values
// disable the respective limit.
type Limits struct {
	Uses          int
	User          int
	MinimumAmount decimal.Decimal
	MaximumAmount decimal.Decimal
}

// Coupon is an externally administered discount code.
type Coupon struct {
	ID      string
	Code    string
	Type    Type
	Value   decimal.Decimal
	Enabled bool
	Limits  Limits
	// Redemptions is the stored global redemption counter.
	Redemptions int
}

// Discount is the outcome of a successful coupon evaluation.
type Discount struct {
	CouponID string
	Code     string
	Type     string
	Amount   decimal.Decimal
}

// Repository provides coupon lookups and redemption bookkeeping.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CustomerRedemptions(ctx context.Context, couponID, customerID string) (int, error)
	Redeemer
}

// Redeemer reserves and releases coupon redemptions. Redeem must be an
// atomic conditional increment: it fails with ErrRedemptionLimitExceeded or
// ErrPerCustomerLimitExceeded instead of exceeding a limit.
type Redeemer interface {
	Redeem(ctx context.Context, c *Coupon, customerID string) error
	Release(ctx context.Context, c *Coupon, customerID string) error
}
