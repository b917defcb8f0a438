package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Compute returns the discount a coupon grants for an order with the given
// subtotal and shipping amount, rounded to 2 decimal places.
func Compute(c *Coupon, subtotal, shipping decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case TypeAmount:
		amount = c.Value
	case TypePercentage:
		amount = subtotal.Add(shipping).Mul(c.Value).Div(hundred)
		if limit := c.Limits.MaximumAmount; limit.IsPositive() && amount.GreaterThan(limit) {
			amount = limit
		}
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

// MeetsMinimum reports whether subtotal plus shipping reaches the coupon's
// minimum order amount.
func MeetsMinimum(c *Coupon, subtotal, shipping decimal.Decimal) bool {
	minimum := c.Limits.MinimumAmount
	if !minimum.IsPositive() {
		return true
	}
	return !subtotal.Add(shipping).LessThan(minimum)
}
