package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		coupon   *Coupon
		subtotal decimal.Decimal
		shipping decimal.Decimal
		want     decimal.Decimal
	}{
		{
			name:     "percentage uncapped covers subtotal plus shipping",
			coupon:   &Coupon{Type: TypePercentage, Value: d("10")},
			subtotal: d("1000"),
			shipping: d("150"),
			want:     d("115"),
		},
		{
			name: "percentage capped at maximum amount",
			coupon: &Coupon{
				Type:   TypePercentage,
				Value:  d("10"),
				Limits: Limits{MaximumAmount: d("50")},
			},
			subtotal: d("1000"),
			shipping: d("150"),
			want:     d("50"),
		},
		{
			name: "percentage below cap is not capped",
			coupon: &Coupon{
				Type:   TypePercentage,
				Value:  d("10"),
				Limits: Limits{MaximumAmount: d("500")},
			},
			subtotal: d("1000"),
			shipping: d("150"),
			want:     d("115"),
		},
		{
			name:     "percentage rounds to 2 dp",
			coupon:   &Coupon{Type: TypePercentage, Value: d("33.33")},
			subtotal: d("10.01"),
			shipping: decimal.Zero,
			// 10.01 * 33.33 / 100 = 3.336333 -> 3.34
			want: d("3.34"),
		},
		{
			name:     "amount is flat",
			coupon:   &Coupon{Type: TypeAmount, Value: d("200")},
			subtotal: d("1000"),
			shipping: d("150"),
			want:     d("200"),
		},
		{
			name:     "amount is not capped at subtotal",
			coupon:   &Coupon{Type: TypeAmount, Value: d("1500")},
			subtotal: d("1000"),
			shipping: d("150"),
			want:     d("1500"),
		},
		{
			name:     "unknown type grants nothing",
			coupon:   &Coupon{Type: Type("bogus"), Value: d("10")},
			subtotal: d("1000"),
			shipping: d("150"),
			want:     decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.coupon, tt.subtotal, tt.shipping)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestMeetsMinimum(t *testing.T) {
	c := &Coupon{Limits: Limits{MinimumAmount: d("1000")}}

	assert.True(t, MeetsMinimum(c, d("900"), d("150")), "1050 reaches 1000")
	assert.True(t, MeetsMinimum(c, d("850"), d("150")), "exactly 1000 reaches 1000")
	assert.False(t, MeetsMinimum(c, d("800"), d("150")), "950 is below 1000")
	assert.True(t, MeetsMinimum(&Coupon{}, decimal.Zero, decimal.Zero), "no minimum configured")
}
