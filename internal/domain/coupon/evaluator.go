package coupon

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// EvaluateRequest holds the order context a coupon is evaluated against.
type EvaluateRequest struct {
	Code       string
	CustomerID string
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
}

// Evaluator decides whether a coupon applies and computes its discount.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (*Coupon, *Discount, error)
}

// RepoEvaluator implements Evaluator on top of a Repository.
type RepoEvaluator struct {
	repo Repository
}

// NewRepoEvaluator creates a RepoEvaluator backed by the given Repository.
func NewRepoEvaluator(repo Repository) *RepoEvaluator {
	return &RepoEvaluator{repo: repo}
}

// Evaluate looks up the coupon, checks that it is enabled, that neither the
// global nor the per-customer redemption limit is reached and that the order
// meets the minimum amount, then computes the discount. It has no side
// effects: redemptions are reserved separately through Redeemer.
func (e *RepoEvaluator) Evaluate(ctx context.Context, req EvaluateRequest) (*Coupon, *Discount, error) {
	c, err := e.repo.FindByCode(ctx, strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, nil, ErrCouponNotFound
		}
		return nil, nil, errors.Wrap(err, "lookup coupon")
	}
	if !c.Enabled {
		return nil, nil, ErrCouponDisabled
	}

	if c.Limits.Uses > 0 && c.Redemptions >= c.Limits.Uses {
		return nil, nil, ErrRedemptionLimitExceeded
	}

	if c.Limits.User > 0 {
		used, err := e.repo.CustomerRedemptions(ctx, c.ID, req.CustomerID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "count customer redemptions")
		}
		if used >= c.Limits.User {
			return nil, nil, ErrPerCustomerLimitExceeded
		}
	}

	if !MeetsMinimum(c, req.Subtotal, req.Shipping) {
		return nil, nil, &MinimumAmountError{Minimum: c.Limits.MinimumAmount}
	}

	return c, &Discount{
		CouponID: c.ID,
		Code:     c.Code,
		Type:     DiscountLineType,
		Amount:   Compute(c, req.Subtotal, req.Shipping),
	}, nil
}
