package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/parcel-checkout/internal/domain/coupon"
)

const (
	findCouponByCodeSQL = `SELECT id, code, type, value, enabled, uses_limit, user_limit,
		minimum_amount, maximum_amount, redemptions
	FROM coupons WHERE UPPER(code) = UPPER($1)`

	customerRedemptionsSQL = `SELECT redemptions FROM coupon_redemptions
	WHERE coupon_id = $1 AND customer_id = $2`

	redeemCouponSQL = `UPDATE coupons SET redemptions = redemptions + 1
	WHERE id = $1 AND (uses_limit = 0 OR redemptions < uses_limit)`

	redeemCustomerSQL = `INSERT INTO coupon_redemptions (coupon_id, customer_id, redemptions)
	SELECT c.id, $2, 1 FROM coupons c WHERE c.id = $1
	ON CONFLICT (coupon_id, customer_id) DO UPDATE
		SET redemptions = coupon_redemptions.redemptions + 1
		WHERE (SELECT user_limit FROM coupons WHERE id = $1) = 0
			OR coupon_redemptions.redemptions < (SELECT user_limit FROM coupons WHERE id = $1)`

	releaseCouponSQL = `UPDATE coupons SET redemptions = GREATEST(redemptions - 1, 0) WHERE id = $1`

	releaseCustomerSQL = `UPDATE coupon_redemptions SET redemptions = GREATEST(redemptions - 1, 0)
	WHERE coupon_id = $1 AND customer_id = $2`

	insertCouponSQL = `INSERT INTO coupons (id, code, type, value, enabled, uses_limit, user_limit,
		minimum_amount, maximum_amount)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT ((UPPER(code))) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Redemption counters live in coupons.redemptions and coupon_redemptions.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by code, case-insensitively.
// Returns coupon.ErrCouponNotFound when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := r.pool.QueryRow(ctx, findCouponByCodeSQL, code).Scan(
		&c.ID, &c.Code, &typ, &c.Value, &c.Enabled,
		&c.Limits.Uses, &c.Limits.User, &c.Limits.MinimumAmount, &c.Limits.MaximumAmount,
		&c.Redemptions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	c.Type = coupon.Type(typ)
	return &c, nil
}

// CustomerRedemptions returns how many times the customer redeemed the coupon.
func (r *CouponRepository) CustomerRedemptions(ctx context.Context, couponID, customerID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, customerRedemptionsSQL, couponID, customerID).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("counting redemptions of coupon %q: %w", couponID, err)
	}
	return n, nil
}

// Redeem increments both redemption counters in one transaction. Each
// increment is conditional on its limit, so concurrent checkouts can never
// exceed a limit.
func (r *CouponRepository) Redeem(ctx context.Context, c *coupon.Coupon, customerID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, redeemCouponSQL, c.ID)
		if err != nil {
			return fmt.Errorf("redeeming coupon %q: %w", c.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrRedemptionLimitExceeded
		}

		tag, err = tx.Exec(ctx, redeemCustomerSQL, c.ID, customerID)
		if err != nil {
			return fmt.Errorf("redeeming coupon %q for customer: %w", c.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrPerCustomerLimitExceeded
		}
		return nil
	})
}

// Release reverts a redemption made by Redeem.
func (r *CouponRepository) Release(ctx context.Context, c *coupon.Coupon, customerID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, releaseCouponSQL, c.ID); err != nil {
			return fmt.Errorf("releasing coupon %q: %w", c.ID, err)
		}
		if _, err := tx.Exec(ctx, releaseCustomerSQL, c.ID, customerID); err != nil {
			return fmt.Errorf("releasing coupon %q for customer: %w", c.ID, err)
		}
		return nil
	})
}

// Insert stores a new coupon. It reports false when a coupon with the same
// code already exists.
func (r *CouponRepository) Insert(ctx context.Context, c *coupon.Coupon) (bool, error) {
	tag, err := r.pool.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, string(c.Type), c.Value, c.Enabled,
		c.Limits.Uses, c.Limits.User, c.Limits.MinimumAmount, c.Limits.MaximumAmount,
	)
	if err != nil {
		return false, fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return tag.RowsAffected() == 1, nil
}
