package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/internal/domain/coupon"
	"github.com/xenking/parcel-checkout/internal/domain/gateway"
	"github.com/xenking/parcel-checkout/internal/domain/order"
	"github.com/xenking/parcel-checkout/pkg/httperr"
)

// writeCheckoutError answers a failed checkout with 422. Known failures
// carry their own message; anything else is logged and answered with a
// generic one.
func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	if !isCheckoutFailure(err) {
		zctx.From(r.Context()).Error("Checkout failed", zap.Error(err))
		httperr.Write(w, http.StatusUnprocessableEntity, "The order could not be processed.")
		return
	}
	httperr.Write(w, http.StatusUnprocessableEntity, err.Error())
}

func isCheckoutFailure(err error) bool {
	var (
		validationErr  *order.ValidationError
		persistenceErr *order.PersistenceError
		unrecordedErr  *order.UnrecordedChargeError
		gatewayErr     *gateway.Error
	)
	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &persistenceErr),
		errors.As(err, &unrecordedErr),
		errors.As(err, &gatewayErr):
		return true
	case errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, coupon.ErrCouponDisabled),
		errors.Is(err, coupon.ErrRedemptionLimitExceeded),
		errors.Is(err, coupon.ErrPerCustomerLimitExceeded),
		errors.Is(err, coupon.ErrMinimumAmountNotMet):
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
