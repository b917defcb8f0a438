package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an order does not exist or belongs to
// another customer.
var ErrNotFound = errors.New("order not found")

// ErrEmptyCart is returned when checkout is attempted without cart entries.
var ErrEmptyCart = errors.New("The cart is empty.")

// ValidationError reports a malformed checkout request. Fields maps the
// request field name to a short description of the problem.
type ValidationError struct {
	Fields map[string]string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "The request data is invalid."
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError reports that the order records could not be written.
// Nothing was committed.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist order: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UnrecordedChargeError reports that the gateway charged the customer but the
// order could not be persisted. It needs manual reconciliation.
type UnrecordedChargeError struct {
	GatewayOrderID string
	ChargeID       string
	Err            error
}

func (e *UnrecordedChargeError) Error() string {
	return fmt.Sprintf("charge %s of gateway order %s not recorded: %v", e.ChargeID, e.GatewayOrderID, e.Err)
}

func (e *UnrecordedChargeError) Unwrap() error {
	return e.Err
}
