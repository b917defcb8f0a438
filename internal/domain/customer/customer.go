package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer matches the requested identifier.
var ErrNotFound = errors.New("customer not found")

// Customer is the authenticated user's profile.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	// GatewayID is the customer identifier at the payment gateway.
	GatewayID string
}

// FullName joins first and last name, skipping empty parts.
func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Repository provides lookup of customer profiles.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
}
