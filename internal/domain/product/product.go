package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry referenced by order line items.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Repository defines read operations for the product catalog.
type Repository interface {
	// GetByIDs returns the products matching any of the given IDs. Missing
	// IDs are silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
