package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	Stock      int
	CategoryID int64
}

// Repository defines read operations for the product catalog. Lookups of a
// missing product return an error matching apperr.ErrNotFound.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

// StockKeeper is the only way stock changes.
type StockKeeper interface {
	// TryDecrementStock subtracts qty from the product's stock only if the
	// current stock is at least qty. It reports false, without changing
	// anything, when the stock is insufficient.
	TryDecrementStock(ctx context.Context, id int64, qty int) (bool, error)
	// IncrementStock returns qty units to the product's stock.
	IncrementStock(ctx context.Context, id int64, qty int) error
}
