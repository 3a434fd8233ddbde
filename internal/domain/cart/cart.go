// Package cart implements the per-user shopping cart: one line per
// (user, product) pair holding the quantity the user intends to buy.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrLimitExceeded is returned by Repository.AddQuantity when the summed
// quantity would exceed the given limit. Nothing is written in that case.
var ErrLimitExceeded = errors.New("cart line quantity limit exceeded")

// Line is a single cart entry. (UserID, ProductID) is unique.
type Line struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a cart line joined with the live state of its product.
type Item struct {
	Line
	ProductName string
	UnitPrice   decimal.Decimal
	Stock       int
}

// Subtotal returns unit price × quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the read view of a user's cart.
type Cart struct {
	UserID int64
	Items  []Item
	Total  decimal.Decimal
}

// NewCart builds a Cart and computes its total.
func NewCart(userID int64, items []Item) *Cart {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return &Cart{UserID: userID, Items: items, Total: total}
}

// Repository persists cart lines. Every method is atomic on its own; none of
// them spans more than one user's cart.
type Repository interface {
	// ListItems returns the user's lines joined with product name, price and
	// stock.
	ListItems(ctx context.Context, userID int64) ([]Item, error)
	GetLine(ctx context.Context, id int64) (*Line, error)
	FindLine(ctx context.Context, userID, productID int64) (*Line, error)
	// AddQuantity creates the (userID, productID) line with qty, or adds qty to
	// the existing one, provided the resulting quantity does not exceed limit.
	AddQuantity(ctx context.Context, userID, productID int64, qty, limit int) (*Line, error)
	SetQuantity(ctx context.Context, id int64, qty int) (*Line, error)
	Delete(ctx context.Context, id int64) error
	DeleteByUser(ctx context.Context, userID int64) error
	CountByUser(ctx context.Context, userID int64) (int, error)
}
