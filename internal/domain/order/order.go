package order

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/product"
)

// Order is the immutable record of a checkout. Only Status and UpdatedAt
// change after creation.
type Order struct {
	ID          int64
	InvoiceCode string
	UserID      int64
	Status      Status
	Receiver    Receiver
	TotalPrice  decimal.Decimal
	Lines       []Line
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Line is an order line with the price the product had at checkout.
type Line struct {
	ID           int64
	OrderID      int64
	ProductID    int64
	ProductName  string
	Quantity     int
	PriceAtOrder decimal.Decimal
	Subtotal     decimal.Decimal
}

// Receiver holds the delivery details captured at checkout.
type Receiver struct {
	Name    string
	Phone   string
	Address string
}

const (
	maxReceiverName  = 100
	maxReceiverPhone = 20
)

func (r Receiver) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return apperr.Invalid("receiver name is required")
	case utf8.RuneCountInString(r.Name) > maxReceiverName:
		return apperr.Invalidf("receiver name must be at most %d characters", maxReceiverName)
	case strings.TrimSpace(r.Phone) == "":
		return apperr.Invalid("receiver phone is required")
	case utf8.RuneCountInString(r.Phone) > maxReceiverPhone:
		return apperr.Invalidf("receiver phone must be at most %d characters", maxReceiverPhone)
	case strings.TrimSpace(r.Address) == "":
		return apperr.Invalid("shipping address is required")
	}
	return nil
}

// Page selects a slice of a listing. The zero value selects everything.
type Page struct {
	Number int
	Size   int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Bounds returns the SQL-style limit and offset. A zero limit means no limit.
func (p Page) Bounds() (limit, offset int) {
	if p == (Page{}) {
		return 0, 0
	}
	size := p.Size
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)
	number := max(p.Number, 0)
	return size, number * size
}

// Repository defines read operations for orders. Lookups of a missing order
// return an error matching apperr.ErrNotFound. Listings are newest first.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByInvoiceCode(ctx context.Context, code string) (*Order, error)
	ListByUser(ctx context.Context, userID int64, page Page) ([]Order, error)
	ListByStatus(ctx context.Context, status Status, page Page) ([]Order, error)
}

// Tx is the set of operations that commit or roll back together.
type Tx interface {
	product.StockKeeper

	// CartItems returns the user's cart lines joined with live product state,
	// locking the lines until the transaction ends.
	CartItems(ctx context.Context, userID int64) ([]cart.Item, error)
	// CurrentStock returns the product's stock as seen by the transaction.
	CurrentStock(ctx context.Context, productID int64) (int, error)
	// Insert stores the order and its lines, assigning their ids. A taken
	// invoice code yields an error matching apperr.ErrConflict.
	Insert(ctx context.Context, o *Order) error
	ClearCart(ctx context.Context, userID int64) error
	// LockOrder loads the order with its lines and locks it against
	// concurrent status changes.
	LockOrder(ctx context.Context, id int64) (*Order, error)
	// SetStatus moves the order from one status to another, reporting false
	// when the order is no longer in status from.
	SetStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error)
}

// Store is the order persistence boundary.
type Store interface {
	Repository
	// InTx runs fn inside a transaction. If fn returns an error every write
	// made through tx is discarded.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
