package cart

import (
	"context"
	"math"

	"github.com/go-faster/errors"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/product"
)

// MaxQuantity is the largest quantity a cart line can hold.
const MaxQuantity = math.MaxInt32

// Service encapsulates cart mutations. Stock checks made here are advisory;
// checkout validates stock again under its own transaction.
type Service struct {
	products product.Repository
	lines    Repository
}

// NewService creates a cart Service.
func NewService(products product.Repository, lines Repository) *Service {
	return &Service{
		products: products,
		lines:    lines,
	}
}

// AddItem puts qty units of the product into the user's cart, summing with an
// existing line for the same product.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, qty int) (*Line, error) {
	if qty < 1 || qty > MaxQuantity {
		return nil, apperr.Invalidf("quantity must be between 1 and %d, got %d", MaxQuantity, qty)
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	existing := 0
	switch line, err := s.lines.FindLine(ctx, userID, productID); {
	case err == nil:
		existing = line.Quantity
	case errors.Is(err, apperr.ErrNotFound):
	default:
		return nil, errors.Wrap(err, "find cart line")
	}

	if qty > p.Stock-existing {
		return nil, insufficient(p, existing+qty)
	}

	line, err := s.lines.AddQuantity(ctx, userID, productID, qty, p.Stock)
	if err != nil {
		if errors.Is(err, ErrLimitExceeded) {
			// A concurrent add for the same line got there first.
			return nil, insufficient(p, existing+qty)
		}
		return nil, errors.Wrap(err, "add cart line")
	}
	return line, nil
}

// UpdateItem replaces the quantity of one of the user's lines.
func (s *Service) UpdateItem(ctx context.Context, userID, lineID int64, qty int) (*Line, error) {
	if qty < 1 || qty > MaxQuantity {
		return nil, apperr.Invalidf("quantity must be between 1 and %d, got %d", MaxQuantity, qty)
	}

	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, line.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if p.Stock < qty {
		return nil, insufficient(p, qty)
	}

	updated, err := s.lines.SetQuantity(ctx, lineID, qty)
	if err != nil {
		return nil, errors.Wrap(err, "set cart line quantity")
	}
	return updated, nil
}

// RemoveItem deletes one of the user's lines.
func (s *Service) RemoveItem(ctx context.Context, userID, lineID int64) error {
	if _, err := s.ownedLine(ctx, userID, lineID); err != nil {
		return err
	}
	if err := s.lines.Delete(ctx, lineID); err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	return nil
}

// ClearCart deletes every line of the user. Clearing an empty cart succeeds.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	if err := s.lines.DeleteByUser(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// GetCart returns the user's lines priced at the current catalog price.
func (s *Service) GetCart(ctx context.Context, userID int64) (*Cart, error) {
	items, err := s.lines.ListItems(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	return NewCart(userID, items), nil
}

// CountItems returns the number of lines in the user's cart.
func (s *Service) CountItems(ctx context.Context, userID int64) (int, error) {
	n, err := s.lines.CountByUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "count cart lines")
	}
	return n, nil
}

// ownedLine loads a line and hides lines of other users behind NotFound.
func (s *Service) ownedLine(ctx context.Context, userID, lineID int64) (*Line, error) {
	line, err := s.lines.GetLine(ctx, lineID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart line")
	}
	if line.UserID != userID {
		return nil, apperr.NotFound("cart line", lineID)
	}
	return line, nil
}

func insufficient(p *product.Product, requested int) error {
	return &apperr.InsufficientStockError{
		ProductID:   p.ID,
		ProductName: p.Name,
		Requested:   requested,
		Available:   p.Stock,
	}
}
