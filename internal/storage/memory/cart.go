package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository.
type CartRepository struct {
	s *Store
}

// ListItems returns the user's lines in insertion order, joined with products.
func (r *CartRepository) ListItems(_ context.Context, userID int64) ([]cart.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.cartItems(userID), nil
}

// GetLine returns a line by id.
func (r *CartRepository) GetLine(_ context.Context, id int64) (*cart.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.lines[id]
	if !ok {
		return nil, apperr.NotFound("cart line", id)
	}
	cp := *l
	return &cp, nil
}

// FindLine returns the user's line for productID.
func (r *CartRepository) FindLine(_ context.Context, userID, productID int64) (*cart.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if l := r.s.findLine(userID, productID); l != nil {
		cp := *l
		return &cp, nil
	}
	return nil, apperr.NotFound("cart line", productID)
}

// AddQuantity creates or grows the (userID, productID) line up to limit.
func (r *CartRepository) AddQuantity(_ context.Context, userID, productID int64, qty, limit int) (*cart.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[productID]; !ok {
		return nil, apperr.NotFound("product", productID)
	}

	now := r.s.now()
	l := r.s.findLine(userID, productID)
	if l == nil {
		if qty > limit {
			return nil, cart.ErrLimitExceeded
		}
		r.s.lastLineID++
		l = &cart.Line{
			ID:        r.s.lastLineID,
			UserID:    userID,
			ProductID: productID,
			Quantity:  qty,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.s.lines[l.ID] = l
	} else {
		if qty > limit-l.Quantity {
			return nil, cart.ErrLimitExceeded
		}
		l.Quantity += qty
		l.UpdatedAt = now
	}
	cp := *l
	return &cp, nil
}

// SetQuantity replaces the quantity of a line.
func (r *CartRepository) SetQuantity(_ context.Context, id int64, qty int) (*cart.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.lines[id]
	if !ok {
		return nil, apperr.NotFound("cart line", id)
	}
	l.Quantity = qty
	l.UpdatedAt = r.s.now()
	cp := *l
	return &cp, nil
}

// Delete removes a line.
func (r *CartRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.lines[id]; !ok {
		return apperr.NotFound("cart line", id)
	}
	delete(r.s.lines, id)
	return nil
}

// DeleteByUser removes every line of the user.
func (r *CartRepository) DeleteByUser(_ context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, l := range r.s.lines {
		if l.UserID == userID {
			delete(r.s.lines, id)
		}
	}
	return nil
}

// CountByUser returns the number of lines in the user's cart.
func (r *CartRepository) CountByUser(_ context.Context, userID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, l := range r.s.lines {
		if l.UserID == userID {
			n++
		}
	}
	return n, nil
}

// findLine must be called with s.mu held.
func (s *Store) findLine(userID, productID int64) *cart.Line {
	for _, l := range s.lines {
		if l.UserID == userID && l.ProductID == productID {
			return l
		}
	}
	return nil
}

// cartItems must be called with s.mu held.
func (s *Store) cartItems(userID int64) []cart.Item {
	var items []cart.Item
	for _, l := range s.lines {
		if l.UserID != userID {
			continue
		}
		it := cart.Item{Line: *l}
		if p, ok := s.products[l.ProductID]; ok {
			it.ProductName = p.Name
			it.UnitPrice = p.Price
			it.Stock = p.Stock
		}
		items = append(items, it)
	}
	slices.SortFunc(items, func(a, b cart.Item) int { return cmp.Compare(a.ID, b.ID) })
	return items
}
