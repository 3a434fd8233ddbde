package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/order"
)

var (
	_ order.Store = (*OrderRepository)(nil)
	_ order.Tx    = (*tx)(nil)
)

// OrderRepository implements order.Store.
type OrderRepository struct {
	s *Store
}

// GetByID returns an order with its lines.
func (r *OrderRepository) GetByID(_ context.Context, id int64) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

// GetByInvoiceCode returns the order issued under code.
func (r *OrderRepository) GetByInvoiceCode(_ context.Context, code string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.invoices[code]
	if !ok {
		return nil, apperr.NotFound("order", code)
	}
	return cloneOrder(r.s.orders[id]), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(_ context.Context, userID int64, page order.Page) ([]order.Order, error) {
	return r.list(page, func(o *order.Order) bool { return o.UserID == userID }), nil
}

// ListByStatus returns orders in status, newest first.
func (r *OrderRepository) ListByStatus(_ context.Context, status order.Status, page order.Page) ([]order.Order, error) {
	return r.list(page, func(o *order.Order) bool { return o.Status == status }), nil
}

func (r *OrderRepository) list(page order.Page, keep func(o *order.Order) bool) []order.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []order.Order
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	limit, offset := page.Bounds()
	if limit == 0 {
		return out
	}
	if offset >= len(out) {
		return nil
	}
	return out[offset:min(offset+limit, len(out))]
}

// InTx runs fn with exclusive access to the store, undoing its writes when it
// returns an error.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t := &tx{s: r.s}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// tx operates on the store while the caller holds s.mu.
type tx struct {
	s    *Store
	undo []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) TryDecrementStock(_ context.Context, id int64, qty int) (bool, error) {
	p, ok := t.s.products[id]
	if !ok {
		return false, apperr.NotFound("product", id)
	}
	if p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	t.undo = append(t.undo, func() { p.Stock += qty })
	return true, nil
}

func (t *tx) IncrementStock(_ context.Context, id int64, qty int) error {
	p, ok := t.s.products[id]
	if !ok {
		return apperr.NotFound("product", id)
	}
	p.Stock += qty
	t.undo = append(t.undo, func() { p.Stock -= qty })
	return nil
}

func (t *tx) CartItems(_ context.Context, userID int64) ([]cart.Item, error) {
	return t.s.cartItems(userID), nil
}

func (t *tx) CurrentStock(_ context.Context, productID int64) (int, error) {
	p, ok := t.s.products[productID]
	if !ok {
		return 0, apperr.NotFound("product", productID)
	}
	return p.Stock, nil
}

func (t *tx) Insert(_ context.Context, o *order.Order) error {
	if _, taken := t.s.invoices[o.InvoiceCode]; taken {
		return errors.Wrapf(apperr.ErrConflict, "invoice code %q", o.InvoiceCode)
	}

	prevOrderID, prevLineID := t.s.lastOrderID, t.s.lastOrderLineID
	t.s.lastOrderID++
	o.ID = t.s.lastOrderID
	for i := range o.Lines {
		t.s.lastOrderLineID++
		o.Lines[i].ID = t.s.lastOrderLineID
		o.Lines[i].OrderID = o.ID
	}

	t.s.orders[o.ID] = cloneOrder(o)
	t.s.invoices[o.InvoiceCode] = o.ID
	t.undo = append(t.undo, func() {
		delete(t.s.orders, o.ID)
		delete(t.s.invoices, o.InvoiceCode)
		t.s.lastOrderID, t.s.lastOrderLineID = prevOrderID, prevLineID
	})
	return nil
}

func (t *tx) ClearCart(_ context.Context, userID int64) error {
	for id, l := range t.s.lines {
		if l.UserID != userID {
			continue
		}
		delete(t.s.lines, id)
		t.undo = append(t.undo, func() { t.s.lines[id] = l })
	}
	return nil
}

func (t *tx) LockOrder(_ context.Context, id int64) (*order.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (t *tx) SetStatus(_ context.Context, id int64, from, to order.Status, at time.Time) (bool, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return false, apperr.NotFound("order", id)
	}
	if o.Status != from {
		return false, nil
	}
	prevStatus, prevUpdated := o.Status, o.UpdatedAt
	o.Status, o.UpdatedAt = to, at
	t.undo = append(t.undo, func() { o.Status, o.UpdatedAt = prevStatus, prevUpdated })
	return true, nil
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = slices.Clone(o.Lines)
	return &cp
}
