package order

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
)

// CreateOrderFromCart turns the user's cart into a PENDING order. Reading the
// cart, decrementing stock for every line, inserting the order and clearing
// the cart happen in one transaction: on any failure none of it is visible.
func (s *Service) CreateOrderFromCart(ctx context.Context, userID int64, r Receiver) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrderFromCart",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	o, err := s.createOrderFromCart(ctx, userID, r)
	if err != nil {
		s.metrics.checkoutFailed(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return nil, err
	}

	s.metrics.created.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int64("order.id", o.ID),
		attribute.String("order.invoice", o.InvoiceCode),
	)
	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.String("invoice_code", o.InvoiceCode),
		zap.Int64("user_id", userID),
		zap.Int("lines", len(o.Lines)),
		zap.Stringer("total", o.TotalPrice),
	)
	return o, nil
}

func (s *Service) createOrderFromCart(ctx context.Context, userID int64, r Receiver) (*Order, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "get user")
	}

	for attempt := 1; ; attempt++ {
		code, err := s.invoices.Next()
		if err != nil {
			return nil, err
		}

		o, err := s.checkout(ctx, userID, r, code)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, apperr.ErrConflict) || attempt >= s.attempts {
			return nil, err
		}
		zctx.From(ctx).Warn("Invoice code taken, retrying checkout",
			zap.String("invoice_code", code),
			zap.Int("attempt", attempt),
		)
	}
}

func (s *Service) checkout(ctx context.Context, userID int64, r Receiver, code string) (*Order, error) {
	var created *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		items, err := tx.CartItems(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "read cart")
		}
		if len(items) == 0 {
			return apperr.Invalid("cart is empty")
		}

		// Fail fast before any write.
		for _, it := range items {
			if it.Stock < it.Quantity {
				return shortfall(it, it.Stock)
			}
		}

		o := s.buildOrder(userID, r, code, items)

		// Lock products in a stable order so concurrent checkouts sharing
		// products cannot deadlock.
		byProduct := slices.Clone(items)
		slices.SortFunc(byProduct, func(a, b cart.Item) int {
			return cmp.Compare(a.ProductID, b.ProductID)
		})
		for _, it := range byProduct {
			ok, err := tx.TryDecrementStock(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return errors.Wrapf(err, "decrement stock of product %d", it.ProductID)
			}
			if !ok {
				available, err := tx.CurrentStock(ctx, it.ProductID)
				if err != nil {
					return errors.Wrapf(err, "read stock of product %d", it.ProductID)
				}
				return shortfall(it, available)
			}
		}

		if err := tx.Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.ClearCart(ctx, userID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// buildOrder snapshots the current price of every cart item into an order
// line and sums the subtotals.
func (s *Service) buildOrder(userID int64, r Receiver, code string, items []cart.Item) *Order {
	now := s.now()
	o := &Order{
		InvoiceCode: code,
		UserID:      userID,
		Status:      StatusPending,
		Receiver:    r,
		TotalPrice:  decimal.Zero,
		Lines:       make([]Line, len(items)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, it := range items {
		subtotal := it.Subtotal()
		o.Lines[i] = Line{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			Quantity:     it.Quantity,
			PriceAtOrder: it.UnitPrice,
			Subtotal:     subtotal,
		}
		o.TotalPrice = o.TotalPrice.Add(subtotal)
	}
	return o
}

func shortfall(it cart.Item, available int) error {
	return &apperr.InsufficientStockError{
		ProductID:   it.ProductID,
		ProductName: it.ProductName,
		Requested:   it.Quantity,
		Available:   available,
	}
}
