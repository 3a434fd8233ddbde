package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
)

// UpdateStatus moves the order to next. Only forward transitions are legal;
// PENDING → CANCELLED behaves like CancelOrder.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, invalidStatus(next)
	}
	return s.transition(ctx, "order.UpdateStatus", orderID, next, func(o *Order) error {
		if !o.Status.CanTransitionTo(next) {
			return apperr.Invalidf("order %d cannot move from %s to %s", o.ID, o.Status, next)
		}
		return nil
	})
}

// CancelOrder cancels a PENDING order and returns its units to stock.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*Order, error) {
	return s.transition(ctx, "order.CancelOrder", orderID, StatusCancelled, func(o *Order) error {
		if o.Status != StatusPending {
			return apperr.Invalidf("only PENDING orders can be cancelled, order %d is %s", o.ID, o.Status)
		}
		return nil
	})
}

func (s *Service) transition(
	ctx context.Context,
	spanName string,
	orderID int64,
	next Status,
	check func(o *Order) error,
) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.status", next.String()),
	))
	defer span.End()

	var (
		updated  *Order
		previous Status
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if err := check(o); err != nil {
			return err
		}

		now := s.now()
		ok, err := tx.SetStatus(ctx, o.ID, o.Status, next, now)
		if err != nil {
			return errors.Wrap(err, "set status")
		}
		if !ok {
			return apperr.Invalidf("order %d changed status concurrently", o.ID)
		}

		if next == StatusCancelled {
			for _, l := range o.Lines {
				if err := tx.IncrementStock(ctx, l.ProductID, l.Quantity); err != nil {
					return errors.Wrapf(err, "restock product %d", l.ProductID)
				}
			}
		}

		previous = o.Status
		o.Status = next
		o.UpdatedAt = now
		updated = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, err
	}

	if next == StatusCancelled {
		s.metrics.cancelled.Add(ctx, 1)
	}
	zctx.From(ctx).Info("Order status changed",
		zap.Int64("order_id", updated.ID),
		zap.Stringer("from", previous),
		zap.Stringer("to", next),
	)
	return updated, nil
}

func invalidStatus(s Status) error {
	return apperr.Invalidf("unknown order status %q", string(s))
}
