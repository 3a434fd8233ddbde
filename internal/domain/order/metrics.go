package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
)

type metrics struct {
	created   metric.Int64Counter
	cancelled metric.Int64Counter
	failures  metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created by checkout"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	cancelled, err := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled with stock restored"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.cancelled")
	}
	failures, err := meter.Int64Counter("checkout.failures",
		metric.WithDescription("Checkouts rejected or aborted, by reason"))
	if err != nil {
		return nil, errors.Wrap(err, "checkout.failures")
	}
	return &metrics{
		created:   created,
		cancelled: cancelled,
		failures:  failures,
	}, nil
}

func (m *metrics) checkoutFailed(ctx context.Context, err error) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperr.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
