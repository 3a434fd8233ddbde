package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/ogani-checkout/internal/domain/user"
)

const defaultInvoiceAttempts = 3

// Service encapsulates checkout and the order lifecycle.
type Service struct {
	users    user.Repository
	store    Store
	invoices *InvoiceGenerator
	now      func() time.Time
	attempts int

	tracer  trace.Tracer
	metrics *metrics
}

// Options configures optional Service dependencies. Zero values fall back to
// defaults.
type Options struct {
	Invoices *InvoiceGenerator
	// InvoiceAttempts bounds how many times checkout is retried when the
	// generated invoice code is already taken in storage.
	InvoiceAttempts int
	Now             func() time.Time
	TracerProvider  trace.TracerProvider
	MeterProvider   metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Invoices == nil {
		o.Invoices = NewInvoiceGenerator(DefaultInvoicePrefix)
	}
	if o.InvoiceAttempts <= 0 {
		o.InvoiceAttempts = defaultInvoiceAttempts
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
}

// NewService creates an order Service.
func NewService(users user.Repository, store Store, opts Options) (*Service, error) {
	opts.setDefaults()

	const scope = "github.com/xenking/ogani-checkout/internal/domain/order"
	m, err := newMetrics(opts.MeterProvider.Meter(scope))
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}

	return &Service{
		users:    users,
		store:    store,
		invoices: opts.Invoices,
		now:      opts.Now,
		attempts: opts.InvoiceAttempts,
		tracer:   opts.TracerProvider.Tracer(scope),
		metrics:  m,
	}, nil
}

// GetOrder returns the order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// GetOrderByInvoiceCode returns the order issued under code.
func (s *Service) GetOrderByInvoiceCode(ctx context.Context, code string) (*Order, error) {
	o, err := s.store.GetByInvoiceCode(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "get order by invoice")
	}
	return o, nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (s *Service) ListOrdersByUser(ctx context.Context, userID int64, page Page) ([]Order, error) {
	orders, err := s.store.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, errors.Wrap(err, "list orders by user")
	}
	return orders, nil
}

// ListOrdersByStatus returns orders currently in status, newest first.
func (s *Service) ListOrdersByStatus(ctx context.Context, status Status, page Page) ([]Order, error) {
	if !status.Valid() {
		return nil, errors.Wrap(invalidStatus(status), "list orders by status")
	}
	orders, err := s.store.ListByStatus(ctx, status, page)
	if err != nil {
		return nil, errors.Wrap(err, "list orders by status")
	}
	return orders, nil
}
