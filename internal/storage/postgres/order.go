package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/order"
)

const (
	orderColumns = `id, invoice_code, user_id, status, receiver_name, receiver_phone,
		shipping_address, total_price, created_at, updated_at`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL         = getOrderSQL + ` FOR UPDATE`
	getOrderByInvoiceSQL = `SELECT ` + orderColumns + ` FROM orders WHERE invoice_code = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders WHERE status = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

	listOrderLinesSQL = `SELECT id, order_id, product_id, product_name, quantity, price_at_order, subtotal
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, id`

	insertOrderSQL = `INSERT INTO orders (invoice_code, user_id, status, receiver_name, receiver_phone,
		shipping_address, total_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, product_name, quantity, price_at_order, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	setOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	invoiceCodeConstraint = "orders_invoice_code_key"
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// OrderStore implements order.Store.
type OrderStore struct {
	pool *pgxpool.Pool
	r    orderReader
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool, r: orderReader{q: pool}}
}

// GetByID returns an order with its lines.
func (s *OrderStore) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return s.r.one(ctx, id, getOrderSQL, id)
}

// GetByInvoiceCode returns the order issued under code.
func (s *OrderStore) GetByInvoiceCode(ctx context.Context, code string) (*order.Order, error) {
	return s.r.one(ctx, code, getOrderByInvoiceSQL, code)
}

// ListByUser returns the user's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID int64, page order.Page) ([]order.Order, error) {
	return s.r.list(ctx, listOrdersByUserSQL, userID, page)
}

// ListByStatus returns orders in status, newest first.
func (s *OrderStore) ListByStatus(ctx context.Context, status order.Status, page order.Page) ([]order.Order, error) {
	return s.r.list(ctx, listOrdersByStatusSQL, string(status), page)
}

// InTx runs fn in a READ COMMITTED transaction. Row locks taken through tx
// and conditional updates serialize concurrent checkouts and transitions.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(t pgx.Tx) error {
		return fn(ctx, &orderTx{
			tx:       t,
			products: &ProductRepository{q: t},
			carts:    &CartRepository{q: t},
			orders:   orderReader{q: t},
		})
	})
}

type orderTx struct {
	tx       pgx.Tx
	products *ProductRepository
	carts    *CartRepository
	orders   orderReader
}

func (t *orderTx) TryDecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	return t.products.TryDecrementStock(ctx, id, qty)
}

func (t *orderTx) IncrementStock(ctx context.Context, id int64, qty int) error {
	return t.products.IncrementStock(ctx, id, qty)
}

func (t *orderTx) CartItems(ctx context.Context, userID int64) ([]cart.Item, error) {
	return t.carts.items(ctx, lockUserCartItemSQL, userID)
}

func (t *orderTx) CurrentStock(ctx context.Context, productID int64) (int, error) {
	return t.products.currentStock(ctx, productID)
}

func (t *orderTx) Insert(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.InvoiceCode, o.UserID, string(o.Status),
		o.Receiver.Name, o.Receiver.Phone, o.Receiver.Address,
		o.TotalPrice, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		if code, constraint := pgErrorCode(err); code == codeUniqueViolation && constraint == invoiceCodeConstraint {
			return errors.Wrapf(apperr.ErrConflict, "invoice code %q", o.InvoiceCode)
		}
		return errors.Wrap(err, "insert order")
	}

	batch := &pgx.Batch{}
	for i := range o.Lines {
		l := &o.Lines[i]
		l.OrderID = o.ID
		batch.Queue(insertOrderLineSQL,
			l.OrderID, l.ProductID, l.ProductName, l.Quantity, l.PriceAtOrder, l.Subtotal,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&l.ID)
		})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "insert order lines")
	}
	return nil
}

func (t *orderTx) ClearCart(ctx context.Context, userID int64) error {
	return t.carts.DeleteByUser(ctx, userID)
}

func (t *orderTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	return t.orders.one(ctx, id, lockOrderSQL, id)
}

func (t *orderTx) SetStatus(ctx context.Context, id int64, from, to order.Status, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, setOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return false, errors.Wrapf(err, "set status of order %d", id)
	}
	return tag.RowsAffected() == 1, nil
}

// orderReader loads orders together with their lines.
type orderReader struct {
	q querier
}

func (r orderReader) one(ctx context.Context, id any, sql string, args ...any) (*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	orders := []order.Order{o}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r orderReader) list(ctx context.Context, sql string, key any, page order.Page) ([]order.Order, error) {
	limit, offset := page.Bounds()
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.q.Query(ctx, sql, key, lim, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r orderReader) attachLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, listOrderLinesSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order lines")
	}
	lines, err := pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return errors.Wrap(err, "scan order lines")
	}
	for _, l := range lines {
		o := &orders[index[l.OrderID]]
		o.Lines = append(o.Lines, l)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.InvoiceCode, &o.UserID, &status,
		&o.Receiver.Name, &o.Receiver.Phone, &o.Receiver.Address,
		&o.TotalPrice, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.PriceAtOrder, &l.Subtotal)
	return l, err
}
