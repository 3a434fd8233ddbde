package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
)

const (
	lineColumns = `id, user_id, product_id, quantity, created_at, updated_at`

	listCartItemsSQL = `SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at,
		p.name, p.price, p.stock
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1 ORDER BY c.id`

	getCartLineSQL  = `SELECT ` + lineColumns + ` FROM cart_items WHERE id = $1`
	findCartLineSQL = `SELECT ` + lineColumns + ` FROM cart_items WHERE user_id = $1 AND product_id = $2`

	// The conflict branch only fires while the summed quantity stays within
	// $4; otherwise no row is returned.
	addCartQuantitySQL = `INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE
			SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
			WHERE EXCLUDED.quantity <= $4 - cart_items.quantity
		RETURNING ` + lineColumns

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $2, updated_at = now()
		WHERE id = $1 RETURNING ` + lineColumns

	deleteCartLineSQL   = `DELETE FROM cart_items WHERE id = $1`
	deleteUserCartSQL   = `DELETE FROM cart_items WHERE user_id = $1`
	countUserCartSQL    = `SELECT count(*) FROM cart_items WHERE user_id = $1`
	lockUserCartItemSQL = listCartItemsSQL + ` FOR UPDATE OF c`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository.
type CartRepository struct {
	q querier
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{q: pool}
}

// ListItems returns the user's lines in insertion order, joined with products.
func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]cart.Item, error) {
	return r.items(ctx, listCartItemsSQL, userID)
}

func (r *CartRepository) items(ctx context.Context, sql string, userID int64) ([]cart.Item, error) {
	rows, err := r.q.Query(ctx, sql, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list cart of user %d", userID)
	}
	return pgx.CollectRows(rows, scanItem)
}

// GetLine returns a line by id.
func (r *CartRepository) GetLine(ctx context.Context, id int64) (*cart.Line, error) {
	return r.line(ctx, "cart line", id, getCartLineSQL, id)
}

// FindLine returns the user's line for productID.
func (r *CartRepository) FindLine(ctx context.Context, userID, productID int64) (*cart.Line, error) {
	return r.line(ctx, "cart line", productID, findCartLineSQL, userID, productID)
}

// AddQuantity creates or grows the (userID, productID) line up to limit in a
// single statement.
func (r *CartRepository) AddQuantity(ctx context.Context, userID, productID int64, qty, limit int) (*cart.Line, error) {
	if qty > limit {
		return nil, cart.ErrLimitExceeded
	}
	rows, err := r.q.Query(ctx, addCartQuantitySQL, userID, productID, qty, limit)
	if err != nil {
		return nil, errors.Wrap(err, "add cart quantity")
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLine)
	switch {
	case err == nil:
		return &l, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, cart.ErrLimitExceeded
	}
	if code, _ := pgErrorCode(err); code == codeForeignKeyViolation {
		return nil, apperr.NotFound("product", productID)
	}
	return nil, errors.Wrap(err, "add cart quantity")
}

// SetQuantity replaces the quantity of a line.
func (r *CartRepository) SetQuantity(ctx context.Context, id int64, qty int) (*cart.Line, error) {
	return r.line(ctx, "cart line", id, setCartQuantitySQL, id, qty)
}

// Delete removes a line.
func (r *CartRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, deleteCartLineSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete cart line %d", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart line", id)
	}
	return nil
}

// DeleteByUser removes every line of the user.
func (r *CartRepository) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := r.q.Exec(ctx, deleteUserCartSQL, userID); err != nil {
		return errors.Wrapf(err, "clear cart of user %d", userID)
	}
	return nil
}

// CountByUser returns the number of lines in the user's cart.
func (r *CartRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, countUserCartSQL, userID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count cart of user %d", userID)
	}
	return n, nil
}

func (r *CartRepository) line(ctx context.Context, resource string, id any, sql string, args ...any) (*cart.Line, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", resource)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLine)
	if err != nil {
		return nil, notFound(err, resource, id)
	}
	return &l, nil
}

func scanLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func scanItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(
		&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt,
		&it.ProductName, &it.UnitPrice, &it.Stock,
	)
	return it, err
}
