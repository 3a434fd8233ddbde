package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/product"
	"github.com/xenking/ogani-checkout/internal/domain/user"
)

const (
	productColumns = `id, name, price, stock, COALESCE(category_id, 0)`

	listProductsSQL     = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`
	incrementStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`
	currentStockSQL   = `SELECT stock FROM products WHERE id = $1`
	productExistsSQL  = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	getUserByIDSQL = `SELECT id, username, email, role FROM users WHERE id = $1`

	getAPIKeyByHashSQL = `SELECT id, key_hash, name, user_id, scopes
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`
)

var (
	_ product.Repository  = (*ProductRepository)(nil)
	_ product.StockKeeper = (*ProductRepository)(nil)
	_ user.Repository     = (*UserRepository)(nil)
	_ auth.Repository     = (*APIKeyRepository)(nil)
)

// ProductRepository implements product.Repository and product.StockKeeper.
type ProductRepository struct {
	q querier
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{q: pool}
}

// List returns all products ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.q.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// TryDecrementStock subtracts qty in a single conditional update, reporting
// false when fewer than qty units remain.
func (r *ProductRepository) TryDecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	tag, err := r.q.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return false, errors.Wrapf(err, "decrement stock of product %d", id)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.mustExist(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// IncrementStock adds qty units to the product's stock.
func (r *ProductRepository) IncrementStock(ctx context.Context, id int64, qty int) error {
	tag, err := r.q.Exec(ctx, incrementStockSQL, id, qty)
	if err != nil {
		return errors.Wrapf(err, "increment stock of product %d", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("product", id)
	}
	return nil
}

func (r *ProductRepository) currentStock(ctx context.Context, id int64) (int, error) {
	var stock int
	if err := r.q.QueryRow(ctx, currentStockSQL, id).Scan(&stock); err != nil {
		return 0, notFound(err, "product", id)
	}
	return stock, nil
}

func (r *ProductRepository) mustExist(ctx context.Context, id int64) error {
	var ok bool
	if err := r.q.QueryRow(ctx, productExistsSQL, id).Scan(&ok); err != nil {
		return errors.Wrapf(err, "check product %d", id)
	}
	if !ok {
		return apperr.NotFound("product", id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CategoryID)
	return p, err
}

// UserRepository implements user.Repository.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a single user.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := r.pool.QueryRow(ctx, getUserByIDSQL, id).Scan(&u.ID, &u.Username, &u.Email, &role)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	u.Role = user.Role(role)
	return &u, nil
}

// APIKeyRepository provides API key lookups.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.UserID, &info.Scopes,
	)
	if err != nil {
		return nil, notFound(err, "api key", "")
	}
	return &info, nil
}
