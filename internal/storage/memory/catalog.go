package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/product"
	"github.com/xenking/ogani-checkout/internal/domain/user"
)

var (
	_ product.Repository  = (*ProductRepository)(nil)
	_ product.StockKeeper = (*ProductRepository)(nil)
	_ user.Repository     = (*UserRepository)(nil)
	_ auth.Repository     = (*APIKeyRepository)(nil)
)

// ProductRepository implements product.Repository and product.StockKeeper.
type ProductRepository struct {
	s *Store
}

// List returns all products ordered by id.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(_ context.Context, id int64) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	cp := *p
	return &cp, nil
}

// GetByIDs returns the products matching ids; unknown ids are skipped.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// TryDecrementStock subtracts qty if at least qty units are in stock.
func (r *ProductRepository) TryDecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return (&tx{s: r.s}).TryDecrementStock(ctx, id, qty)
}

// IncrementStock adds qty units to the product's stock.
func (r *ProductRepository) IncrementStock(ctx context.Context, id int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return (&tx{s: r.s}).IncrementStock(ctx, id, qty)
}

// UserRepository implements user.Repository.
type UserRepository struct {
	s *Store
}

// GetByID returns a single user.
func (r *UserRepository) GetByID(_ context.Context, id int64) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

// APIKeyRepository implements auth.Repository.
type APIKeyRepository struct {
	s *Store
}

// FindByHash looks up an active API key by its hash.
func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	k, ok := r.s.apiKeys[hash]
	if !ok {
		return nil, apperr.NotFound("api key", "")
	}
	cp := *k
	cp.Scopes = slices.Clone(k.Scopes)
	return &cp, nil
}
