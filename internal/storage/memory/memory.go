// Package memory is an in-process implementation of every storage interface
// of the domain. It backs the "memory" storage mode and the service tests.
//
// A single mutex guards all state. Transactions hold it for their whole
// duration and record an undo step for every write, replayed in reverse when
// the transaction function fails.
package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/order"
	"github.com/xenking/ogani-checkout/internal/domain/product"
	"github.com/xenking/ogani-checkout/internal/domain/user"
)

// Store holds catalog, users, carts and orders in memory. Use the repository
// accessors to obtain the domain interfaces.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	products map[int64]*product.Product
	users    map[int64]*user.User
	apiKeys  map[string]*auth.APIKeyInfo
	lines    map[int64]*cart.Line
	orders   map[int64]*order.Order
	invoices map[string]int64

	lastLineID      int64
	lastOrderID     int64
	lastOrderLineID int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		now:      time.Now,
		products: make(map[int64]*product.Product),
		users:    make(map[int64]*user.User),
		apiKeys:  make(map[string]*auth.APIKeyInfo),
		lines:    make(map[int64]*cart.Line),
		orders:   make(map[int64]*order.Order),
		invoices: make(map[string]int64),
	}
}

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// PutAPIKey inserts or replaces an API key, indexed by its hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k.Scopes = slices.Clone(k.Scopes)
	s.apiKeys[k.KeyHash] = &k
}

// Products returns the catalog view of the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Users returns the user view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// APIKeys returns the API key view of the store.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }

// Carts returns the cart view of the store.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Orders returns the order view of the store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }
