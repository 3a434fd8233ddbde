// Package handler exposes the cart, checkout and order lifecycle services
// over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/order"
	"github.com/xenking/ogani-checkout/internal/domain/product"
	"github.com/xenking/ogani-checkout/pkg/httpmiddleware"
)

// Handler serves the /api routes.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	orders   *order.Service
	auth     *Authenticator
}

// New creates a Handler.
func New(products product.Repository, carts *cart.Service, orders *order.Service, authn *Authenticator) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
		auth:     authn,
	}
}

// Routes returns the API router. Every route is labeled with its pattern for
// tracing and metrics.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, httpmiddleware.Route(pattern)(fn))
	}

	handle("GET /api/products", h.listProducts)
	handle("GET /api/products/{id}", h.getProduct)

	handle("GET /api/cart", h.authed(h.getCart))
	handle("GET /api/cart/count", h.authed(h.countCartItems))
	handle("POST /api/cart", h.authed(h.addCartItem))
	handle("PUT /api/cart/{id}", h.authed(h.updateCartItem))
	handle("DELETE /api/cart/{id}", h.authed(h.removeCartItem))
	handle("DELETE /api/cart", h.authed(h.clearCart))

	handle("POST /api/orders", h.authed(h.createOrder))
	handle("GET /api/orders", h.authed(h.listOrders))
	handle("GET /api/orders/{id}", h.authed(h.getOrder))
	handle("GET /api/orders/invoice/{code}", h.authed(h.getOrderByInvoice))
	handle("DELETE /api/orders/{id}", h.authed(h.cancelOrder))
	handle("PUT /api/orders/{id}/status", h.admin(h.updateOrderStatus))
	handle("GET /api/admin/orders", h.admin(h.listOrdersByStatus))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "route not found")
	})
	return mux
}

// authed rejects requests without a verified identity and stores the
// identity in the request context.
func (h *Handler) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.auth.Authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	}
}

// admin is authed restricted to administrators.
func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return h.authed(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := auth.FromContext(r.Context()); !id.Admin {
			writeError(w, r, errors.Wrap(apperr.ErrForbidden, "admin role required"))
			return
		}
		next(w, r)
	})
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalidf("invalid %s %q", name, raw)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.Invalidf("invalid %s %q", name, raw)
	}
	return v, nil
}

const defaultPageSize = 10

func pageOf(r *http.Request) (order.Page, error) {
	number, err := queryInt(r, "page", 0)
	if err != nil {
		return order.Page{}, err
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil {
		return order.Page{}, err
	}
	if size == 0 {
		size = defaultPageSize
	}
	return order.Page{Number: number, Size: size}, nil
}
