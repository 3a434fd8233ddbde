package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xenking/ogani-checkout/internal/domain/auth"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/order"
	"github.com/xenking/ogani-checkout/internal/domain/product"
	"github.com/xenking/ogani-checkout/internal/domain/user"
	"github.com/xenking/ogani-checkout/internal/handler"
	"github.com/xenking/ogani-checkout/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	pepper = []byte("test-pepper")
	secret = []byte("test-jwt-secret")
)

const (
	aliceKey = "alice-key"
	bobKey   = "bob-key"
	adminKey = "admin-key"
)

type server struct {
	store  *memory.Store
	routes http.Handler
}

func newServer(t *testing.T) *server {
	t.Helper()

	s := memory.New()
	s.PutProduct(product.Product{ID: 1, Name: "Apple", Price: decimal.RequireFromString("2.00"), Stock: 5})
	s.PutProduct(product.Product{ID: 2, Name: "Pear", Price: decimal.RequireFromString("1.25"), Stock: 10})
	s.PutUser(user.User{ID: 1, Username: "alice", Role: user.RoleCustomer})
	s.PutUser(user.User{ID: 2, Username: "bob", Role: user.RoleCustomer})
	s.PutUser(user.User{ID: 3, Username: "root", Role: user.RoleAdmin})
	for i, key := range []string{aliceKey, bobKey, adminKey} {
		s.PutAPIKey(auth.APIKeyInfo{
			ID:      key,
			KeyHash: auth.HashKey(pepper, key),
			UserID:  int64(i + 1),
		})
	}

	orders, err := order.NewService(s.Users(), s.Orders(), order.Options{})
	require.NoError(t, err)
	h := handler.New(
		s.Products(),
		cart.NewService(s.Products(), s.Carts()),
		orders,
		handler.NewAuthenticator(s.APIKeys(), s.Users(), pepper, secret),
	)
	return &server{store: s, routes: h.Routes()}
}

type request struct {
	method string
	path   string
	key    string
	bearer string
	body   string
}

func (s *server) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(req.method, req.path, strings.NewReader(req.body))
	if req.key != "" {
		r.Header.Set(handler.HeaderAPIKey, req.key)
	}
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	w := httptest.NewRecorder()
	s.routes.ServeHTTP(w, r)
	return w
}

// fields returns the raw top-level fields of a JSON object.
func fields(t *testing.T, body []byte) map[string]string {
	t.Helper()
	m := make(map[string]string)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		m[key] = raw.String()
		return nil
	})
	require.NoError(t, err, "body: %s", body)
	return m
}

func arrayLen(t *testing.T, raw string) int {
	t.Helper()
	n := 0
	err := jx.DecodeStr(raw).Arr(func(d *jx.Decoder) error {
		n++
		return d.Skip()
	})
	require.NoError(t, err)
	return n
}

func (s *server) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := s.store.Products().GetByID(t.Context(), id)
	require.NoError(t, err)
	return p.Stock
}

const receiverBody = `{"receiverName":"Alice","receiverPhone":"0800","shippingAddress":"Main St 1"}`

func (s *server) checkout(t *testing.T, key string) map[string]string {
	t.Helper()
	w := s.do(t, request{method: http.MethodPost, path: "/api/cart", key: key, body: `{"productId":1,"quantity":2}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, request{method: http.MethodPost, path: "/api/orders", key: key, body: receiverBody})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return fields(t, w.Body.Bytes())
}

func TestProducts_Public(t *testing.T) {
	s := newServer(t)

	w := s.do(t, request{method: http.MethodGet, path: "/api/products"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, arrayLen(t, w.Body.String()))

	w = s.do(t, request{method: http.MethodGet, path: "/api/products/1"})
	require.Equal(t, http.StatusOK, w.Code)
	p := fields(t, w.Body.Bytes())
	assert.Equal(t, `"Apple"`, p["name"])
	assert.Equal(t, "2.00", p["price"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/products/99"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/products/abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuth_Required(t *testing.T) {
	s := newServer(t)

	for _, req := range []request{
		{method: http.MethodGet, path: "/api/cart"},
		{method: http.MethodGet, path: "/api/cart", key: "wrong"},
		{method: http.MethodPost, path: "/api/orders", body: receiverBody},
		{method: http.MethodGet, path: "/api/cart", bearer: "garbage"},
	} {
		w := s.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", req.method, req.path)
		assert.Equal(t, "401", fields(t, w.Body.Bytes())["code"])
	}
}

func TestAuth_BearerToken(t *testing.T) {
	s := newServer(t)
	now := time.Now()

	token, err := handler.SignToken(secret, 1, user.RoleCustomer, now, time.Hour)
	require.NoError(t, err)
	w := s.do(t, request{method: http.MethodGet, path: "/api/cart", bearer: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", fields(t, w.Body.Bytes())["userId"])

	expired, err := handler.SignToken(secret, 1, user.RoleCustomer, now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	w = s.do(t, request{method: http.MethodGet, path: "/api/cart", bearer: expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := handler.SignToken([]byte("other"), 1, user.RoleAdmin, now, time.Hour)
	require.NoError(t, err)
	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=PENDING", bearer: forged})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	admin, err := handler.SignToken(secret, 3, user.RoleAdmin, now, time.Hour)
	require.NoError(t, err)
	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=PENDING", bearer: admin})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCart_Flow(t *testing.T) {
	s := newServer(t)

	w := s.do(t, request{method: http.MethodPost, path: "/api/cart", key: aliceKey, body: `{"productId":1,"quantity":2}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	line := fields(t, w.Body.Bytes())
	assert.Equal(t, "2", line["quantity"])

	w = s.do(t, request{method: http.MethodPost, path: "/api/cart", key: aliceKey, body: `{"productId":2,"quantity":4}`})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/cart", key: aliceKey})
	require.Equal(t, http.StatusOK, w.Code)
	c := fields(t, w.Body.Bytes())
	assert.Equal(t, "9.00", c["total"])
	assert.Equal(t, 2, arrayLen(t, c["items"]))

	w = s.do(t, request{method: http.MethodGet, path: "/api/cart/count", key: aliceKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", fields(t, w.Body.Bytes())["count"])

	// Bob cannot touch Alice's line.
	w = s.do(t, request{method: http.MethodPut, path: "/api/cart/" + line["id"], key: bobKey, body: `{"quantity":1}`})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, request{method: http.MethodPut, path: "/api/cart/" + line["id"], key: aliceKey, body: `{"quantity":5}`})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", fields(t, w.Body.Bytes())["quantity"])

	w = s.do(t, request{method: http.MethodDelete, path: "/api/cart/" + line["id"], key: aliceKey})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, request{method: http.MethodDelete, path: "/api/cart", key: aliceKey})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/cart", key: aliceKey})
	require.Equal(t, http.StatusOK, w.Code)
	c = fields(t, w.Body.Bytes())
	assert.Equal(t, "0.00", c["total"])
	assert.Equal(t, 0, arrayLen(t, c["items"]))
}

func TestCart_BadRequests(t *testing.T) {
	s := newServer(t)

	for _, body := range []string{
		`not json`,
		`{"productId":1,"quantity":0}`,
		`{"quantity":1}`,
		`{"productId":"one","quantity":1}`,
		`{"productId":1,"quantity":2147483648}`,
		`{"productId":1,"quantity":9223372036854775807}`,
	} {
		w := s.do(t, request{method: http.MethodPost, path: "/api/cart", key: aliceKey, body: body})
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := s.do(t, request{method: http.MethodPut, path: "/api/cart/1", key: aliceKey, body: `{}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCart_InsufficientStock(t *testing.T) {
	s := newServer(t)

	w := s.do(t, request{method: http.MethodPost, path: "/api/cart", key: aliceKey, body: `{"productId":1,"quantity":6}`})
	require.Equal(t, http.StatusConflict, w.Code)
	body := fields(t, w.Body.Bytes())
	assert.Equal(t, "409", body["code"])
	assert.Equal(t, "1", body["productId"])
	assert.Equal(t, `"Apple"`, body["productName"])
	assert.Equal(t, "6", body["requested"])
	assert.Equal(t, "5", body["available"])
}

func TestOrders_Checkout(t *testing.T) {
	s := newServer(t)

	o := s.checkout(t, aliceKey)
	assert.Equal(t, `"PENDING"`, o["status"])
	assert.Equal(t, "4.00", o["totalPrice"])
	assert.Equal(t, 1, arrayLen(t, o["lines"]))
	assert.Regexp(t, `^"INV-[0-9A-F]+"$`, o["invoiceCode"])
	assert.Equal(t, 3, s.stock(t, 1))

	w := s.do(t, request{method: http.MethodGet, path: "/api/cart/count", key: aliceKey})
	assert.Equal(t, "0", fields(t, w.Body.Bytes())["count"])

	// Empty cart.
	w = s.do(t, request{method: http.MethodPost, path: "/api/orders", key: aliceKey, body: receiverBody})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/orders", key: aliceKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, arrayLen(t, w.Body.String()))

	w = s.do(t, request{method: http.MethodGet, path: "/api/orders", key: bobKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, arrayLen(t, w.Body.String()))
}

func TestOrders_InvalidReceiver(t *testing.T) {
	s := newServer(t)

	w := s.do(t, request{method: http.MethodPost, path: "/api/cart", key: aliceKey, body: `{"productId":1,"quantity":1}`})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/orders", key: aliceKey, body: `{"receiverName":"Alice"}`})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `"receiver phone is required"`, fields(t, w.Body.Bytes())["message"])
	assert.Equal(t, 5, s.stock(t, 1))
}

func TestOrders_Access(t *testing.T) {
	s := newServer(t)
	o := s.checkout(t, aliceKey)
	path := "/api/orders/" + o["id"]
	code := strings.Trim(o["invoiceCode"], `"`)

	w := s.do(t, request{method: http.MethodGet, path: path, key: aliceKey})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, request{method: http.MethodGet, path: path, key: adminKey})
	assert.Equal(t, http.StatusOK, w.Code)
	// Another user's order looks the same as one that does not exist.
	w = s.do(t, request{method: http.MethodGet, path: path, key: bobKey})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `"order `+o["id"]+` not found"`, fields(t, w.Body.Bytes())["message"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/orders/invoice/" + code, key: aliceKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, o["id"], fields(t, w.Body.Bytes())["id"])
	w = s.do(t, request{method: http.MethodGet, path: "/api/orders/invoice/" + code, key: bobKey})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, request{method: http.MethodGet, path: "/api/orders/invoice/INV-NOPE", key: aliceKey})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, request{method: http.MethodDelete, path: path, key: bobKey})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 3, s.stock(t, 1))

	w = s.do(t, request{method: http.MethodGet, path: "/api/orders/999", key: aliceKey})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrders_Cancel(t *testing.T) {
	s := newServer(t)
	o := s.checkout(t, aliceKey)
	path := "/api/orders/" + o["id"]

	w := s.do(t, request{method: http.MethodDelete, path: path, key: aliceKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `"CANCELLED"`, fields(t, w.Body.Bytes())["status"])
	assert.Equal(t, 5, s.stock(t, 1))

	w = s.do(t, request{method: http.MethodDelete, path: path, key: aliceKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 5, s.stock(t, 1))
}

func TestOrders_UpdateStatus(t *testing.T) {
	s := newServer(t)
	o := s.checkout(t, aliceKey)
	path := "/api/orders/" + o["id"] + "/status"

	w := s.do(t, request{method: http.MethodPut, path: path, key: aliceKey, body: `{"status":"PROCESSING"}`})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, request{method: http.MethodPut, path: path, key: adminKey, body: `{"status":"SHIPPED"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodPut, path: path, key: adminKey, body: `{"status":"LOST"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, st := range []string{"PROCESSING", "SHIPPED", "COMPLETED"} {
		w = s.do(t, request{method: http.MethodPut, path: path, key: adminKey, body: `{"status":"` + st + `"}`})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, `"`+st+`"`, fields(t, w.Body.Bytes())["status"])
	}

	// Owner can no longer cancel.
	w = s.do(t, request{method: http.MethodDelete, path: "/api/orders/" + o["id"], key: aliceKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 3, s.stock(t, 1))
}

func TestAdmin_ListByStatus(t *testing.T) {
	s := newServer(t)
	s.checkout(t, aliceKey)
	s.checkout(t, bobKey)

	w := s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=PENDING", key: aliceKey})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=PENDING", key: adminKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, arrayLen(t, w.Body.String()))

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=PENDING&page=0&size=1", key: adminKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, arrayLen(t, w.Body.String()))

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=SHIPPED", key: adminKey})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, arrayLen(t, w.Body.String()))

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/orders", key: adminKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=PENDING&size=x", key: adminKey})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminScopeKey(t *testing.T) {
	s := newServer(t)
	s.store.PutAPIKey(auth.APIKeyInfo{
		ID:      "ops",
		KeyHash: auth.HashKey(pepper, "ops-key"),
		UserID:  2,
		Scopes:  []string{auth.ScopeAdmin},
	})

	w := s.do(t, request{method: http.MethodGet, path: "/api/admin/orders?status=PENDING", key: "ops-key"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)

	w := s.do(t, request{method: http.MethodGet, path: "/api/nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
