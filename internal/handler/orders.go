package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/order"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeReceiver(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.CreateOrderFromCart(r.Context(), identity(r).UserID, rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListOrdersByUser(r.Context(), identity(r).UserID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) listOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := order.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pageOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListOrdersByStatus(r.Context(), status, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrderByInvoice(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrderByInvoiceCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !identity(r).CanAccess(o.UserID) {
		writeError(w, r, apperr.NotFound("order", o.InvoiceCode))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err = h.orders.CancelOrder(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := decodeStatus(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ownedOrder loads the {id} order. Orders of other users are reported as
// missing unless the caller is an admin.
func (h *Handler) ownedOrder(r *http.Request) (*order.Order, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !identity(r).CanAccess(o.UserID) {
		return nil, apperr.NotFound("order", id)
	}
	return o, nil
}
