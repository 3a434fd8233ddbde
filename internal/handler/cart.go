package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.GetCart(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) countCartItems(w http.ResponseWriter, r *http.Request) {
	n, err := h.carts.CountItems(r.Context(), identity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("count", func(e *jx.Encoder) { e.Int(n) })
		})
	})
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAddItem(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.carts.AddItem(r.Context(), identity(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeLine(e, l) })
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	qty, err := decodeQuantity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.carts.UpdateItem(r.Context(), identity(r).UserID, id, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeLine(e, l) })
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), identity(r).UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), identity(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
