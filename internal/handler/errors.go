package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/pkg/httpmiddleware"
)

// writeError maps err onto the API error envelope. Errors outside the
// apperr taxonomy are logged and reported as 500 with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stock *apperr.InsufficientStockError
	if errors.As(err, &stock) {
		writeJSON(w, http.StatusConflict, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusConflict) })
				e.Field("message", func(e *jx.Encoder) { e.Str(stock.Error()) })
				e.Field("productId", func(e *jx.Encoder) { e.Int64(stock.ProductID) })
				e.Field("productName", func(e *jx.Encoder) { e.Str(stock.ProductName) })
				e.Field("requested", func(e *jx.Encoder) { e.Int(stock.Requested) })
				e.Field("available", func(e *jx.Encoder) { e.Int(stock.Available) })
			})
		})
		return
	}

	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httpmiddleware.WriteError(w, status, "internal server error")
		return
	}
	httpmiddleware.WriteError(w, status, apperr.Cause(err).Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInsufficientStock), errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
