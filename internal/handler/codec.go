package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/ogani-checkout/internal/domain/apperr"
	"github.com/xenking/ogani-checkout/internal/domain/cart"
	"github.com/xenking/ogani-checkout/internal/domain/order"
	"github.com/xenking/ogani-checkout/internal/domain/product"
)

const maxBodyBytes = 1 << 16

// writeJSON encodes the body produced by fn with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// money renders amounts with two decimals as JSON numbers.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		if p.CategoryID != 0 {
			e.Field("categoryId", func(e *jx.Encoder) { e.Int64(p.CategoryID) })
		}
	})
}

func encodeLine(e *jx.Encoder, l *cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(l.ID) })
		e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, l.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { timestamp(e, l.UpdatedAt) })
	})
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("userId", func(e *jx.Encoder) { e.Int64(c.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range c.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
						e.Field("productId", func(e *jx.Encoder) { e.Int64(it.ProductID) })
						e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
						e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("subtotal", func(e *jx.Encoder) { money(e, it.Subtotal()) })
					})
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { money(e, c.Total) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("invoiceCode", func(e *jx.Encoder) { e.Str(o.InvoiceCode) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("receiverName", func(e *jx.Encoder) { e.Str(o.Receiver.Name) })
		e.Field("receiverPhone", func(e *jx.Encoder) { e.Str(o.Receiver.Phone) })
		e.Field("shippingAddress", func(e *jx.Encoder) { e.Str(o.Receiver.Address) })
		e.Field("totalPrice", func(e *jx.Encoder) { money(e, o.TotalPrice) })
		e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { timestamp(e, o.UpdatedAt) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Int64(l.ID) })
						e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
						e.Field("productName", func(e *jx.Encoder) { e.Str(l.ProductName) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("priceAtOrder", func(e *jx.Encoder) { money(e, l.PriceAtOrder) })
						e.Field("subtotal", func(e *jx.Encoder) { money(e, l.Subtotal) })
					})
				}
			})
		})
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}

// decodeObject reads a JSON object from the request body, handing every
// field to fn. Malformed bodies are reported as invalid arguments.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(body) > maxBodyBytes {
		return apperr.Invalid("request body too large")
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		return apperr.Invalidf("malformed request body: %v", err)
	}
	return nil
}

type addItemRequest struct {
	ProductID int64
	Quantity  int
}

func decodeAddItem(r *http.Request) (addItemRequest, error) {
	var req addItemRequest
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Int64()
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, err
	}
	if req.ProductID == 0 {
		return req, apperr.Invalid("productId is required")
	}
	return req, nil
}

func decodeQuantity(r *http.Request) (int, error) {
	var (
		qty int
		set bool
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		set = true
		var err error
		qty, err = d.Int()
		return err
	})
	if err != nil {
		return 0, err
	}
	if !set {
		return 0, apperr.Invalid("quantity is required")
	}
	return qty, nil
}

func decodeReceiver(r *http.Request) (order.Receiver, error) {
	var rec order.Receiver
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "receiverName":
			rec.Name, err = d.Str()
		case "receiverPhone":
			rec.Phone, err = d.Str()
		case "shippingAddress":
			rec.Address, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return rec, err
}

func decodeStatus(r *http.Request) (order.Status, error) {
	var raw string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	})
	if err != nil {
		return "", err
	}
	return order.ParseStatus(raw)
}
