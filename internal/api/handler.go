// Package api exposes the checkout engine over JSON HTTP. Handlers are thin:
// they decode the request, resolve the caller from the X-User-ID header,
// delegate to a domain service and map domain errors onto the status taxonomy.
package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/homecart/internal/domain/cart"
	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/domain/order"
	"github.com/xenking/homecart/internal/domain/product"
)

// Handler serves the checkout API, delegating business logic to the injected
// domain services.
type Handler struct {
	products product.Repository
	coupons  *coupon.Evaluator
	carts    *cart.Service
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	coupons *coupon.Evaluator,
	carts *cart.Service,
	orders *order.Service,
) *Handler {
	return &Handler{
		products: products,
		coupons:  coupons,
		carts:    carts,
		orders:   orders,
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", h.listProducts)

	mux.HandleFunc("GET /api/cart", h.listCart)
	mux.HandleFunc("GET /api/cart/summary", h.cartSummary)
	mux.HandleFunc("POST /api/cart/add", h.addToCart)
	mux.HandleFunc("PUT /api/cart/update", h.updateCart)
	mux.HandleFunc("POST /api/cart/apply-coupon", h.applyCoupon)
	mux.HandleFunc("DELETE /api/cart/{productID}", h.removeFromCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)

	mux.HandleFunc("GET /api/coupons", h.listCoupons)

	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("PUT /api/orders/{id}/cancel", h.cancelOrder)
	return mux
}

// user resolves the caller identity. Authentication happens upstream; an
// absent header means the request never passed through it.
func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return id, true
}

// writeDomainError maps domain errors onto HTTP statuses: 400 validation,
// 404 not found, 409 business-rule conflicts, 422 stock and coupon
// rejections, 503 for everything unexpected.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *product.InsufficientStockError
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.As(err, &stockErr),
		errors.Is(err, coupon.ErrNotYetValid),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrNotEligible):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, build func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	build(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// encNum writes a decimal as a bare JSON number.
func encNum(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}
