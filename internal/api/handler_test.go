package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/homecart/internal/api"
	"github.com/xenking/homecart/internal/domain/cart"
	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/domain/order"
	"github.com/xenking/homecart/internal/domain/product"
	"github.com/xenking/homecart/internal/memstore"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	require.NoError(t, s.Products().Upsert(ctx, product.Product{
		ID:      "p1",
		Name:    "Wooden Chair",
		Price:   decimal.NewFromInt(100),
		TaxRate: decimal.NewFromInt(18),
		Stock:   5,
	}))
	require.NoError(t, s.Products().Upsert(ctx, product.Product{
		ID:      "p2",
		Name:    "Table Lamp",
		Price:   decimal.NewFromInt(50),
		TaxRate: decimal.NewFromInt(18),
		Stock:   10,
	}))
	require.NoError(t, s.Coupons().Upsert(ctx, coupon.Coupon{
		ID:              "c-save10",
		Code:            "SAVE10",
		DiscountPercent: decimal.NewFromInt(10),
		Public:          true,
		ValidFrom:       time.Now().Add(-time.Hour),
		ValidTo:         time.Now().Add(24 * time.Hour),
		MaxUses:         100,
	}))
	require.NoError(t, s.Coupons().Upsert(ctx, coupon.Coupon{
		ID:              "c-vip20",
		Code:            "VIP20",
		DiscountPercent: decimal.NewFromInt(20),
		ValidFrom:       time.Now().Add(-time.Hour),
		ValidTo:         time.Now().Add(24 * time.Hour),
		MaxUses:         100,
	}))

	evaluator := coupon.NewEvaluator(s.Coupons())
	carts := cart.NewService(s.Products(), evaluator, s.Carts())
	orders := order.NewService(s)
	return api.NewHandler(s.Products(), evaluator, carts, orders).Routes()
}

func do(t *testing.T, mux *http.ServeMux, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestIdentityRequired(t *testing.T) {
	mux := newTestMux(t)

	for _, path := range []string{"/api/cart", "/api/coupons", "/api/orders"} {
		w := do(t, mux, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestListProducts(t *testing.T) {
	mux := newTestMux(t)

	// Catalog browsing needs no identity.
	w := do(t, mux, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	products := decodeList(t, w)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0]["id"])
	assert.Equal(t, float64(100), products[0]["price"])
	assert.Equal(t, float64(5), products[0]["stock"])
}

func TestCartFlow(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/cart/add", "u1", `{"productId":"p1","quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	line := decodeBody(t, w)
	assert.Equal(t, float64(3), line["quantity"])
	assert.Equal(t, float64(300), line["subtotal"])
	assert.Equal(t, float64(354), line["finalPrice"])

	w = do(t, mux, http.MethodPost, "/api/cart/apply-coupon", "u1", `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SAVE10", decodeBody(t, w)["code"])

	w = do(t, mux, http.MethodGet, "/api/cart/summary", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	sum := decodeBody(t, w)
	assert.Equal(t, float64(3), sum["totalItems"])
	assert.Equal(t, float64(300), sum["subtotal"])
	assert.Equal(t, float64(30), sum["discount"])
	assert.Equal(t, 48.60, sum["tax"])
	assert.Equal(t, 318.6, sum["grandTotal"])

	w = do(t, mux, http.MethodGet, "/api/cart", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	lines := decodeList(t, w)
	require.Len(t, lines, 1)
	assert.Equal(t, "c-save10", lines[0]["couponId"])

	w = do(t, mux, http.MethodPut, "/api/cart/update", "u1", `{"productId":"p1","quantity":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["quantity"])

	w = do(t, mux, http.MethodDelete, "/api/cart/p1", "u1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, mux, http.MethodGet, "/api/cart", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeList(t, w))
}

func TestCartAddErrors(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"missing product id", `{"quantity":1}`, http.StatusBadRequest},
		{"zero quantity", `{"productId":"p1","quantity":0}`, http.StatusBadRequest},
		{"unknown product", `{"productId":"nope","quantity":1}`, http.StatusNotFound},
		{"beyond stock", `{"productId":"p1","quantity":6}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, "/api/cart/add", "u1", tt.body)
			assert.Equal(t, tt.want, w.Code)

			body := decodeBody(t, w)
			assert.Equal(t, float64(tt.want), body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestApplyCouponIneligible(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/cart/add", "u1", `{"productId":"p1","quantity":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	// VIP20 is targeted and u1 holds no grant.
	w = do(t, mux, http.MethodPost, "/api/cart/apply-coupon", "u1", `{"code":"VIP20"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, mux, http.MethodPost, "/api/cart/apply-coupon", "u1", `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCoupons(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodGet, "/api/coupons", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	coupons := decodeList(t, w)
	require.Len(t, coupons, 1)
	assert.Equal(t, "SAVE10", coupons[0]["code"])
}

func TestOrderFlow(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/cart/add", "u1", `{"productId":"p1","quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, mux, http.MethodPost, "/api/cart/apply-coupon", "u1", `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, mux, http.MethodPost, "/api/orders", "u1", "")
	require.Equal(t, http.StatusCreated, w.Code)
	placed := decodeBody(t, w)
	orderID, _ := placed["id"].(string)
	require.NotEmpty(t, orderID)
	assert.Equal(t, "Pending", placed["status"])
	assert.Equal(t, 318.6, placed["grandTotal"])

	w = do(t, mux, http.MethodGet, "/api/orders/"+orderID, "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody(t, w)
	lines, _ := got["lines"].([]any)
	require.Len(t, lines, 1)

	// Another user cannot see the order.
	w = do(t, mux, http.MethodGet, "/api/orders/"+orderID, "u2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, mux, http.MethodGet, "/api/orders", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	w = do(t, mux, http.MethodPut, "/api/orders/"+orderID+"/cancel", "u1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	// A cancelled order cannot be cancelled again.
	w = do(t, mux, http.MethodPut, "/api/orders/"+orderID+"/cancel", "u1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/orders", "u1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPartialCheckoutByLineIDs(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/cart/add", "u1", `{"productId":"p1","quantity":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	chairLine, _ := decodeBody(t, w)["id"].(string)
	require.NotEmpty(t, chairLine)

	w = do(t, mux, http.MethodPost, "/api/cart/add", "u1", `{"productId":"p2","quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, mux, http.MethodPost, "/api/orders", "u1", `{"lineIds":["`+chairLine+`"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, mux, http.MethodGet, "/api/cart", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	lines := decodeList(t, w)
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0]["productId"])
}
