//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestCart_NoIdentity(t *testing.T) {
	resp := doPost(t, "/api/cart/add", "", cartItemRequest{ProductID: "chair-oak", Quantity: 1})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCart_AddAndSummary(t *testing.T) {
	user := newUser()

	line := addToCart(t, user, "chair-oak", 2)
	if line.Quantity != 2 {
		t.Errorf("quantity: got %d, want 2", line.Quantity)
	}
	if line.UnitPrice != 100 {
		t.Errorf("unitPrice: got %v, want 100", line.UnitPrice)
	}
	if line.Subtotal != 200 {
		t.Errorf("subtotal: got %v, want 200", line.Subtotal)
	}
	// 200 + 18% tax
	if line.FinalPrice != 236 {
		t.Errorf("finalPrice: got %v, want 236", line.FinalPrice)
	}

	resp := doGet(t, "/api/cart/summary", user)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	sum := decodeJSON[cartSummaryResponse](t, resp)
	if sum.TotalItems != 2 {
		t.Errorf("totalItems: got %d, want 2", sum.TotalItems)
	}
	if sum.Subtotal != 200 {
		t.Errorf("subtotal: got %v, want 200", sum.Subtotal)
	}
	if sum.Tax != 36 {
		t.Errorf("tax: got %v, want 36", sum.Tax)
	}
	if sum.GrandTotal != 236 {
		t.Errorf("grandTotal: got %v, want 236", sum.GrandTotal)
	}
}

func TestCart_AddAccumulates(t *testing.T) {
	user := newUser()

	addToCart(t, user, "lamp-brass", 1)
	line := addToCart(t, user, "lamp-brass", 2)

	if line.Quantity != 3 {
		t.Errorf("quantity: got %d, want 3", line.Quantity)
	}
}

func TestCart_AddBeyondStock(t *testing.T) {
	user := newUser()

	// desk-walnut is seeded with 8 units.
	resp := doPost(t, "/api/cart/add", user, cartItemRequest{ProductID: "desk-walnut", Quantity: 100})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCart_AddUnknownProduct(t *testing.T) {
	user := newUser()

	resp := doPost(t, "/api/cart/add", user, cartItemRequest{ProductID: "no-such-product", Quantity: 1})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != 404 {
		t.Errorf("error code: got %d, want 404", errResp.Code)
	}
}

func TestCart_ApplyCoupon(t *testing.T) {
	user := newUser()

	addToCart(t, user, "chair-oak", 2)

	resp := doPost(t, "/api/cart/apply-coupon", user, map[string]string{"code": "SAVE10"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	c := decodeJSON[couponResponse](t, resp)
	if c.Code != "SAVE10" {
		t.Errorf("code: got %q, want SAVE10", c.Code)
	}

	// 200 - 10% = 180, + 18% tax = 212.40
	sumResp := doGet(t, "/api/cart/summary", user)
	defer sumResp.Body.Close()

	sum := decodeJSON[cartSummaryResponse](t, sumResp)
	if sum.Discount != 20 {
		t.Errorf("discount: got %v, want 20", sum.Discount)
	}
	if sum.Tax != 32.4 {
		t.Errorf("tax: got %v, want 32.4", sum.Tax)
	}
	if sum.GrandTotal != 212.4 {
		t.Errorf("grandTotal: got %v, want 212.4", sum.GrandTotal)
	}
}

func TestCart_ApplyTargetedCouponWithoutGrant(t *testing.T) {
	user := newUser()

	addToCart(t, user, "chair-oak", 1)

	resp := doPost(t, "/api/cart/apply-coupon", user, map[string]string{"code": "WELCOME25"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCart_UpdateAndRemove(t *testing.T) {
	user := newUser()

	addToCart(t, user, "shelf-pine", 3)

	resp := doPut(t, "/api/cart/update", user, cartItemRequest{ProductID: "shelf-pine", Quantity: 1})
	line := decodeJSON[cartLineResponse](t, resp)
	resp.Body.Close()

	if line.Quantity != 1 {
		t.Errorf("quantity: got %d, want 1", line.Quantity)
	}

	// Zero quantity removes the line.
	resp = doPut(t, "/api/cart/update", user, cartItemRequest{ProductID: "shelf-pine", Quantity: 0})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	listResp := doGet(t, "/api/cart", user)
	defer listResp.Body.Close()

	lines := decodeJSON[[]cartLineResponse](t, listResp)
	if len(lines) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(lines))
	}
}

func TestCart_Clear(t *testing.T) {
	user := newUser()

	addToCart(t, user, "chair-oak", 1)
	addToCart(t, user, "lamp-brass", 1)

	resp := doDelete(t, "/api/cart", user)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	listResp := doGet(t, "/api/cart", user)
	defer listResp.Body.Close()

	lines := decodeJSON[[]cartLineResponse](t, listResp)
	if len(lines) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(lines))
	}
}

func TestCoupons_VisibleToGrantedUser(t *testing.T) {
	resp := doGet(t, "/api/coupons", grantedUser)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	coupons := decodeJSON[[]couponResponse](t, resp)
	codes := make(map[string]bool, len(coupons))
	for _, c := range coupons {
		codes[c.Code] = true
	}
	if !codes["SAVE10"] {
		t.Error("public coupon SAVE10 not listed")
	}
	if !codes["WELCOME25"] {
		t.Error("granted coupon WELCOME25 not listed")
	}
}

func TestCoupons_PublicOnlyForOthers(t *testing.T) {
	resp := doGet(t, "/api/coupons", newUser())
	defer resp.Body.Close()

	coupons := decodeJSON[[]couponResponse](t, resp)
	for _, c := range coupons {
		if !c.Public {
			t.Errorf("non-public coupon %s listed for ungranted user", c.Code)
		}
	}
}
