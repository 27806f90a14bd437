package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/homecart/internal/domain/cart"
	"github.com/xenking/homecart/internal/domain/coupon"
)

type cartItemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req cartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId required")
		return
	}

	line, err := h.carts.Add(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encCartLine(e, line) })
}

func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req cartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId required")
		return
	}

	line, err := h.carts.Update(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if line == nil {
		// Non-positive quantity removed the line.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encCartLine(e, line) })
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.carts.Remove(r.Context(), userID, r.PathValue("productID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), userID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}

	c, err := h.carts.ApplyCoupon(r.Context(), userID, req.Code)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encCoupon(e, c) })
}

func (h *Handler) listCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	lines, err := h.carts.List(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range lines {
			encCartLine(e, &lines[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) cartSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	sum, err := h.carts.Summary(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("totalItems")
		e.Int(sum.TotalItems)
		e.FieldStart("subtotal")
		encNum(e, sum.Subtotal)
		e.FieldStart("discount")
		encNum(e, sum.Discount)
		e.FieldStart("tax")
		encNum(e, sum.Tax)
		e.FieldStart("grandTotal")
		encNum(e, sum.GrandTotal)
		e.ObjEnd()
	})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	coupons, err := h.coupons.AvailableForUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range coupons {
			encCoupon(e, &coupons[i])
		}
		e.ArrEnd()
	})
}

func encCartLine(e *jx.Encoder, l *cart.Line) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(l.ID)
	e.FieldStart("productId")
	e.Str(l.ProductID)
	if l.CouponID != "" {
		e.FieldStart("couponId")
		e.Str(l.CouponID)
	}
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("unitPrice")
	encNum(e, l.UnitPrice)
	e.FieldStart("subtotal")
	encNum(e, l.Subtotal)
	e.FieldStart("taxRate")
	encNum(e, l.TaxRate)
	e.FieldStart("discount")
	encNum(e, l.Discount)
	e.FieldStart("finalPrice")
	encNum(e, l.FinalPrice)
	e.ObjEnd()
}

func encCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discountPercent")
	encNum(e, c.DiscountPercent)
	e.FieldStart("public")
	e.Bool(c.Public)
	e.FieldStart("validFrom")
	e.Str(c.ValidFrom.Format(time.RFC3339))
	e.FieldStart("validTo")
	e.Str(c.ValidTo.Format(time.RFC3339))
	e.ObjEnd()
}
