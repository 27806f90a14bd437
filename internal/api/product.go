package api

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/homecart/internal/domain/product"
)

// listProducts returns the full catalog. No identity required: browsing is
// open, only cart and order operations need a caller.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			encProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

func encProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	encNum(e, p.Price)
	e.FieldStart("taxRate")
	encNum(e, p.TaxRate)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.ObjEnd()
}
