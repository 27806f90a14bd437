//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != seededProducts {
		t.Fatalf("expected %d products, got %d", seededProducts, len(products))
	}
}

func TestListProducts_Fields(t *testing.T) {
	resp := doGet(t, "/api/products", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)

	var chair *productResponse
	for i := range products {
		if products[i].ID == "chair-oak" {
			chair = &products[i]
			break
		}
	}

	if chair == nil {
		t.Fatal("product with ID 'chair-oak' not found")
	}
	if chair.Name != "Oak Dining Chair" {
		t.Errorf("name: got %q, want %q", chair.Name, "Oak Dining Chair")
	}
	if chair.Price != 100 {
		t.Errorf("price: got %v, want 100", chair.Price)
	}
	if chair.TaxRate != 18 {
		t.Errorf("taxRate: got %v, want 18", chair.TaxRate)
	}
	if chair.Stock <= 0 {
		t.Errorf("stock: got %v, want > 0", chair.Stock)
	}
}
