package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by conditional stock decrements when
	// the remaining stock cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError carries product context for a failed stock check,
// so callers can report which product blocked the operation.
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// Product represents a catalog item available for purchase. Stock is the
// available-to-sell quantity; it is mutated only by checkout (decrement)
// and order cancellation (restore) and never goes negative.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	TaxRate   decimal.Decimal
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines catalog and stock operations.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// DecrementStock atomically subtracts qty from the product's stock,
	// failing with ErrInsufficientStock when stock < qty. The check and the
	// write happen as one statement so concurrent checkouts cannot jointly
	// oversubscribe stock.
	DecrementStock(ctx context.Context, id string, qty int) error

	// RestoreStock adds qty back onto the product's stock.
	RestoreStock(ctx context.Context, id string, qty int) error

	Upsert(ctx context.Context, p Product) error
}
