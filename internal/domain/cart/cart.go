package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrLineNotFound is returned when no cart line matches the request.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrEmptyCart is returned by operations that need at least one line.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Line is one product entry in a user's pending selection. Prices are a
// snapshot taken at the last explicit mutation; background product price
// changes never touch a stored line.
type Line struct {
	ID        string
	UserID    string
	ProductID string
	// CouponID records which coupon discounted this line; empty when none.
	CouponID  string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	TaxRate   decimal.Decimal
	Discount  decimal.Decimal
	// FinalPrice is the amount charged for the line after discount and tax.
	FinalPrice decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Summary aggregates a user's cart totals.
type Summary struct {
	TotalItems int
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

// Repository defines persistence operations for cart lines. One line exists
// per (user, product) pair.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Line, error)
	// ListByIDs returns the user's lines among the given line ids, for
	// partial checkout. Ids belonging to other users are ignored.
	ListByIDs(ctx context.Context, userID string, ids []string) ([]Line, error)
	Get(ctx context.Context, userID, productID string) (*Line, error)
	Upsert(ctx context.Context, l *Line) error
	Delete(ctx context.Context, userID, productID string) error
	DeleteByIDs(ctx context.Context, userID string, ids []string) error
	DeleteAll(ctx context.Context, userID string) error
}
