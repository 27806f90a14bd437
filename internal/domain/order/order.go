package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/homecart/internal/domain/cart"
	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/domain/product"
)

var (
	// ErrNotFound is returned when no order matches the id and owner.
	ErrNotFound = errors.New("order not found")
	// ErrNotCancellable is returned when the order is not in Pending status.
	ErrNotCancellable = errors.New("order cannot be cancelled")
	// ErrConflict marks a transaction aborted by a competing writer. The
	// service retries such failures once; business-rule failures are never
	// retried.
	ErrConflict = errors.New("transaction conflict")
)

// Status is an order's lifecycle state. Only Pending orders may be
// cancelled; the remaining transitions belong to fulfilment, not this core.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCancelled Status = "Cancelled"
	StatusConfirmed Status = "Confirmed"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
)

// Order is the immutable result of a checkout. Only Status and Balance may
// change after creation.
type Order struct {
	ID         string
	UserID     string
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
	Balance    decimal.Decimal
	Status     Status
	Lines      []Line
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Line is an immutable snapshot of one ordered product. PriceAtPurchase is
// the product's unit price at checkout time, decoupled from later changes.
type Line struct {
	ID              string
	OrderID         string
	ProductID       string
	Quantity        int
	PriceAtPurchase decimal.Decimal
	CreatedAt       time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order header and all its lines.
	Create(ctx context.Context, o *Order) error
	// GetByID returns ErrNotFound when no order matches id and owner.
	GetByID(ctx context.Context, orderID, userID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus transitions the order from one status to another,
	// failing with ErrNotCancellable when the current status differs from
	// the expected one. Conditional so a concurrent transition loses cleanly.
	UpdateStatus(ctx context.Context, orderID string, from, to Status) error
}

// Tx exposes every repository bound to one transaction scope.
type Tx interface {
	Products() product.Repository
	Coupons() coupon.Repository
	Carts() cart.Repository
	Orders() Repository
}

// Store is the transactional persistence boundary. Repository accessors on
// the Store itself run in auto-commit mode; InTx runs fn within a single
// transaction and rolls everything back when fn returns an error. The
// explicit handle keeps the checkout's atomicity contract visible at the
// call site instead of relying on ambient transaction state.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
