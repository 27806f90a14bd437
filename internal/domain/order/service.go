package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/homecart/internal/domain/cart"
	"github.com/xenking/homecart/internal/domain/pricing"
	"github.com/xenking/homecart/internal/domain/product"
)

// Service converts carts into orders and manages the order lifecycle.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an order Service on top of the transactional store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Checkout converts the user's cart lines (optionally restricted to the
// given line ids) into a persisted order, inside one transaction:
//
//  1. load lines; fail cart.ErrEmptyCart when none
//  2. re-validate stock against current inventory and decrement it — the
//     add-to-cart check is advisory only, this one is authoritative
//  3. aggregate totals from the stored line snapshots (no re-pricing)
//  4. persist the order with price-at-purchase taken from the product's
//     current unit price
//  5. consume coupons referenced by the lines: mark targeted grants used,
//     bump each coupon's usage counter
//  6. delete the consumed lines
//
// Any failure rolls the whole transaction back. A conflict with a competing
// writer is retried once.
func (s *Service) Checkout(ctx context.Context, userID string, lineIDs []string) (*Order, error) {
	var placed *Order
	err := s.inTxRetry(ctx, func(tx Tx) error {
		o, err := s.checkout(ctx, tx, userID, lineIDs)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (s *Service) checkout(ctx context.Context, tx Tx, userID string, lineIDs []string) (*Order, error) {
	var (
		lines []cart.Line
		err   error
	)
	if len(lineIDs) > 0 {
		lines, err = tx.Carts().ListByIDs(ctx, userID, lineIDs)
	} else {
		lines, err = tx.Carts().ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load cart lines")
	}
	if len(lines) == 0 {
		return nil, cart.ErrEmptyCart
	}

	now := s.now()
	o := &Order{
		ID:         uuid.New().String(),
		UserID:     userID,
		Subtotal:   decimal.Zero,
		Discount:   decimal.Zero,
		Tax:        decimal.Zero,
		GrandTotal: decimal.Zero,
		Balance:    decimal.Zero,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	consumed := make([]string, 0, len(lines))
	for _, line := range lines {
		p, err := tx.Products().GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "get product %s", line.ProductID)
		}
		if p.Stock < line.Quantity {
			return nil, &product.InsufficientStockError{
				ProductName: p.Name,
				Requested:   line.Quantity,
				Available:   p.Stock,
			}
		}
		if err := tx.Products().DecrementStock(ctx, p.ID, line.Quantity); err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				return nil, &product.InsufficientStockError{
					ProductName: p.Name,
					Requested:   line.Quantity,
					Available:   p.Stock,
				}
			}
			return nil, errors.Wrapf(err, "decrement stock for %s", p.ID)
		}

		// Totals come from the stored snapshots; the order line price is
		// the product's current price ("price honored at order time").
		o.Subtotal = o.Subtotal.Add(line.Subtotal)
		o.Discount = o.Discount.Add(line.Discount)
		o.Tax = o.Tax.Add(pricing.TaxAmount(line.Subtotal, line.Discount, line.TaxRate))
		o.GrandTotal = o.GrandTotal.Add(line.FinalPrice)

		o.Lines = append(o.Lines, Line{
			ID:              uuid.New().String(),
			OrderID:         o.ID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			PriceAtPurchase: p.Price,
			CreatedAt:       now,
		})
		consumed = append(consumed, line.ID)
	}

	o.Subtotal = pricing.Round2(o.Subtotal)
	o.Discount = pricing.Round2(o.Discount)
	o.Tax = pricing.Round2(o.Tax)
	o.GrandTotal = pricing.Round2(o.GrandTotal)

	if err := tx.Orders().Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if err := s.consumeCoupons(ctx, tx, userID, lines); err != nil {
		return nil, err
	}

	if err := tx.Carts().DeleteByIDs(ctx, userID, consumed); err != nil {
		return nil, errors.Wrap(err, "delete cart lines")
	}
	return o, nil
}

// consumeCoupons walks the consumed lines and, for each carrying a coupon
// reference, marks the user's grant used (targeted coupons) and increments
// the coupon's usage counter. One increment per line, mirroring how the
// discount was granted per line.
func (s *Service) consumeCoupons(ctx context.Context, tx Tx, userID string, lines []cart.Line) error {
	for _, line := range lines {
		if line.CouponID == "" {
			continue
		}

		c, err := tx.Coupons().GetByID(ctx, line.CouponID)
		if err != nil {
			return errors.Wrapf(err, "get coupon %s", line.CouponID)
		}
		if !c.Public {
			if err := tx.Coupons().MarkGrantUsed(ctx, userID, c.ID); err != nil {
				return errors.Wrapf(err, "mark grant used for coupon %s", c.ID)
			}
		}
		if err := tx.Coupons().IncrementUses(ctx, c.ID); err != nil {
			return errors.Wrapf(err, "increment uses for coupon %s", c.ID)
		}
	}
	return nil
}

// Cancel transitions a Pending order to Cancelled and restores each line's
// quantity onto the product's stock, as one transaction. The status is
// re-read inside the transaction so a concurrent transition loses cleanly.
// Coupon usage is deliberately not reversed: a consumed coupon stays
// consumed even when the order is cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) error {
	return s.inTxRetry(ctx, func(tx Tx) error {
		o, err := tx.Orders().GetByID(ctx, orderID, userID)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotCancellable
		}

		for _, line := range o.Lines {
			if err := tx.Products().RestoreStock(ctx, line.ProductID, line.Quantity); err != nil {
				return errors.Wrapf(err, "restore stock for %s", line.ProductID)
			}
		}
		return tx.Orders().UpdateStatus(ctx, orderID, StatusPending, StatusCancelled)
	})
}

// Get returns the user's order by id.
func (s *Service) Get(ctx context.Context, orderID, userID string) (*Order, error) {
	return s.store.Orders().GetByID(ctx, orderID, userID)
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.store.Orders().ListByUser(ctx, userID)
}

// inTxRetry runs fn in a transaction, retrying exactly once when the store
// reports a conflict. fn must be safe to re-run from scratch.
func (s *Service) inTxRetry(ctx context.Context, fn func(tx Tx) error) error {
	err := s.store.InTx(ctx, fn)
	if errors.Is(err, ErrConflict) {
		err = s.store.InTx(ctx, fn)
	}
	return err
}
