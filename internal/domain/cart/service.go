package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/domain/pricing"
	"github.com/xenking/homecart/internal/domain/product"
)

// Service is the cart ledger: it mutates a user's pending selections and
// keeps each line's price snapshot current. Stock is checked on mutation but
// decremented only at checkout; the checkout transaction re-validates.
type Service struct {
	products product.Repository
	coupons  *coupon.Evaluator
	lines    Repository
	now      func() time.Time
}

// NewService creates a cart Service with the required dependencies.
func NewService(products product.Repository, coupons *coupon.Evaluator, lines Repository) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		lines:    lines,
		now:      time.Now,
	}
}

// Add puts qty units of a product into the user's cart. When a line for the
// product already exists, quantities accumulate. The cumulative quantity
// must not exceed current stock.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (*Line, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", productID)
	}

	line, err := s.lines.Get(ctx, userID, productID)
	switch {
	case err == nil:
		line.Quantity += qty
	case errors.Is(err, ErrLineNotFound):
		line = &Line{
			ID:        uuid.New().String(),
			UserID:    userID,
			ProductID: productID,
			Quantity:  qty,
			CreatedAt: s.now(),
		}
	default:
		return nil, errors.Wrap(err, "get cart line")
	}

	if p.Stock < line.Quantity {
		return nil, &product.InsufficientStockError{
			ProductName: p.Name,
			Requested:   line.Quantity,
			Available:   p.Stock,
		}
	}

	s.reprice(line, p)
	if err := s.lines.Upsert(ctx, line); err != nil {
		return nil, errors.Wrap(err, "upsert cart line")
	}
	return line, nil
}

// Update replaces the line's quantity. A non-positive quantity removes the
// line entirely.
func (s *Service) Update(ctx context.Context, userID, productID string, qty int) (*Line, error) {
	if qty <= 0 {
		return nil, s.Remove(ctx, userID, productID)
	}

	line, err := s.lines.Get(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	if p.Stock < qty {
		return nil, &product.InsufficientStockError{
			ProductName: p.Name,
			Requested:   qty,
			Available:   p.Stock,
		}
	}

	line.Quantity = qty
	s.reprice(line, p)
	if err := s.lines.Upsert(ctx, line); err != nil {
		return nil, errors.Wrap(err, "upsert cart line")
	}
	return line, nil
}

// Remove deletes the user's line for the product.
func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	return s.lines.Delete(ctx, userID, productID)
}

// Clear deletes all of the user's cart lines.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.lines.DeleteAll(ctx, userID)
}

// ApplyCoupon evaluates the code and, when usable, discounts every current
// line by the coupon's percentage of that line's subtotal, stamping the line
// with the coupon id. A new coupon overwrites any previously applied one;
// discounts never stack. Usage counters are untouched here — consumption
// happens inside the checkout transaction.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*coupon.Coupon, error) {
	c, err := s.coupons.Evaluate(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	lines, err := s.lines.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	for i := range lines {
		line := &lines[i]
		line.CouponID = c.ID
		line.Discount = pricing.Round2(pricing.Percentage(line.Subtotal, c.DiscountPercent))
		line.FinalPrice = pricing.Round2(pricing.FinalPrice(line.UnitPrice, line.Quantity, line.Discount, line.TaxRate))
		line.UpdatedAt = s.now()
		if err := s.lines.Upsert(ctx, line); err != nil {
			return nil, errors.Wrap(err, "upsert cart line")
		}
	}
	return c, nil
}

// List returns the user's cart lines.
func (s *Service) List(ctx context.Context, userID string) ([]Line, error) {
	return s.lines.ListByUser(ctx, userID)
}

// Summary aggregates totals across the user's lines. It reads stored
// snapshots only, so repeated calls without mutation yield identical totals.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	lines, err := s.lines.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}

	sum := &Summary{
		Subtotal:   decimal.Zero,
		Discount:   decimal.Zero,
		Tax:        decimal.Zero,
		GrandTotal: decimal.Zero,
	}
	for _, l := range lines {
		sum.TotalItems += l.Quantity
		sum.Subtotal = sum.Subtotal.Add(l.Subtotal)
		sum.Discount = sum.Discount.Add(l.Discount)
		sum.Tax = sum.Tax.Add(pricing.TaxAmount(l.Subtotal, l.Discount, l.TaxRate))
		sum.GrandTotal = sum.GrandTotal.Add(l.FinalPrice)
	}
	sum.Tax = pricing.Round2(sum.Tax)
	return sum, nil
}

// reprice refreshes the line's snapshot from the product's current price and
// tax rate. An existing discount amount is carried over until a coupon is
// re-applied or the line is consumed by checkout.
func (s *Service) reprice(line *Line, p *product.Product) {
	line.UnitPrice = p.Price
	line.TaxRate = p.TaxRate
	line.Subtotal = pricing.Round2(pricing.Subtotal(p.Price, line.Quantity))
	line.FinalPrice = pricing.Round2(pricing.FinalPrice(p.Price, line.Quantity, line.Discount, p.TaxRate))
	line.UpdatedAt = s.now()
}
