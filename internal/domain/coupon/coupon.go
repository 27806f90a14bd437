package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Eligibility errors, ordered the way Evaluator checks them.
var (
	// ErrNotFound is returned when no coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrNotYetValid is returned when the coupon's validity window has not opened.
	ErrNotYetValid = errors.New("coupon is not yet valid")
	// ErrExpired is returned when the coupon's validity window has closed.
	ErrExpired = errors.New("coupon has expired")
	// ErrUsageLimitReached is returned when the coupon has exhausted its total uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrNotEligible is returned when a targeted coupon has no unused grant
	// for the user.
	ErrNotEligible = errors.New("user is not eligible for this coupon")
)

// Coupon is a percentage discount redeemable within a validity window.
// Codes match case-insensitively. TotalUsed never exceeds MaxUses; the
// counter is mutated only inside the checkout transaction.
type Coupon struct {
	ID              string
	Code            string
	DiscountPercent decimal.Decimal
	Public          bool
	ValidFrom       time.Time
	ValidTo         time.Time
	MaxUses         int
	TotalUsed       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Grant authorizes one user to redeem a targeted (non-public) coupon once.
type Grant struct {
	ID        string
	UserID    string
	CouponID  string
	Used      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides lookup and mutation of coupons and grants.
type Repository interface {
	// FindByCode matches the code case-insensitively and returns ErrNotFound
	// when no coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)

	// ListPublic returns all public coupons; ListGrantedTo returns coupons
	// for which the user holds an unused grant. Validity and usage filtering
	// is the Evaluator's job.
	ListPublic(ctx context.Context) ([]Coupon, error)
	ListGrantedTo(ctx context.Context, userID string) ([]Coupon, error)

	// FindGrant returns ErrNotEligible when the user has no grant for the coupon.
	FindGrant(ctx context.Context, userID, couponID string) (*Grant, error)

	// MarkGrantUsed flips the grant's used flag. It fails with ErrNotEligible
	// when no unused grant exists, guarding targeted single use under
	// concurrent checkouts.
	MarkGrantUsed(ctx context.Context, userID, couponID string) error

	// IncrementUses bumps total_used by one, failing with
	// ErrUsageLimitReached when total_used has already reached max_uses.
	// Conditional so the totalUsed <= maxUses invariant holds under
	// concurrent checkouts.
	IncrementUses(ctx context.Context, id string) error

	Upsert(ctx context.Context, c Coupon) error
	UpsertGrant(ctx context.Context, g Grant) error
}
