package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Evaluator decides whether a coupon code is usable by a user at a point in
// time. It is strictly read-only: usage counters and grant flags are mutated
// only inside the checkout transaction, so there is no window between
// "validate" and "use" for a second caller to slip through unnoticed.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// Evaluate checks, in order: code exists, validity window, usage limit, and
// (for targeted coupons) an unused grant for the user. The first failing
// check wins. On success it returns the coupon.
func (e *Evaluator) Evaluate(ctx context.Context, code, userID string) (*Coupon, error) {
	c, err := e.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := e.now()
	if now.Before(c.ValidFrom) {
		return nil, ErrNotYetValid
	}
	if now.After(c.ValidTo) {
		return nil, ErrExpired
	}

	if c.TotalUsed >= c.MaxUses {
		return nil, ErrUsageLimitReached
	}

	if !c.Public {
		g, err := e.repo.FindGrant(ctx, userID, c.ID)
		if err != nil {
			if errors.Is(err, ErrNotEligible) {
				return nil, ErrNotEligible
			}
			return nil, errors.Wrap(err, "lookup grant")
		}
		if g.Used {
			return nil, ErrNotEligible
		}
	}

	return c, nil
}

// AvailableForUser lists coupons the user could redeem right now: public
// coupons plus targeted coupons with an unused grant, filtered to those
// inside their validity window with uses remaining.
func (e *Evaluator) AvailableForUser(ctx context.Context, userID string) ([]Coupon, error) {
	public, err := e.repo.ListPublic(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list public coupons")
	}
	granted, err := e.repo.ListGrantedTo(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list granted coupons")
	}

	now := e.now()
	seen := make(map[string]struct{}, len(public)+len(granted))
	available := make([]Coupon, 0, len(public)+len(granted))
	for _, c := range append(public, granted...) {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
			continue
		}
		if c.TotalUsed >= c.MaxUses {
			continue
		}
		available = append(available, c)
	}
	return available, nil
}
