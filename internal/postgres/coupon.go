package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/homecart/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_percent, is_public, valid_from, valid_to,
		max_uses, total_used, created_at, updated_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listPublicCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE is_public ORDER BY code`

	listGrantedCouponsSQL = `SELECT c.id, c.code, c.discount_percent, c.is_public,
			c.valid_from, c.valid_to, c.max_uses, c.total_used, c.created_at, c.updated_at
		FROM coupons c
		JOIN coupon_grants g ON g.coupon_id = c.id
		WHERE g.user_id = $1 AND NOT g.used
		ORDER BY c.code`

	findGrantSQL = `SELECT id, user_id, coupon_id, used, created_at, updated_at
		FROM coupon_grants WHERE user_id = $1 AND coupon_id = $2`

	markGrantUsedSQL = `UPDATE coupon_grants SET used = TRUE, updated_at = now()
		WHERE user_id = $1 AND coupon_id = $2 AND NOT used`

	incrementCouponUsesSQL = `UPDATE coupons SET total_used = total_used + 1, updated_at = now()
		WHERE id = $1 AND total_used < max_uses`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_percent, is_public,
			valid_from, valid_to, max_uses, total_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			discount_percent = EXCLUDED.discount_percent,
			is_public = EXCLUDED.is_public,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			max_uses = EXCLUDED.max_uses,
			updated_at = now()`

	upsertGrantSQL = `INSERT INTO coupon_grants (id, user_id, coupon_id, used)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, coupon_id) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db DB
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, findCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "finding coupon by code %q", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "finding coupon by code %q", code)
	}
	return &c, nil
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, getCouponSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting coupon %q", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting coupon %q", id)
	}
	return &c, nil
}

func (r *CouponRepository) ListPublic(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, listPublicCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing public coupons")
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func (r *CouponRepository) ListGrantedTo(ctx context.Context, userID string) ([]coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, listGrantedCouponsSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing coupons granted to %q", userID)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func (r *CouponRepository) FindGrant(ctx context.Context, userID, couponID string) (*coupon.Grant, error) {
	rows, err := r.db.Query(ctx, findGrantSQL, userID, couponID)
	if err != nil {
		return nil, errors.Wrapf(err, "finding grant for coupon %q", couponID)
	}

	g, err := pgx.CollectExactlyOneRow(rows, scanGrant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotEligible
		}
		return nil, errors.Wrapf(err, "finding grant for coupon %q", couponID)
	}
	return &g, nil
}

// MarkGrantUsed flips the used flag only when an unused grant exists, so two
// concurrent checkouts cannot both spend a targeted coupon.
func (r *CouponRepository) MarkGrantUsed(ctx context.Context, userID, couponID string) error {
	tag, err := r.db.Exec(ctx, markGrantUsedSQL, userID, couponID)
	if err != nil {
		return errors.Wrapf(err, "marking grant used for coupon %q", couponID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotEligible
	}
	return nil
}

// IncrementUses bumps the counter only while uses remain; the total_used <=
// max_uses invariant holds even under concurrent checkouts.
func (r *CouponRepository) IncrementUses(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, incrementCouponUsesSQL, id)
	if err != nil {
		return errors.Wrapf(err, "incrementing uses for coupon %q", id)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, couponExistsSQL, id).Scan(&exists); err != nil {
			return errors.Wrapf(err, "checking coupon %q", id)
		}
		if !exists {
			return coupon.ErrNotFound
		}
		return coupon.ErrUsageLimitReached
	}
	return nil
}

func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.db.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, c.DiscountPercent, c.Public,
		c.ValidFrom, c.ValidTo, c.MaxUses, c.TotalUsed,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting coupon %q", c.Code)
	}
	return nil
}

func (r *CouponRepository) UpsertGrant(ctx context.Context, g coupon.Grant) error {
	_, err := r.db.Exec(ctx, upsertGrantSQL, g.ID, g.UserID, g.CouponID, g.Used)
	if err != nil {
		return errors.Wrapf(err, "upserting grant for coupon %q", g.CouponID)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountPercent, &c.Public,
		&c.ValidFrom, &c.ValidTo, &c.MaxUses, &c.TotalUsed,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanGrant(row pgx.CollectableRow) (coupon.Grant, error) {
	var g coupon.Grant
	err := row.Scan(&g.ID, &g.UserID, &g.CouponID, &g.Used, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}
