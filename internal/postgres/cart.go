package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/homecart/internal/domain/cart"
)

// coupon_id is NULL when no coupon is applied; the domain uses the empty
// string for that, hence the NULLIF/COALESCE pair.
const (
	cartLineColumns = `id, user_id, product_id, COALESCE(coupon_id, ''), quantity,
		unit_price, subtotal, tax_rate, discount_amount, final_price, created_at, updated_at`

	listCartLinesSQL = `SELECT ` + cartLineColumns + `
		FROM cart_lines WHERE user_id = $1 ORDER BY created_at, id`

	listCartLinesByIDsSQL = `SELECT ` + cartLineColumns + `
		FROM cart_lines WHERE user_id = $1 AND id = ANY($2) ORDER BY created_at, id`

	getCartLineSQL = `SELECT ` + cartLineColumns + `
		FROM cart_lines WHERE user_id = $1 AND product_id = $2`

	upsertCartLineSQL = `INSERT INTO cart_lines (id, user_id, product_id, coupon_id, quantity,
			unit_price, subtotal, tax_rate, discount_amount, final_price)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			coupon_id = EXCLUDED.coupon_id,
			quantity = EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price,
			subtotal = EXCLUDED.subtotal,
			tax_rate = EXCLUDED.tax_rate,
			discount_amount = EXCLUDED.discount_amount,
			final_price = EXCLUDED.final_price,
			updated_at = now()`

	deleteCartLineSQL = `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`

	deleteCartLinesByIDsSQL = `DELETE FROM cart_lines WHERE user_id = $1 AND id = ANY($2)`

	deleteAllCartLinesSQL = `DELETE FROM cart_lines WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db DB
}

func (r *CartRepository) ListByUser(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.db.Query(ctx, listCartLinesSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing cart lines for %q", userID)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

func (r *CartRepository) ListByIDs(ctx context.Context, userID string, ids []string) ([]cart.Line, error) {
	rows, err := r.db.Query(ctx, listCartLinesByIDsSQL, userID, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "listing cart lines for %q", userID)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

func (r *CartRepository) Get(ctx context.Context, userID, productID string) (*cart.Line, error) {
	rows, err := r.db.Query(ctx, getCartLineSQL, userID, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "getting cart line for product %q", productID)
	}

	l, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, errors.Wrapf(err, "getting cart line for product %q", productID)
	}
	return &l, nil
}

func (r *CartRepository) Upsert(ctx context.Context, l *cart.Line) error {
	_, err := r.db.Exec(ctx, upsertCartLineSQL,
		l.ID, l.UserID, l.ProductID, l.CouponID, l.Quantity,
		l.UnitPrice, l.Subtotal, l.TaxRate, l.Discount, l.FinalPrice,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting cart line for product %q", l.ProductID)
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, userID, productID string) error {
	tag, err := r.db.Exec(ctx, deleteCartLineSQL, userID, productID)
	if err != nil {
		return errors.Wrapf(err, "deleting cart line for product %q", productID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (r *CartRepository) DeleteByIDs(ctx context.Context, userID string, ids []string) error {
	_, err := r.db.Exec(ctx, deleteCartLinesByIDsSQL, userID, ids)
	if err != nil {
		return errors.Wrapf(err, "deleting cart lines for %q", userID)
	}
	return nil
}

func (r *CartRepository) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, deleteAllCartLinesSQL, userID)
	if err != nil {
		return errors.Wrapf(err, "clearing cart for %q", userID)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(
		&l.ID, &l.UserID, &l.ProductID, &l.CouponID, &l.Quantity,
		&l.UnitPrice, &l.Subtotal, &l.TaxRate, &l.Discount, &l.FinalPrice,
		&l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}
