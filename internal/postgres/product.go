package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/homecart/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, tax_rate, stock_quantity, created_at, updated_at
		FROM products ORDER BY name`

	getProductSQL = `SELECT id, name, price, tax_rate, stock_quantity, created_at, updated_at
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, tax_rate, stock_quantity, created_at, updated_at
		FROM products WHERE id = ANY($1)`

	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`

	restoreStockSQL = `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	upsertProductSQL = `INSERT INTO products (id, name, price, tax_rate, stock_quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			tax_rate = EXCLUDED.tax_rate,
			stock_quantity = EXCLUDED.stock_quantity,
			updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock subtracts qty only when enough stock remains; the predicate
// and the write are one statement, so concurrent checkouts cannot jointly
// drive stock negative.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := r.db.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return errors.Wrapf(err, "decrementing stock for %q", id)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, id, product.ErrInsufficientStock)
	}
	return nil
}

func (r *ProductRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	tag, err := r.db.Exec(ctx, restoreStockSQL, id, qty)
	if err != nil {
		return errors.Wrapf(err, "restoring stock for %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.db.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.TaxRate, p.Stock)
	if err != nil {
		return errors.Wrapf(err, "upserting product %q", p.ID)
	}
	return nil
}

// missingOr distinguishes a failed conditional update on a missing row from
// one on an existing row.
func (r *ProductRepository) missingOr(ctx context.Context, id string, present error) error {
	var exists bool
	if err := r.db.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "checking product %q", id)
	}
	if !exists {
		return product.ErrNotFound
	}
	return present
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.TaxRate, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
