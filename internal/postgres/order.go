package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/homecart/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, subtotal, discount_amount,
			tax_amount, grand_total, balance_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createOrderLineSQL = `INSERT INTO order_lines (id, order_id, product_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5)`

	orderColumns = `id, user_id, subtotal, discount_amount, tax_amount,
		grand_total, balance_amount, status, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	orderLineColumns = `id, order_id, product_id, quantity, price_at_purchase, created_at`

	listOrderLinesSQL = `SELECT ` + orderLineColumns + `
		FROM order_lines WHERE order_id = $1 ORDER BY created_at, id`

	listOrderLinesByOrdersSQL = `SELECT ` + orderLineColumns + `
		FROM order_lines WHERE order_id = ANY($1) ORDER BY created_at, id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DB
}

// Create persists the order header and all its lines.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.db.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Subtotal, o.Discount, o.Tax,
		o.GrandTotal, o.Balance, o.Status,
	)
	if err != nil {
		return errors.Wrapf(err, "creating order %q", o.ID)
	}

	for _, l := range o.Lines {
		_, err := r.db.Exec(ctx, createOrderLineSQL,
			l.ID, l.OrderID, l.ProductID, l.Quantity, l.PriceAtPurchase,
		)
		if err != nil {
			return errors.Wrapf(err, "creating order line for product %q", l.ProductID)
		}
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID, userID string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderSQL, orderID, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %q", orderID)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %q", orderID)
	}

	lineRows, err := r.db.Query(ctx, listOrderLinesSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing lines for order %q", orderID)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanOrderLine)
	if err != nil {
		return nil, errors.Wrapf(err, "listing lines for order %q", orderID)
	}
	return &o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders for %q", userID)
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders for %q", userID)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	byID := make(map[string]*order.Order, len(out))
	for i := range out {
		ids[i] = out[i].ID
		byID[out[i].ID] = &out[i]
	}

	lineRows, err := r.db.Query(ctx, listOrderLinesByOrdersSQL, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "listing order lines for %q", userID)
	}
	lines, err := pgx.CollectRows(lineRows, scanOrderLine)
	if err != nil {
		return nil, errors.Wrapf(err, "listing order lines for %q", userID)
	}
	for _, l := range lines {
		o := byID[l.OrderID]
		o.Lines = append(o.Lines, l)
	}
	return out, nil
}

// UpdateStatus transitions the order only when it is still in the expected
// status, so a concurrent transition loses cleanly.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to order.Status) error {
	// The owner check happens in GetByID inside the same transaction;
	// orders never change owner.
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, orderID, to, from)
	if err != nil {
		return errors.Wrapf(err, "updating status of order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
			return errors.Wrapf(err, "checking order %q", orderID)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrNotCancellable
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.Tax,
		&o.GrandTotal, &o.Balance, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.PriceAtPurchase, &l.CreatedAt)
	return l, err
}
