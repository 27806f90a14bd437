// Package postgres implements the transactional store and all repositories
// on top of PostgreSQL via pgx.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/homecart/db"
	"github.com/xenking/homecart/internal/domain/cart"
	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/domain/order"
	"github.com/xenking/homecart/internal/domain/product"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "running migrations")
	}
	return nil
}

// DB is the querying surface shared by *pgxpool.Pool and pgx.Tx, so every
// repository works both in auto-commit mode and inside a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ order.Store = (*Store)(nil)

// Store implements order.Store. Repository accessors on the Store run against
// the pool directly; InTx binds them all to one serializable transaction.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Products() product.Repository { return &ProductRepository{db: s.pool} }
func (s *Store) Coupons() coupon.Repository   { return &CouponRepository{db: s.pool} }
func (s *Store) Carts() cart.Repository       { return &CartRepository{db: s.pool} }
func (s *Store) Orders() order.Repository     { return &OrderRepository{db: s.pool} }

// InTx runs fn inside one SERIALIZABLE transaction. Any error from fn rolls
// the transaction back; serialization failures and deadlocks surface as
// order.ErrConflict so the caller can retry.
func (s *Store) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(&txStore{tx: tx})
	})
	return mapConflict(err)
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) Products() product.Repository { return &ProductRepository{db: t.tx} }
func (t *txStore) Coupons() coupon.Repository   { return &CouponRepository{db: t.tx} }
func (t *txStore) Carts() cart.Repository       { return &CartRepository{db: t.tx} }
func (t *txStore) Orders() order.Repository     { return &OrderRepository{db: t.tx} }

// SQLSTATE codes for serialization_failure and deadlock_detected.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected {
			return errors.Wrap(order.ErrConflict, pgErr.Message)
		}
	}
	return err
}
