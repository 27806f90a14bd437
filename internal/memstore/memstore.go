// Package memstore is an in-memory implementation of the order.Store
// transactional boundary. Transactions clone the state under one mutex and
// swap it in on commit, so writers are fully serialized and a failed
// transaction leaves no trace. It backs unit tests and local runs without
// PostgreSQL.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xenking/homecart/internal/domain/cart"
	"github.com/xenking/homecart/internal/domain/coupon"
	"github.com/xenking/homecart/internal/domain/order"
	"github.com/xenking/homecart/internal/domain/product"
)

// Store holds all entities in maps guarded by a single mutex.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ order.Store = (*Store)(nil)

type state struct {
	products map[string]product.Product
	coupons  map[string]coupon.Coupon
	grants   map[string]coupon.Grant // keyed by userID + "/" + couponID
	lines    map[string]cart.Line    // keyed by line id
	orders   map[string]order.Order
}

// New creates an empty Store.
func New() *Store {
	return &Store{state: &state{
		products: make(map[string]product.Product),
		coupons:  make(map[string]coupon.Coupon),
		grants:   make(map[string]coupon.Grant),
		lines:    make(map[string]cart.Line),
		orders:   make(map[string]order.Order),
	}}
}

func (st *state) clone() *state {
	next := &state{
		products: make(map[string]product.Product, len(st.products)),
		coupons:  make(map[string]coupon.Coupon, len(st.coupons)),
		grants:   make(map[string]coupon.Grant, len(st.grants)),
		lines:    make(map[string]cart.Line, len(st.lines)),
		orders:   make(map[string]order.Order, len(st.orders)),
	}
	for k, v := range st.products {
		next.products[k] = v
	}
	for k, v := range st.coupons {
		next.coupons[k] = v
	}
	for k, v := range st.grants {
		next.grants[k] = v
	}
	for k, v := range st.lines {
		next.lines[k] = v
	}
	for k, v := range st.orders {
		v.Lines = append([]order.Line(nil), v.Lines...)
		next.orders[k] = v
	}
	return next
}

// InTx runs fn against a clone of the state and swaps the clone in only
// when fn succeeds. The mutex is held for the whole transaction, which
// makes every transaction serializable; conflicts cannot occur.
func (s *Store) InTx(_ context.Context, fn func(tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(&txView{st: next}); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) Products() product.Repository { return &productRepo{base{s: s}} }
func (s *Store) Coupons() coupon.Repository   { return &couponRepo{base{s: s}} }
func (s *Store) Carts() cart.Repository       { return &cartRepo{base{s: s}} }
func (s *Store) Orders() order.Repository     { return &orderRepo{base{s: s}} }

// txView exposes repositories bound to an uncommitted state clone. The
// store mutex is already held, so no locking happens here.
type txView struct {
	st *state
}

func (t *txView) Products() product.Repository { return &productRepo{base{st: t.st}} }
func (t *txView) Coupons() coupon.Repository   { return &couponRepo{base{st: t.st}} }
func (t *txView) Carts() cart.Repository       { return &cartRepo{base{st: t.st}} }
func (t *txView) Orders() order.Repository     { return &orderRepo{base{st: t.st}} }

// base resolves the state a repository call operates on: the transaction's
// clone when set, otherwise the live state under the store mutex.
type base struct {
	s  *Store
	st *state
}

func (b base) view() (*state, func()) {
	if b.st != nil {
		return b.st, func() {}
	}
	b.s.mu.Lock()
	return b.s.state, b.s.mu.Unlock
}

func grantKey(userID, couponID string) string {
	return userID + "/" + couponID
}

// --- product repository ---

type productRepo struct{ base }

func (r *productRepo) List(_ context.Context) ([]product.Product, error) {
	st, done := r.view()
	defer done()

	out := make([]product.Product, 0, len(st.products))
	for _, p := range st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *productRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	st, done := r.view()
	defer done()

	p, ok := st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *productRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	st, done := r.view()
	defer done()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *productRepo) DecrementStock(_ context.Context, id string, qty int) error {
	st, done := r.view()
	defer done()

	p, ok := st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < qty {
		return product.ErrInsufficientStock
	}
	p.Stock -= qty
	st.products[id] = p
	return nil
}

func (r *productRepo) RestoreStock(_ context.Context, id string, qty int) error {
	st, done := r.view()
	defer done()

	p, ok := st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += qty
	st.products[id] = p
	return nil
}

func (r *productRepo) Upsert(_ context.Context, p product.Product) error {
	st, done := r.view()
	defer done()

	st.products[p.ID] = p
	return nil
}

// --- coupon repository ---

type couponRepo struct{ base }

func (r *couponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	st, done := r.view()
	defer done()

	for _, c := range st.coupons {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *couponRepo) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	st, done := r.view()
	defer done()

	c, ok := st.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (r *couponRepo) ListPublic(_ context.Context) ([]coupon.Coupon, error) {
	st, done := r.view()
	defer done()

	var out []coupon.Coupon
	for _, c := range st.coupons {
		if c.Public {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *couponRepo) ListGrantedTo(_ context.Context, userID string) ([]coupon.Coupon, error) {
	st, done := r.view()
	defer done()

	var out []coupon.Coupon
	for _, g := range st.grants {
		if g.UserID != userID || g.Used {
			continue
		}
		if c, ok := st.coupons[g.CouponID]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *couponRepo) FindGrant(_ context.Context, userID, couponID string) (*coupon.Grant, error) {
	st, done := r.view()
	defer done()

	g, ok := st.grants[grantKey(userID, couponID)]
	if !ok {
		return nil, coupon.ErrNotEligible
	}
	return &g, nil
}

func (r *couponRepo) MarkGrantUsed(_ context.Context, userID, couponID string) error {
	st, done := r.view()
	defer done()

	key := grantKey(userID, couponID)
	g, ok := st.grants[key]
	if !ok || g.Used {
		return coupon.ErrNotEligible
	}
	g.Used = true
	st.grants[key] = g
	return nil
}

func (r *couponRepo) IncrementUses(_ context.Context, id string) error {
	st, done := r.view()
	defer done()

	c, ok := st.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	if c.TotalUsed >= c.MaxUses {
		return coupon.ErrUsageLimitReached
	}
	c.TotalUsed++
	st.coupons[id] = c
	return nil
}

func (r *couponRepo) Upsert(_ context.Context, c coupon.Coupon) error {
	st, done := r.view()
	defer done()

	st.coupons[c.ID] = c
	return nil
}

func (r *couponRepo) UpsertGrant(_ context.Context, g coupon.Grant) error {
	st, done := r.view()
	defer done()

	st.grants[grantKey(g.UserID, g.CouponID)] = g
	return nil
}

// --- cart repository ---

type cartRepo struct{ base }

func (r *cartRepo) ListByUser(_ context.Context, userID string) ([]cart.Line, error) {
	st, done := r.view()
	defer done()

	var out []cart.Line
	for _, l := range st.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *cartRepo) ListByIDs(_ context.Context, userID string, ids []string) ([]cart.Line, error) {
	st, done := r.view()
	defer done()

	out := make([]cart.Line, 0, len(ids))
	for _, id := range ids {
		if l, ok := st.lines[id]; ok && l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *cartRepo) Get(_ context.Context, userID, productID string) (*cart.Line, error) {
	st, done := r.view()
	defer done()

	for _, l := range st.lines {
		if l.UserID == userID && l.ProductID == productID {
			return &l, nil
		}
	}
	return nil, cart.ErrLineNotFound
}

func (r *cartRepo) Upsert(_ context.Context, l *cart.Line) error {
	st, done := r.view()
	defer done()

	st.lines[l.ID] = *l
	return nil
}

func (r *cartRepo) Delete(_ context.Context, userID, productID string) error {
	st, done := r.view()
	defer done()

	for id, l := range st.lines {
		if l.UserID == userID && l.ProductID == productID {
			delete(st.lines, id)
			return nil
		}
	}
	return cart.ErrLineNotFound
}

func (r *cartRepo) DeleteByIDs(_ context.Context, userID string, ids []string) error {
	st, done := r.view()
	defer done()

	for _, id := range ids {
		if l, ok := st.lines[id]; ok && l.UserID == userID {
			delete(st.lines, id)
		}
	}
	return nil
}

func (r *cartRepo) DeleteAll(_ context.Context, userID string) error {
	st, done := r.view()
	defer done()

	for id, l := range st.lines {
		if l.UserID == userID {
			delete(st.lines, id)
		}
	}
	return nil
}

// --- order repository ---

type orderRepo struct{ base }

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	st, done := r.view()
	defer done()

	cp := *o
	cp.Lines = append([]order.Line(nil), o.Lines...)
	st.orders[o.ID] = cp
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, orderID, userID string) (*order.Order, error) {
	st, done := r.view()
	defer done()

	o, ok := st.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, order.ErrNotFound
	}
	o.Lines = append([]order.Line(nil), o.Lines...)
	return &o, nil
}

func (r *orderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	st, done := r.view()
	defer done()

	var out []order.Order
	for _, o := range st.orders {
		if o.UserID != userID {
			continue
		}
		o.Lines = append([]order.Line(nil), o.Lines...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, orderID string, from, to order.Status) error {
	st, done := r.view()
	defer done()

	o, ok := st.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrNotCancellable
	}
	o.Status = to
	st.orders[orderID] = o
	return nil
}
