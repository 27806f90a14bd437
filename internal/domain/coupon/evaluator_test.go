package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	coupon  *Coupon
	grant   *Grant
	public  []Coupon
	granted []Coupon
}

func (m *mockRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	if m.coupon == nil {
		return nil, ErrNotFound
	}
	return m.coupon, nil
}

func (m *mockRepo) GetByID(_ context.Context, _ string) (*Coupon, error) {
	if m.coupon == nil {
		return nil, ErrNotFound
	}
	return m.coupon, nil
}

func (m *mockRepo) ListPublic(_ context.Context) ([]Coupon, error) { return m.public, nil }

func (m *mockRepo) ListGrantedTo(_ context.Context, _ string) ([]Coupon, error) {
	return m.granted, nil
}

func (m *mockRepo) FindGrant(_ context.Context, _, _ string) (*Grant, error) {
	if m.grant == nil {
		return nil, ErrNotEligible
	}
	return m.grant, nil
}

func (m *mockRepo) MarkGrantUsed(_ context.Context, _, _ string) error { return nil }
func (m *mockRepo) IncrementUses(_ context.Context, _ string) error    { return nil }
func (m *mockRepo) Upsert(_ context.Context, _ Coupon) error           { return nil }
func (m *mockRepo) UpsertGrant(_ context.Context, _ Grant) error       { return nil }

func TestEvaluatorEvaluate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	valid := func(c Coupon) *Coupon {
		c.ID = "c1"
		c.ValidFrom = past
		c.ValidTo = future
		if c.MaxUses == 0 {
			c.MaxUses = 10
		}
		c.DiscountPercent = decimal.NewFromInt(10)
		return &c
	}

	tests := []struct {
		name    string
		repo    *mockRepo
		wantErr error
	}{
		{
			name:    "unknown code",
			repo:    &mockRepo{},
			wantErr: ErrNotFound,
		},
		{
			name: "not yet valid",
			repo: &mockRepo{coupon: &Coupon{
				Code: "SOON", DiscountPercent: decimal.NewFromInt(10),
				ValidFrom: future, ValidTo: future.Add(time.Hour), MaxUses: 1,
			}},
			wantErr: ErrNotYetValid,
		},
		{
			name: "expired",
			repo: &mockRepo{coupon: &Coupon{
				Code: "OLD", DiscountPercent: decimal.NewFromInt(10),
				ValidFrom: past.Add(-time.Hour), ValidTo: past, MaxUses: 1,
			}},
			wantErr: ErrExpired,
		},
		{
			name: "usage limit reached",
			repo: &mockRepo{coupon: valid(Coupon{
				Code: "SPENT", Public: true, MaxUses: 5, TotalUsed: 5,
			})},
			wantErr: ErrUsageLimitReached,
		},
		{
			name: "targeted without grant",
			repo: &mockRepo{coupon: valid(Coupon{
				Code: "VIP", Public: false,
			})},
			wantErr: ErrNotEligible,
		},
		{
			name: "targeted with used grant",
			repo: &mockRepo{
				coupon: valid(Coupon{Code: "VIP", Public: false}),
				grant:  &Grant{UserID: "u1", CouponID: "c1", Used: true},
			},
			wantErr: ErrNotEligible,
		},
		{
			name: "public coupon usable",
			repo: &mockRepo{coupon: valid(Coupon{
				Code: "SAVE10", Public: true,
			})},
		},
		{
			name: "targeted with unused grant usable",
			repo: &mockRepo{
				coupon: valid(Coupon{Code: "VIP", Public: false}),
				grant:  &Grant{UserID: "u1", CouponID: "c1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewEvaluator(tt.repo)
			ev.now = func() time.Time { return fixedNow }

			got, err := ev.Evaluate(context.Background(), "CODE", "u1")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, decimal.NewFromInt(10).Equal(got.DiscountPercent))
		})
	}
}

func TestEvaluatorChecksExpiryBeforeUsage(t *testing.T) {
	// A coupon both expired and exhausted reports the window failure first.
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &mockRepo{coupon: &Coupon{
		ID: "c1", Code: "BOTH", DiscountPercent: decimal.NewFromInt(10),
		ValidFrom: fixedNow.Add(-48 * time.Hour),
		ValidTo:   fixedNow.Add(-24 * time.Hour),
		MaxUses:   1, TotalUsed: 1,
	}}

	ev := NewEvaluator(repo)
	ev.now = func() time.Time { return fixedNow }

	_, err := ev.Evaluate(context.Background(), "BOTH", "u1")
	require.ErrorIs(t, err, ErrExpired)
}

func TestAvailableForUser(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	repo := &mockRepo{
		public: []Coupon{
			{ID: "p1", Code: "SAVE10", Public: true, ValidFrom: past, ValidTo: future, MaxUses: 10},
			{ID: "p2", Code: "SPENT", Public: true, ValidFrom: past, ValidTo: future, MaxUses: 1, TotalUsed: 1},
			{ID: "p3", Code: "OLD", Public: true, ValidFrom: past.Add(-time.Hour), ValidTo: past, MaxUses: 10},
		},
		granted: []Coupon{
			{ID: "g1", Code: "VIP", ValidFrom: past, ValidTo: future, MaxUses: 5},
			{ID: "p1", Code: "SAVE10", Public: true, ValidFrom: past, ValidTo: future, MaxUses: 10},
		},
	}

	ev := NewEvaluator(repo)
	ev.now = func() time.Time { return fixedNow }

	got, err := ev.AvailableForUser(context.Background(), "u1")
	require.NoError(t, err)

	codes := make([]string, len(got))
	for i, c := range got {
		codes[i] = c.Code
	}
	assert.ElementsMatch(t, []string{"SAVE10", "VIP"}, codes)
}
