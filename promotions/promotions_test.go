package promotions_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/promotions"
	"github.com/warp/loyalty-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	manager = ledger.Actor{ID: 1, Utorid: "mgr00001", Role: ledger.RoleManager}
	regular = ledger.Actor{ID: 2, Utorid: "reg00001", Role: ledger.RoleRegular}
	t0      = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*promotions.Service, *sqlite.Store, *time.Time) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := t0
	svc := promotions.NewService(store)
	svc.Now = func() time.Time { return now }
	return svc, store, &now
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func createPromotion(t *testing.T, svc *promotions.Service, kind ledger.PromotionKind, in promotions.CreateInput) *ledger.Promotion {
	in.Kind = kind
	if in.Name == "" {
		in.Name = "promo"
	}
	if in.StartTime.IsZero() {
		in.StartTime = t0
	}
	if in.EndTime.IsZero() {
		in.EndTime = t0.Add(48 * time.Hour)
	}
	p, err := svc.Create(context.Background(), manager, in)
	require.NoError(t, err)
	return p
}

// =============================================================================
// EVALUATION TESTS
// =============================================================================

func TestEvaluate_SumsBonuses(t *testing.T) {
	// GIVEN: A rate promotion (0.25/dollar) and a flat promotion (+5)
	// WHEN: Evaluating a $20 purchase with both
	// THEN: Bonus = round(20*0.25) + 5 = 10

	svc, store, _ := newTestService(t)
	rate := createPromotion(t, svc, ledger.PromotionAutomatic, promotions.CreateInput{Rate: dec("0.25")})
	flat := createPromotion(t, svc, ledger.PromotionOneTime, promotions.CreateInput{Points: 5})
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		eval, err := promotions.Evaluate(ctx, tx, "cust0001", decimal.NewFromInt(20),
			ledger.NewPromotionSet(flat.ID, rate.ID), t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(10), eval.Bonus)
		assert.Equal(t, ledger.NewPromotionSet(rate.ID, flat.ID), eval.Applied)
		return nil
	})
	require.NoError(t, err)
}

func TestEvaluate_Rejections(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	minSpend := createPromotion(t, svc, ledger.PromotionAutomatic, promotions.CreateInput{MinSpending: dec("50"), Points: 10})
	onetime := createPromotion(t, svc, ledger.PromotionOneTime, promotions.CreateInput{Points: 3})

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{Utorid: "cust0001", Role: ledger.RoleRegular}))
		return tx.InsertTransaction(ctx, &ledger.Transaction{
			Kind: ledger.KindPurchase, Owner: "cust0001", Amount: 4, Spent: decimal.NewFromInt(1),
			PromotionIDs: ledger.NewPromotionSet(onetime.ID),
		})
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		ids   ledger.PromotionSet
		spent string
		at    time.Time
		want  error
	}{
		{"unknown promotion", ledger.NewPromotionSet(999), "10", t0, ledger.ErrNotFound},
		{"below minimum", ledger.NewPromotionSet(minSpend.ID), "49.99", t0, ledger.ErrMinimumSpendNotMet},
		{"before window", ledger.NewPromotionSet(minSpend.ID), "60", t0.Add(-time.Minute), ledger.ErrPromotionInactive},
		{"at window end", ledger.NewPromotionSet(minSpend.ID), "60", t0.Add(48 * time.Hour), ledger.ErrPromotionInactive},
		{"onetime reused", ledger.NewPromotionSet(onetime.ID), "10", t0, ledger.ErrPromotionAlreadyUsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.WithTx(ctx, func(tx ledger.Tx) error {
				_, err := promotions.Evaluate(ctx, tx, "cust0001", decimal.RequireFromString(tt.spent), tt.ids, tt.at)
				return err
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalizeIDs(t *testing.T) {
	set, err := promotions.NormalizeIDs([]int64{4, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, ledger.PromotionSet{2, 4}, set)

	_, err = promotions.NormalizeIDs([]int64{1, 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

// =============================================================================
// ADMINISTRATION TESTS
// =============================================================================

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	base := promotions.CreateInput{Name: "x", Kind: ledger.PromotionAutomatic, StartTime: t0, EndTime: t0.Add(time.Hour)}

	bad := base
	bad.EndTime = t0
	_, err := svc.Create(ctx, manager, bad)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	bad = base
	bad.MinSpending = dec("0")
	_, err = svc.Create(ctx, manager, bad)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	bad = base
	bad.Kind = "weekly"
	_, err = svc.Create(ctx, manager, bad)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	_, err = svc.Create(ctx, regular, base)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestUpdate_AfterStart_OnlyEndTime(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	p := createPromotion(t, svc, ledger.PromotionAutomatic, promotions.CreateInput{Points: 1})

	*now = t0.Add(time.Hour)

	name := "renamed"
	_, err := svc.Update(ctx, manager, p.ID, promotions.UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	end := t0.Add(72 * time.Hour)
	updated, err := svc.Update(ctx, manager, p.ID, promotions.UpdateInput{EndTime: &end})
	require.NoError(t, err)
	assert.True(t, end.Equal(updated.EndTime))
}

func TestDelete_OnlyBeforeStart(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	future := createPromotion(t, svc, ledger.PromotionOneTime, promotions.CreateInput{StartTime: t0.Add(time.Hour), Points: 1})
	started := createPromotion(t, svc, ledger.PromotionOneTime, promotions.CreateInput{Points: 1})

	*now = t0.Add(time.Minute)
	require.NoError(t, svc.Delete(ctx, manager, future.ID))
	assert.ErrorIs(t, svc.Delete(ctx, manager, started.ID), ledger.ErrForbidden)

	_, err := svc.Get(ctx, manager, future.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAvailableOneTime_ExcludesUsedAndAutomatic(t *testing.T) {
	svc, store, now := newTestService(t)
	ctx := context.Background()
	auto := createPromotion(t, svc, ledger.PromotionAutomatic, promotions.CreateInput{Points: 1})
	used := createPromotion(t, svc, ledger.PromotionOneTime, promotions.CreateInput{Points: 2})
	fresh := createPromotion(t, svc, ledger.PromotionOneTime, promotions.CreateInput{Points: 3})

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{Utorid: "cust0001", Role: ledger.RoleRegular}))
		return tx.InsertTransaction(ctx, &ledger.Transaction{
			Kind: ledger.KindPurchase, Owner: "cust0001", Amount: 6, Spent: decimal.NewFromInt(1),
			PromotionIDs: ledger.NewPromotionSet(used.ID, auto.ID),
		})
	})
	require.NoError(t, err)

	*now = t0.Add(time.Hour)
	list, err := svc.AvailableOneTime(ctx, "cust0001")
	require.NoError(t, err)

	var ids []int64
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{fresh.ID}, ids)

	// Regular members cannot see a promotion outside its window.
	*now = t0.Add(96 * time.Hour)
	_, err = svc.Get(ctx, regular, auto.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
