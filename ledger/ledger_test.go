package ledger_test

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// REDEMPTION LIFECYCLE
// =============================================================================

func TestRedemption_ProcessOnce(t *testing.T) {
	r, err := ledger.RequestRedemption(25)
	require.NoError(t, err)
	assert.False(t, r.Processed())
	assert.Equal(t, int64(25), r.LedgerAmount())

	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	done, err := r.Process("cash0001", at)
	require.NoError(t, err)
	assert.True(t, done.Processed())
	assert.Equal(t, int64(-25), done.LedgerAmount())
	assert.Equal(t, "cash0001", done.ProcessedBy)

	_, err = done.Process("cash0002", at)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
}

func TestRequestRedemption_NonPositive(t *testing.T) {
	for _, amount := range []int64{0, -5} {
		_, err := ledger.RequestRedemption(amount)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	}
}

// =============================================================================
// EFFECTIVE AMOUNTS
// =============================================================================

func TestEffectiveAmount(t *testing.T) {
	pending, _ := ledger.RequestRedemption(30)
	processed, _ := pending.Process("cash0001", time.Now())

	tests := []struct {
		name string
		tx   ledger.Transaction
		want int64
	}{
		{"purchase", ledger.Transaction{Kind: ledger.KindPurchase, Owner: "a", Amount: 40}, 40},
		{"suspicious purchase", ledger.Transaction{Kind: ledger.KindPurchase, Owner: "a", Amount: 40, Suspicious: true}, 0},
		{"transfer out", ledger.Transaction{Kind: ledger.KindTransfer, Owner: "a", Amount: -10}, -10},
		{"pending redemption", ledger.Transaction{Kind: ledger.KindRedemption, Owner: "a", Amount: 30, Redemption: &pending}, 0},
		{"processed redemption", ledger.Transaction{Kind: ledger.KindRedemption, Owner: "a", Amount: -30, Redemption: &processed}, -30},
		{"no owner", ledger.Transaction{Kind: ledger.KindAdjustment, Amount: 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tx.EffectiveAmount())
		})
	}
}

func TestPromotionSet_DedupesAndMarshalsEmpty(t *testing.T) {
	set := ledger.NewPromotionSet(3, 1, 3, 2)
	assert.Equal(t, ledger.PromotionSet{1, 2, 3}, set)

	b, err := json.Marshal(ledger.PromotionSet(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	var decoded ledger.PromotionSet
	require.NoError(t, json.Unmarshal([]byte(`[5,4,5]`), &decoded))
	assert.Equal(t, ledger.PromotionSet{4, 5}, decoded)
}

func TestPromotion_BonusAndWindow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	p := ledger.Promotion{
		StartTime: start,
		EndTime:   start.Add(24 * time.Hour),
		Rate:      decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
		Points:    5,
	}
	// round(10 * 0.25) + 5
	bonus, err := p.Bonus(decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(8), bonus)

	assert.True(t, p.ActiveAt(start))
	assert.False(t, p.ActiveAt(start.Add(-time.Second)))
	assert.False(t, p.ActiveAt(p.EndTime))
}

func TestPointArithmetic_RejectsOutOfRange(t *testing.T) {
	n, err := ledger.PointsOf(decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	n, err = ledger.PointsOf(decimal.NewFromInt(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)

	_, err = ledger.PointsOf(decimal.RequireFromString("20000000000000000000"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = ledger.SumPoints(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	sum, err := ledger.SumPoints(math.MaxInt64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), sum)

	p := ledger.Promotion{Rate: decimal.NewNullDecimal(decimal.NewFromInt(10))}
	_, err = p.Bonus(decimal.RequireFromString("1000000000000000000"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

// =============================================================================
// ROLES
// =============================================================================

func TestRole_Capabilities(t *testing.T) {
	assert.True(t, ledger.RoleRegular.Can(ledger.CapTransfer))
	assert.False(t, ledger.RoleRegular.Can(ledger.CapCreatePurchase))
	assert.True(t, ledger.RoleCashier.Can(ledger.CapCreatePurchase))
	assert.True(t, ledger.RoleCashier.Can(ledger.CapProcessRedemption))
	assert.False(t, ledger.RoleCashier.Can(ledger.CapCreateAdjustment))
	assert.True(t, ledger.RoleManager.Can(ledger.CapMarkSuspicious))
	assert.True(t, ledger.RoleSuperuser.Can(ledger.CapManageEvents))
	assert.False(t, ledger.Role("intern").Can(ledger.CapTransfer))

	err := ledger.Actor{Utorid: "reg00001", Role: ledger.RoleRegular}.Require(ledger.CapCreateAdjustment)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

// =============================================================================
// PRIMITIVES AND AUDIT
// =============================================================================

func TestDebit_InsufficientPoints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{Utorid: "ivy00001", Role: ledger.RoleRegular}))
		require.NoError(t, ledger.Credit(ctx, tx, "ivy00001", 20))
		return ledger.Debit(ctx, tx, "ivy00001", 21)
	})

	var short *ledger.InsufficientPointsError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(20), short.Available)
	assert.Equal(t, int64(21), short.Requested)
}

func TestCredit_OverflowLeavesBalance(t *testing.T) {
	// GIVEN: A balance one short of the int64 limit
	// WHEN: Crediting two more points
	// THEN: The credit fails InvalidAmount and the balance is untouched

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{Utorid: "ivy00001", Role: ledger.RoleRegular}))
		return tx.AddPoints(ctx, "ivy00001", math.MaxInt64-1)
	}))

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		return ledger.Credit(ctx, tx, "ivy00001", 2)
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		u, err := tx.UserByUtorid(ctx, "ivy00001")
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64-1), u.Points)
		return ledger.Credit(ctx, tx, "ivy00001", 1)
	}))
}

func TestAudit_DetectsDrift(t *testing.T) {
	// GIVEN: One user whose balance matches its rows and one who was
	//        credited without a row
	// WHEN: Auditing
	// THEN: Only the second is reported

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{Utorid: "jay00001", Role: ledger.RoleRegular}))
		require.NoError(t, tx.CreateUser(ctx, &ledger.User{Utorid: "kim00001", Role: ledger.RoleRegular}))

		require.NoError(t, tx.InsertTransaction(ctx, &ledger.Transaction{Kind: ledger.KindAdjustment, Owner: "jay00001", Amount: 15}))
		require.NoError(t, ledger.Credit(ctx, tx, "jay00001", 15))

		return ledger.Credit(ctx, tx, "kim00001", 9)
	})
	require.NoError(t, err)

	checked, drifts, err := ledger.Audit(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	require.Len(t, drifts, 1)
	assert.Equal(t, ledger.Drift{Utorid: "kim00001", Stored: 9, Expected: 0}, drifts[0])
}
