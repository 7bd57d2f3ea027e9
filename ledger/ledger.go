/*
ledger.go - Balance primitives and the balance audit

PURPOSE:
  Credit and Debit are the only two ways domain code changes a balance.
  Debit is floor-checked by the store so a balance can never go negative,
  even when two units race for the same points.

RULES:
  - Amounts passed to Credit and Debit are non-negative.
  - Apply routes a signed delta to the right primitive.
  - Debit failing leaves the balance untouched and returns
    *InsufficientPointsError.

AUDIT:
  Audit recomputes each balance as the sum of EffectiveAmount over the
  user's rows and reports every user whose stored balance differs.

SEE ALSO:
  - store.go: AddPoints/SubtractPoints
  - jobs/audit.go: scheduled audit runs
*/
package ledger

import (
	"context"
	"fmt"
	"math"
)

// Balances is the part of a Tx the primitives need.
type Balances interface {
	UserByUtorid(ctx context.Context, utorid string) (*User, error)
	AddPoints(ctx context.Context, utorid string, delta int64) error
	SubtractPoints(ctx context.Context, utorid string, amount int64) (bool, error)
}

// =============================================================================
// PRIMITIVES
// =============================================================================

// Credit increments utorid's balance. A credit that would overflow the
// balance fails with ErrInvalidAmount.
func Credit(ctx context.Context, b Balances, utorid string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit of %d", ErrInvalidAmount, amount)
	}
	if amount == 0 {
		return nil
	}
	u, err := b.UserByUtorid(ctx, utorid)
	if err != nil {
		return err
	}
	if u.Points > math.MaxInt64-amount {
		return fmt.Errorf("%w: credit of %d overflows balance of %s", ErrInvalidAmount, amount, utorid)
	}
	return b.AddPoints(ctx, utorid, amount)
}

// Debit decrements utorid's balance, failing if it would go negative.
func Debit(ctx context.Context, b Balances, utorid string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: debit of %d", ErrInvalidAmount, amount)
	}
	if amount == 0 {
		return nil
	}
	ok, err := b.SubtractPoints(ctx, utorid, amount)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	u, err := b.UserByUtorid(ctx, utorid)
	if err != nil {
		return err
	}
	return &InsufficientPointsError{Utorid: utorid, Available: u.Points, Requested: amount}
}

// Apply credits a positive delta and debits a negative one.
func Apply(ctx context.Context, b Balances, utorid string, delta int64) error {
	if delta < 0 {
		return Debit(ctx, b, utorid, -delta)
	}
	return Credit(ctx, b, utorid, delta)
}

// =============================================================================
// AUDIT
// =============================================================================

// Drift describes one user whose stored balance disagrees with the ledger.
type Drift struct {
	Utorid   string `json:"utorid"`
	Stored   int64  `json:"stored"`
	Expected int64  `json:"expected"`
}

// ExpectedBalance sums the effective amounts of rows.
func ExpectedBalance(rows []Transaction) int64 {
	var total int64
	for _, t := range rows {
		total += t.EffectiveAmount()
	}
	return total
}

// Audit checks every user and returns how many were checked and the drifts.
func Audit(ctx context.Context, store Store) (int, []Drift, error) {
	var checked int
	var drifts []Drift
	err := store.WithTx(ctx, func(tx Tx) error {
		users, err := tx.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			rows, err := tx.TransactionsByOwner(ctx, u.Utorid)
			if err != nil {
				return fmt.Errorf("load rows for %s: %w", u.Utorid, err)
			}
			checked++
			if expected := ExpectedBalance(rows); expected != u.Points {
				drifts = append(drifts, Drift{Utorid: u.Utorid, Stored: u.Points, Expected: expected})
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return checked, drifts, nil
}
