/*
Package promotions evaluates and administers purchase promotions.

PURPOSE:
  A purchase may name promotions to apply. The evaluator resolves each one,
  checks it is in its window, that the spend meets its minimum, and that a
  one-time promotion has not been used by the customer before, then sums
  the bonus. Any failing promotion fails the whole purchase.

BONUS FORMULA (per promotion):
  round(spent * rate) + points

  rate and points are both optional. Rounding is half away from zero on
  the decimal product.

SEE ALSO:
  - service.go: promotion CRUD and the available-promotions listing
  - transactions/purchase.go: the only caller of Evaluate
*/
package promotions

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-engine/ledger"
)

// Source is the part of a ledger.Tx the evaluator reads.
type Source interface {
	PromotionByID(ctx context.Context, id int64) (*ledger.Promotion, error)
	UsedPromotions(ctx context.Context, utorid string) (ledger.PromotionSet, error)
}

// Evaluation is the outcome of applying promotions to one purchase.
type Evaluation struct {
	Bonus   int64
	Applied ledger.PromotionSet
}

// NormalizeIDs rejects non-positive ids and collapses duplicates.
func NormalizeIDs(ids []int64) (ledger.PromotionSet, error) {
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: promotion id %d", ledger.ErrInvalidInput, id)
		}
	}
	return ledger.NewPromotionSet(ids...), nil
}

// Evaluate checks every requested promotion for utorid's purchase of spent at
// time at and returns the total bonus.
func Evaluate(ctx context.Context, src Source, utorid string, spent decimal.Decimal, ids ledger.PromotionSet, at time.Time) (Evaluation, error) {
	eval := Evaluation{Applied: ledger.PromotionSet{}}
	if len(ids) == 0 {
		return eval, nil
	}

	var used ledger.PromotionSet
	for _, id := range ids {
		p, err := src.PromotionByID(ctx, id)
		if err != nil {
			return Evaluation{}, err
		}
		if !p.ActiveAt(at) {
			return Evaluation{}, fmt.Errorf("%w: %d", ledger.ErrPromotionInactive, id)
		}
		if p.MinSpending.Valid && spent.LessThan(p.MinSpending.Decimal) {
			return Evaluation{}, fmt.Errorf("%w: promotion %d requires %s", ledger.ErrMinimumSpendNotMet, id, p.MinSpending.Decimal)
		}
		if p.Kind == ledger.PromotionOneTime {
			if used == nil {
				if used, err = src.UsedPromotions(ctx, utorid); err != nil {
					return Evaluation{}, err
				}
			}
			if used.Contains(id) {
				return Evaluation{}, fmt.Errorf("%w: %d", ledger.ErrPromotionAlreadyUsed, id)
			}
		}
		bonus, err := p.Bonus(spent)
		if err != nil {
			return Evaluation{}, err
		}
		if eval.Bonus, err = ledger.SumPoints(eval.Bonus, bonus); err != nil {
			return Evaluation{}, err
		}
	}
	eval.Applied = ids
	return eval, nil
}
