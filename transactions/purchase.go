package transactions

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/promotions"
)

// =============================================================================
// PURCHASE
// =============================================================================

type PurchaseInput struct {
	Utorid       string
	Spent        decimal.Decimal
	PromotionIDs []int64
	Remark       string
}

// PurchaseResult is the stored row plus what actually reached the balance.
// Credited is zero when the cashier is flagged suspicious.
type PurchaseResult struct {
	Transaction ledger.Transaction
	Credited    int64
}

// CreatePurchase records a purchase for in.Utorid rung up by actor.
//
// Points = round(spent * pointsPerDollar) + promotion bonuses. When the
// cashier is suspicious the row is stored flagged and nothing is credited.
func (s *Service) CreatePurchase(ctx context.Context, actor ledger.Actor, in PurchaseInput) (*PurchaseResult, error) {
	if in.Utorid == "" {
		return nil, fmt.Errorf("%w: utorid is required", ledger.ErrInvalidInput)
	}
	if !in.Spent.IsPositive() {
		return nil, fmt.Errorf("%w: spent must be positive", ledger.ErrInvalidAmount)
	}
	ids, err := promotions.NormalizeIDs(in.PromotionIDs)
	if err != nil {
		return nil, err
	}
	if err := actor.Require(ledger.CapCreatePurchase); err != nil {
		return nil, err
	}

	now := s.Now()
	var result PurchaseResult
	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.UserByUtorid(ctx, in.Utorid); err != nil {
			return err
		}
		cashier, err := tx.UserByUtorid(ctx, actor.Utorid)
		if err != nil {
			return err
		}

		eval, err := promotions.Evaluate(ctx, tx, in.Utorid, in.Spent, ids, now)
		if err != nil {
			return err
		}
		base, err := ledger.PointsOf(in.Spent.Mul(decimal.NewFromInt(s.pointsPerDollar)))
		if err != nil {
			return err
		}
		total, err := ledger.SumPoints(base, eval.Bonus)
		if err != nil {
			return err
		}

		row := ledger.Transaction{
			Kind:         ledger.KindPurchase,
			Owner:        in.Utorid,
			Amount:       total,
			Spent:        in.Spent,
			PromotionIDs: eval.Applied,
			Suspicious:   cashier.Suspicious,
			Remark:       in.Remark,
			CreatedBy:    actor.Utorid,
			CreatedAt:    now,
		}
		if err := tx.InsertTransaction(ctx, &row); err != nil {
			return err
		}
		if err := ledger.Credit(ctx, tx, in.Utorid, row.EffectiveAmount()); err != nil {
			return err
		}
		result = PurchaseResult{Transaction: row, Credited: row.EffectiveAmount()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Transaction.Suspicious {
		log.WithFields(log.Fields{"transaction": result.Transaction.ID, "cashier": actor.Utorid}).
			Warn("purchase withheld: cashier is flagged suspicious")
	}
	recorded(result.Transaction, actor, result.Credited)
	return &result, nil
}
