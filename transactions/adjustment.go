package transactions

import (
	"context"
	"fmt"

	"github.com/warp/loyalty-engine/ledger"
)

// =============================================================================
// ADJUSTMENT
// =============================================================================

type AdjustmentInput struct {
	Utorid    string
	Amount    int64
	RelatedID int64
	Remark    string
}

// CreateAdjustment applies a signed correction to in.Utorid's balance,
// referencing an earlier row of the same user. Negative adjustments are
// floor-checked.
func (s *Service) CreateAdjustment(ctx context.Context, actor ledger.Actor, in AdjustmentInput) (*ledger.Transaction, error) {
	if in.Utorid == "" {
		return nil, fmt.Errorf("%w: utorid is required", ledger.ErrInvalidInput)
	}
	if in.Amount == 0 {
		return nil, fmt.Errorf("%w: adjustment must be non-zero", ledger.ErrInvalidAmount)
	}
	if in.RelatedID <= 0 {
		return nil, fmt.Errorf("%w: relatedId is required", ledger.ErrInvalidInput)
	}
	if err := actor.Require(ledger.CapCreateAdjustment); err != nil {
		return nil, err
	}

	var row ledger.Transaction
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.UserByUtorid(ctx, in.Utorid); err != nil {
			return err
		}
		related, err := tx.TransactionByID(ctx, in.RelatedID)
		if err != nil {
			return err
		}
		if related.Owner != in.Utorid {
			return fmt.Errorf("%w: transaction %d", ledger.ErrInvalidReference, in.RelatedID)
		}

		relatedID := in.RelatedID
		row = ledger.Transaction{
			Kind:      ledger.KindAdjustment,
			Owner:     in.Utorid,
			Amount:    in.Amount,
			RelatedID: &relatedID,
			Remark:    in.Remark,
			CreatedBy: actor.Utorid,
			CreatedAt: s.Now(),
		}
		if err := ledger.Apply(ctx, tx, in.Utorid, in.Amount); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &row)
	})
	if err != nil {
		return nil, err
	}

	recorded(row, actor, row.Amount)
	return &row, nil
}
