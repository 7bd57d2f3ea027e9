package transactions

import (
	"context"
	"fmt"

	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/metrics"
)

// =============================================================================
// REDEMPTION
// =============================================================================

// CreateRedemption records actor's request to spend amount points. The
// balance is only checked here; it is debited when the request is processed.
func (s *Service) CreateRedemption(ctx context.Context, actor ledger.Actor, amount int64, remark string) (*ledger.Transaction, error) {
	red, err := ledger.RequestRedemption(amount)
	if err != nil {
		return nil, err
	}
	if err := actor.Require(ledger.CapRedeem); err != nil {
		return nil, err
	}

	var row ledger.Transaction
	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		user, err := tx.UserByUtorid(ctx, actor.Utorid)
		if err != nil {
			return err
		}
		if !user.Verified {
			return fmt.Errorf("%w: user must be verified to redeem", ledger.ErrForbidden)
		}
		if user.Points < amount {
			return &ledger.InsufficientPointsError{Utorid: user.Utorid, Available: user.Points, Requested: amount}
		}

		row = ledger.Transaction{
			Kind:       ledger.KindRedemption,
			Owner:      user.Utorid,
			Amount:     red.LedgerAmount(),
			Redemption: &red,
			Remark:     remark,
			CreatedBy:  user.Utorid,
			CreatedAt:  s.Now(),
		}
		return tx.InsertTransaction(ctx, &row)
	})
	if err != nil {
		return nil, err
	}

	recorded(row, actor, 0)
	return &row, nil
}

// ProcessRedemption fulfils a pending redemption, debiting its owner. A
// second call fails with ErrAlreadyProcessed whatever the balance. If the
// owner no longer has enough points the redemption stays pending.
func (s *Service) ProcessRedemption(ctx context.Context, actor ledger.Actor, id int64) (*ledger.Transaction, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: transaction id", ledger.ErrInvalidInput)
	}
	if err := actor.Require(ledger.CapProcessRedemption); err != nil {
		return nil, err
	}

	var row *ledger.Transaction
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		if row, err = tx.TransactionByID(ctx, id); err != nil {
			return err
		}
		if row.Kind != ledger.KindRedemption || row.Redemption == nil {
			return ledger.NewNotFound("redemption", id)
		}
		processed, err := row.Redemption.Process(actor.Utorid, s.Now())
		if err != nil {
			return err
		}
		if row.Suspicious {
			return fmt.Errorf("%w: redemption %d is flagged suspicious", ledger.ErrForbidden, id)
		}
		if err := ledger.Debit(ctx, tx, row.Owner, processed.Requested); err != nil {
			return err
		}

		processorID := actor.ID
		row.Redemption = &processed
		row.Amount = processed.LedgerAmount()
		row.RelatedID = &processorID
		return tx.UpdateTransactionState(ctx, row)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRedemptionProcessed()
	recorded(*row, actor, row.Amount)
	return row, nil
}
