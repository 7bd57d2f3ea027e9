package transactions

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/metrics"
)

// =============================================================================
// SUSPICION
// =============================================================================

// SetSuspicious flags or clears a row. Flagging a row that moved points
// reverses its effect on the owner's balance and clearing re-applies it.
// Setting the current value is a no-op. A reversal that would take the
// balance negative fails with ErrInsufficientPoints.
//
// Unprocessed redemptions never moved points, so flagging them only changes
// the flag (and blocks processing until cleared).
func (s *Service) SetSuspicious(ctx context.Context, actor ledger.Actor, id int64, suspicious bool) (*ledger.Transaction, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: transaction id", ledger.ErrInvalidInput)
	}
	if err := actor.Require(ledger.CapMarkSuspicious); err != nil {
		return nil, err
	}

	var row *ledger.Transaction
	var delta int64
	changed := false
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		if row, err = tx.TransactionByID(ctx, id); err != nil {
			return err
		}
		if row.Suspicious == suspicious {
			return nil
		}

		before := row.EffectiveAmount()
		row.Suspicious = suspicious
		delta = row.EffectiveAmount() - before
		if err := ledger.Apply(ctx, tx, row.Owner, delta); err != nil {
			return err
		}
		changed = true
		return tx.UpdateTransactionState(ctx, row)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.RecordSuspicionChange(suspicious)
		metrics.RecordPoints(string(row.Kind), delta)
		log.WithFields(log.Fields{
			"transaction": row.ID,
			"utorid":      row.Owner,
			"suspicious":  suspicious,
			"delta":       delta,
			"actor":       actor.Utorid,
		}).Info("transaction suspicion changed")
	}
	return row, nil
}
