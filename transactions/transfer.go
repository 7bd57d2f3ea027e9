package transactions

import (
	"context"
	"fmt"

	"github.com/warp/loyalty-engine/ledger"
)

// =============================================================================
// TRANSFER
// =============================================================================

type TransferInput struct {
	RecipientID int64
	Amount      int64
	Remark      string
}

// TransferResult holds the mirrored pair: Sent is the sender's row (negative
// amount), Received the recipient's (positive amount).
type TransferResult struct {
	Sent     ledger.Transaction
	Received ledger.Transaction
}

// CreateTransfer moves points from actor to the recipient. The sender must
// be verified and have enough points at debit time.
func (s *Service) CreateTransfer(ctx context.Context, actor ledger.Actor, in TransferInput) (*TransferResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: transfer amount must be positive", ledger.ErrInvalidAmount)
	}
	if in.RecipientID <= 0 {
		return nil, fmt.Errorf("%w: recipient is required", ledger.ErrInvalidInput)
	}
	if err := actor.Require(ledger.CapTransfer); err != nil {
		return nil, err
	}

	now := s.Now()
	var result TransferResult
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		sender, err := tx.UserByUtorid(ctx, actor.Utorid)
		if err != nil {
			return err
		}
		if !sender.Verified {
			return fmt.Errorf("%w: sender must be verified", ledger.ErrForbidden)
		}
		recipient, err := tx.UserByID(ctx, in.RecipientID)
		if err != nil {
			return err
		}
		if recipient.ID == sender.ID {
			return fmt.Errorf("%w: cannot transfer to yourself", ledger.ErrInvalidInput)
		}

		if err := ledger.Debit(ctx, tx, sender.Utorid, in.Amount); err != nil {
			return err
		}
		if err := ledger.Credit(ctx, tx, recipient.Utorid, in.Amount); err != nil {
			return err
		}

		recipientID, senderID := recipient.ID, sender.ID
		result.Sent = ledger.Transaction{
			Kind:      ledger.KindTransfer,
			Owner:     sender.Utorid,
			Amount:    -in.Amount,
			RelatedID: &recipientID,
			Sender:    sender.Utorid,
			Recipient: recipient.Utorid,
			Remark:    in.Remark,
			CreatedBy: sender.Utorid,
			CreatedAt: now,
		}
		result.Received = ledger.Transaction{
			Kind:      ledger.KindTransfer,
			Owner:     recipient.Utorid,
			Amount:    in.Amount,
			RelatedID: &senderID,
			Sender:    sender.Utorid,
			Recipient: recipient.Utorid,
			Remark:    in.Remark,
			CreatedBy: sender.Utorid,
			CreatedAt: now,
		}
		if err := tx.InsertTransaction(ctx, &result.Sent); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &result.Received)
	})
	if err != nil {
		return nil, err
	}

	recorded(result.Sent, actor, result.Sent.Amount)
	recorded(result.Received, actor, result.Received.Amount)
	return &result, nil
}
