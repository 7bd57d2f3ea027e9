/*
Package transactions creates ledger rows and drives their state changes.

PURPOSE:
  Each operation validates its input, checks the actor's capability, then
  runs one atomic unit that reads the balances it depends on, writes the
  row(s) and moves points through ledger.Credit / ledger.Debit. Nothing is
  written when any step fails.

OPERATIONS:
  CreatePurchase     cashier records a customer's spend (+promotions)
  CreateAdjustment   manager corrects a balance against an earlier row
  CreateTransfer     member sends points to another member
  CreateRedemption   member requests to spend points (no balance change)
  ProcessRedemption  cashier fulfils a pending redemption (debit happens here)
  SetSuspicious      manager flags or clears a row, reversing its effect

ORDERING CONTRACT:
  Structural validation (amount sign, required ids) runs before the
  capability check, so a malformed request reports a validation error
  whatever the actor's role. Entity lookups run after the capability check.

SEE ALSO:
  - ledger/ledger.go: Credit/Debit
  - promotions/evaluator.go: purchase bonuses
*/
package transactions

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/metrics"
)

// DefaultPointsPerDollar is the base earn rate for purchases.
const DefaultPointsPerDollar = 4

type Service struct {
	store           ledger.Store
	pointsPerDollar int64
	Now             func() time.Time
}

func NewService(store ledger.Store, pointsPerDollar int64) *Service {
	if pointsPerDollar <= 0 {
		pointsPerDollar = DefaultPointsPerDollar
	}
	return &Service{store: store, pointsPerDollar: pointsPerDollar, Now: time.Now}
}

// recorded logs and counts a committed row. delta is the balance change it
// caused for its owner.
func recorded(t ledger.Transaction, actor ledger.Actor, delta int64) {
	metrics.RecordTransaction(string(t.Kind))
	metrics.RecordPoints(string(t.Kind), delta)
	log.WithFields(log.Fields{
		"transaction": t.ID,
		"type":        t.Kind,
		"utorid":      t.Owner,
		"amount":      t.Amount,
		"delta":       delta,
		"actor":       actor.Utorid,
	}).Info("transaction recorded")
}
