/*
store.go - Persistence interface for the points ledger

PURPOSE:
  Defines the boundary between domain logic and the database. Every
  operation that reads a balance and then writes depends on it runs inside
  a single WithTx unit so that concurrent units cannot interleave between
  the check and the write.

KEY INTERFACES:
  Store:            opens atomic units of work
  Tx:               everything available inside one unit
  UserStore:        users and the two balance mutations
  TransactionStore: ledger rows and their promotion associations
  PromotionStore:   promotion definitions
  EventStore:       events, organizers, RSVPs and award records

BALANCE MUTATIONS:
  AddPoints is an unconditional increment. SubtractPoints is floor-checked
  in the database: it reports false and writes nothing when the balance is
  lower than the amount. No other method touches users.points.

MUTABLE ROW STATE:
  UpdateTransactionState writes only the suspicious flag, the signed amount,
  the related id and the redemption processing fields. All other row
  columns are fixed at insert.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via sqlx

SEE ALSO:
  - ledger.go: Credit/Debit built on the balance mutations
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - atomic units of work
// =============================================================================

type Store interface {
	// WithTx runs fn in one atomic unit. A non-nil error from fn rolls back
	// every write made through the Tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	UserStore
	TransactionStore
	PromotionStore
	EventStore
}

// =============================================================================
// USERS
// =============================================================================

type UserStore interface {
	// CreateUser sets u.ID. Returns ErrConflict if the utorid exists.
	CreateUser(ctx context.Context, u *User) error
	UserByUtorid(ctx context.Context, utorid string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserFlags(ctx context.Context, utorid string, verified, suspicious bool) error
	UpdateUserRole(ctx context.Context, utorid string, role Role) error

	// AddPoints increments the balance by delta (delta >= 0).
	AddPoints(ctx context.Context, utorid string, delta int64) error
	// SubtractPoints decrements the balance only if it stays non-negative.
	// It returns false without writing when the balance is too low.
	SubtractPoints(ctx context.Context, utorid string, amount int64) (bool, error)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionStore interface {
	// InsertTransaction sets t.ID and persists t.PromotionIDs as associations.
	InsertTransaction(ctx context.Context, t *Transaction) error
	TransactionByID(ctx context.Context, id int64) (*Transaction, error)
	UpdateTransactionState(ctx context.Context, t *Transaction) error
	TransactionsByOwner(ctx context.Context, utorid string) ([]Transaction, error)
	// UsedPromotions returns every promotion id applied to the user's purchases.
	UsedPromotions(ctx context.Context, utorid string) (PromotionSet, error)
	// ListTransactions returns one page ordered by id and the total match count.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int, error)
}

// =============================================================================
// PROMOTIONS
// =============================================================================

type PromotionStore interface {
	InsertPromotion(ctx context.Context, p *Promotion) error
	PromotionByID(ctx context.Context, id int64) (*Promotion, error)
	UpdatePromotion(ctx context.Context, p *Promotion) error
	DeletePromotion(ctx context.Context, id int64) error
	// PromotionsActiveAt lists promotions whose window contains at.
	PromotionsActiveAt(ctx context.Context, at time.Time) ([]Promotion, error)
}

// =============================================================================
// EVENTS
// =============================================================================

type EventStore interface {
	// InsertEvent sets e.ID and stores e.Organizers.
	InsertEvent(ctx context.Context, e *Event) error
	// EventByID loads the event with organizers, guests and award records.
	EventByID(ctx context.Context, id int64) (*Event, error)
	UpdateEventPoints(ctx context.Context, eventID, points int64) error
	SetEventPublished(ctx context.Context, eventID int64, published bool) error
	AddOrganizer(ctx context.Context, eventID, userID int64) error
	AddGuest(ctx context.Context, eventID, userID int64) error
	RemoveGuest(ctx context.Context, eventID, userID int64) error
	MarkAttended(ctx context.Context, eventID, userID int64) error
	InsertAward(ctx context.Context, a *EventPointAward) error
	// SumAwards totals award records for the event.
	SumAwards(ctx context.Context, eventID int64) (int64, error)
}
