/*
Package ledger provides the core points-ledger engine.

PURPOSE:
  This package contains the entity types, the balance primitives and the
  persistence contract shared by every domain package. Purchases, transfers,
  redemptions, adjustments and event awards all end up as rows described
  here and as balance changes made through Credit and Debit.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: a member holding a non-negative points balance
  - Transaction: a ledger row with a kind, an owner and a signed amount
  - Promotion: a time-windowed bonus rule applied to purchases
  - Event: a hosted event with a finite award pool and guest list

DESIGN PRINCIPLES:
  1. Points are integers. Spend, rates and thresholds use decimal.Decimal.
  2. A row's EffectiveAmount is what it contributes to its owner's balance.
     Summing EffectiveAmount over a user's rows reproduces the balance.
  3. Rows are mutable only in two fields: the suspicious flag and the
     redemption processing state.

SEE ALSO:
  - redemption.go: redemption lifecycle
  - ledger.go: Credit/Debit primitives and the balance audit
  - store.go: persistence interface
*/
package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// USER
// =============================================================================

type User struct {
	ID           int64     `json:"id"`
	Utorid       string    `json:"utorid"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Points       int64     `json:"points"`
	Verified     bool      `json:"verified"`
	Suspicious   bool      `json:"suspicious"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Actor returns the identity used when this user performs an operation.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Utorid: u.Utorid, Role: u.Role}
}

// =============================================================================
// TRANSACTION
// =============================================================================

type Kind string

const (
	KindPurchase   Kind = "purchase"
	KindAdjustment Kind = "adjustment"
	KindTransfer   Kind = "transfer"
	KindRedemption Kind = "redemption"
	KindEvent      Kind = "event"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPurchase, KindAdjustment, KindTransfer, KindRedemption, KindEvent:
		return true
	}
	return false
}

// Transaction is one ledger row. Owner is the utorid whose balance the row
// affects. Amount is signed as stored: transfers out and processed
// redemptions are negative.
type Transaction struct {
	ID           int64           `json:"id"`
	Kind         Kind            `json:"type"`
	Owner        string          `json:"utorid"`
	Amount       int64           `json:"amount"`
	Spent        decimal.Decimal `json:"spent,omitempty"`
	PromotionIDs PromotionSet    `json:"promotionIds"`
	RelatedID    *int64          `json:"relatedId,omitempty"`
	Sender       string          `json:"sender,omitempty"`
	Recipient    string          `json:"recipient,omitempty"`
	EventID      *int64          `json:"eventId,omitempty"`
	Suspicious   bool            `json:"suspicious"`
	Redemption   *Redemption     `json:"redemption,omitempty"`
	Remark       string          `json:"remark"`
	CreatedBy    string          `json:"createdBy"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// AffectsBalance reports whether the row moves points for its owner at all,
// ignoring the suspicious flag. Unprocessed redemptions never do.
func (t Transaction) AffectsBalance() bool {
	if t.Owner == "" || t.Amount == 0 {
		return false
	}
	if t.Kind == KindRedemption {
		return t.Redemption != nil && t.Redemption.Processed()
	}
	return true
}

// EffectiveAmount is the row's current contribution to its owner's balance.
func (t Transaction) EffectiveAmount() int64 {
	if t.Suspicious || !t.AffectsBalance() {
		return 0
	}
	return t.Amount
}

// TransactionFilter narrows a transaction listing. Zero values mean "any".
type TransactionFilter struct {
	Owner       string
	Name        string
	CreatedBy   string
	Kind        Kind
	Suspicious  *bool
	PromotionID int64
	RelatedID   *int64
	Amount      *int64
	Operator    string // "gte" or "lte", used with Amount
	Page        int
	Limit       int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// Normalize validates paging and fills defaults.
func (f *TransactionFilter) Normalize() error {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Page < 1 || f.Limit < 1 || f.Limit > MaxPageLimit {
		return ErrInvalidInput
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return ErrInvalidInput
	}
	if f.Amount != nil && f.Operator != "gte" && f.Operator != "lte" {
		return ErrInvalidInput
	}
	return nil
}

// =============================================================================
// PROMOTION
// =============================================================================

type PromotionKind string

const (
	PromotionAutomatic PromotionKind = "automatic"
	PromotionOneTime   PromotionKind = "onetime"
)

func (k PromotionKind) Valid() bool {
	return k == PromotionAutomatic || k == PromotionOneTime
}

type Promotion struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Kind        PromotionKind       `json:"type"`
	StartTime   time.Time           `json:"startTime"`
	EndTime     time.Time           `json:"endTime"`
	MinSpending decimal.NullDecimal `json:"minSpending"`
	Rate        decimal.NullDecimal `json:"rate"`
	Points      int64               `json:"points"`
}

// ActiveAt reports whether at falls in the half-open window [StartTime, EndTime).
func (p Promotion) ActiveAt(at time.Time) bool {
	return !at.Before(p.StartTime) && at.Before(p.EndTime)
}

func (p Promotion) Started(at time.Time) bool { return !at.Before(p.StartTime) }
func (p Promotion) Ended(at time.Time) bool   { return !at.Before(p.EndTime) }

// Bonus returns the points this promotion adds to a purchase of spent.
func (p Promotion) Bonus(spent decimal.Decimal) (int64, error) {
	var bonus int64
	if p.Rate.Valid {
		var err error
		if bonus, err = PointsOf(spent.Mul(p.Rate.Decimal)); err != nil {
			return 0, err
		}
	}
	return SumPoints(bonus, p.Points)
}

// =============================================================================
// POINT ARITHMETIC
// =============================================================================

var maxPoints = decimal.NewFromInt(math.MaxInt64)

// PointsOf rounds d half away from zero to whole points. Values outside the
// int64 range fail with ErrInvalidAmount.
func PointsOf(d decimal.Decimal) (int64, error) {
	r := d.Round(0)
	if r.Abs().GreaterThan(maxPoints) {
		return 0, fmt.Errorf("%w: %s points out of range", ErrInvalidAmount, r)
	}
	return r.IntPart(), nil
}

// SumPoints adds two non-negative point amounts, failing on overflow.
func SumPoints(a, b int64) (int64, error) {
	if a > math.MaxInt64-b {
		return 0, fmt.Errorf("%w: %d + %d points out of range", ErrInvalidAmount, a, b)
	}
	return a + b, nil
}

// =============================================================================
// EVENT
// =============================================================================

type RSVPStatus string

const RSVPed RSVPStatus = "rsvped"

type Guest struct {
	UserID   int64      `json:"id"`
	Utorid   string     `json:"utorid"`
	Name     string     `json:"name"`
	Status   RSVPStatus `json:"status"`
	Attended bool       `json:"attended"`
}

type Organizer struct {
	UserID int64  `json:"id"`
	Utorid string `json:"utorid"`
	Name   string `json:"name"`
}

// EventPointAward records points granted from an event's pool to one guest.
type EventPointAward struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"eventId"`
	AttendeeID  int64     `json:"attendeeId"`
	AwardedByID int64     `json:"awardedById"`
	Points      int64     `json:"points"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Event struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Location    string            `json:"location"`
	StartTime   time.Time         `json:"startTime"`
	EndTime     time.Time         `json:"endTime"`
	Capacity    *int64            `json:"capacity"`
	Points      int64             `json:"-"`
	Published   bool              `json:"published"`
	CreatedByID int64             `json:"createdById"`
	Organizers  []Organizer       `json:"organizers"`
	Guests      []Guest           `json:"guests"`
	Awards      []EventPointAward `json:"-"`
}

// PointsAwarded sums the award records. It is never stored.
func (e Event) PointsAwarded() int64 {
	var total int64
	for _, a := range e.Awards {
		total += a.Points
	}
	return total
}

// PointsRemain is the unallocated part of the pool, floored at zero.
func (e Event) PointsRemain() int64 {
	return max(e.Points-e.PointsAwarded(), 0)
}

func (e Event) Ended(at time.Time) bool { return !at.Before(e.EndTime) }

func (e Event) Full() bool {
	return e.Capacity != nil && int64(len(e.Guests)) >= *e.Capacity
}

func (e Event) IsOrganizer(userID int64) bool {
	for _, o := range e.Organizers {
		if o.UserID == userID {
			return true
		}
	}
	return false
}

func (e Event) Guest(userID int64) (Guest, bool) {
	for _, g := range e.Guests {
		if g.UserID == userID {
			return g, true
		}
	}
	return Guest{}, false
}
