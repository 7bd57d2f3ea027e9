/*
Package events manages hosted events, their guest lists and point pools.

PURPOSE:
  An event has a fixed points budget. Organizers and managers award points
  from it to RSVP'd guests. The awarded total is always derived by summing
  award records, and an award that would exceed the remainder is refused
  for every recipient.

AWARD ALGORITHM:
  1. Validate the amount (positive).
  2. Load the event; authorize (manager, or organizer of this event).
  3. Resolve recipients: the named guest, or every RSVP'd guest by user id.
  4. remaining = max(budget - sum(awards), 0); fail if amount*n > remaining.
  5. For each recipient, in one unit: award record + credit + event row.

GUEST RULES:
  - Joining is refused once the event has ended or is at capacity.
  - Organizers cannot be guests of their own event and vice versa.
  - Members may remove themselves only before the event ends; managers may
    remove anyone.

SEE ALSO:
  - ledger/types.go: Event, PointsAwarded, PointsRemain
*/
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/metrics"
)

type Service struct {
	store ledger.Store
	Now   func() time.Time
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store, Now: time.Now}
}

// canManage reports whether actor may administer e: any manager, or one of
// its organizers.
func canManage(actor ledger.Actor, e *ledger.Event) bool {
	return actor.Role.Can(ledger.CapManageEvents) || e.IsOrganizer(actor.ID)
}

// =============================================================================
// CREATE / READ
// =============================================================================

type CreateInput struct {
	Name         string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	Capacity     *int64
	Points       int64
	Published    bool
	OrganizerIDs []int64
}

func (s *Service) Create(ctx context.Context, actor ledger.Actor, in CreateInput) (*ledger.Event, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ledger.ErrInvalidInput)
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ledger.ErrInvalidInput)
	}
	if in.Capacity != nil && *in.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ledger.ErrInvalidInput)
	}
	if in.Points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", ledger.ErrInvalidAmount)
	}
	if err := actor.Require(ledger.CapManageEvents); err != nil {
		return nil, err
	}

	e := &ledger.Event{
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Capacity:    in.Capacity,
		Points:      in.Points,
		Published:   in.Published,
		CreatedByID: actor.ID,
	}
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		seen := map[int64]bool{}
		for _, id := range in.OrganizerIDs {
			if id == actor.ID {
				return fmt.Errorf("%w: creator cannot be listed as an organizer", ledger.ErrInvalidInput)
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			u, err := tx.UserByID(ctx, id)
			if err != nil {
				return err
			}
			e.Organizers = append(e.Organizers, ledger.Organizer{UserID: u.ID, Utorid: u.Utorid, Name: u.Name})
		}
		return tx.InsertEvent(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"event": e.ID, "points": e.Points, "actor": actor.Utorid}).Info("event created")
	return e, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*ledger.Event, error) {
	var e *ledger.Event
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		e, err = tx.EventByID(ctx, id)
		return err
	})
	return e, err
}

// UpdatePoints changes an event's budget. It can never drop below what has
// already been awarded.
func (s *Service) UpdatePoints(ctx context.Context, actor ledger.Actor, eventID, points int64) (*ledger.Event, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", ledger.ErrInvalidAmount)
	}
	if err := actor.Require(ledger.CapManageEvents); err != nil {
		return nil, err
	}

	var e *ledger.Event
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.EventByID(ctx, eventID); err != nil {
			return err
		}
		awarded, err := tx.SumAwards(ctx, eventID)
		if err != nil {
			return err
		}
		if points < awarded {
			return fmt.Errorf("%w: %d points already awarded", ledger.ErrInvalidAmount, awarded)
		}
		if err := tx.UpdateEventPoints(ctx, eventID, points); err != nil {
			return err
		}
		e, err = tx.EventByID(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"event": eventID, "points": points, "actor": actor.Utorid}).Info("event budget changed")
	return e, nil
}

// SetPublished shows or hides an event on the public board.
func (s *Service) SetPublished(ctx context.Context, actor ledger.Actor, eventID int64, published bool) (*ledger.Event, error) {
	if err := actor.Require(ledger.CapManageEvents); err != nil {
		return nil, err
	}

	var e *ledger.Event
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.SetEventPublished(ctx, eventID, published); err != nil {
			return err
		}
		var err error
		e, err = tx.EventByID(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"event": eventID, "published": published, "actor": actor.Utorid}).Info("event visibility changed")
	return e, nil
}

// =============================================================================
// ORGANIZERS
// =============================================================================

func (s *Service) AddOrganizer(ctx context.Context, actor ledger.Actor, eventID int64, utorid string) (*ledger.Event, error) {
	if utorid == "" {
		return nil, fmt.Errorf("%w: utorid is required", ledger.ErrInvalidInput)
	}
	if err := actor.Require(ledger.CapManageEvents); err != nil {
		return nil, err
	}

	var e *ledger.Event
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		if e, err = tx.EventByID(ctx, eventID); err != nil {
			return err
		}
		if e.Ended(s.Now()) {
			return ledger.ErrEventEnded
		}
		u, err := tx.UserByUtorid(ctx, utorid)
		if err != nil {
			return err
		}
		if _, isGuest := e.Guest(u.ID); isGuest {
			return fmt.Errorf("%w: %s is registered as a guest", ledger.ErrInvalidInput, utorid)
		}
		if err := tx.AddOrganizer(ctx, eventID, u.ID); err != nil {
			return err
		}
		e, err = tx.EventByID(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// =============================================================================
// GUESTS
// =============================================================================

// AddGuest registers utorid for the event. Managers and organizers may add
// anyone; other members may only add themselves.
func (s *Service) AddGuest(ctx context.Context, actor ledger.Actor, eventID int64, utorid string) (*ledger.Guest, error) {
	if utorid == "" {
		return nil, fmt.Errorf("%w: utorid is required", ledger.ErrInvalidInput)
	}

	var guest ledger.Guest
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		e, err := tx.EventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if e.Ended(s.Now()) {
			return ledger.ErrEventEnded
		}
		if e.Full() {
			return ledger.ErrCapacityExceeded
		}
		if !canManage(actor, e) && actor.Utorid != utorid {
			return fmt.Errorf("%w: cannot add other guests", ledger.ErrForbidden)
		}
		u, err := tx.UserByUtorid(ctx, utorid)
		if err != nil {
			return err
		}
		if e.IsOrganizer(u.ID) {
			return fmt.Errorf("%w: organizers cannot be guests", ledger.ErrInvalidInput)
		}
		if _, exists := e.Guest(u.ID); exists {
			return fmt.Errorf("%w: %s is already a guest", ledger.ErrConflict, utorid)
		}
		if err := tx.AddGuest(ctx, eventID, u.ID); err != nil {
			return err
		}
		guest = ledger.Guest{UserID: u.ID, Utorid: u.Utorid, Name: u.Name, Status: ledger.RSVPed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &guest, nil
}

// RemoveGuest drops userID from the guest list.
func (s *Service) RemoveGuest(ctx context.Context, actor ledger.Actor, eventID, userID int64) error {
	self := actor.ID == userID
	if !self {
		if err := actor.Require(ledger.CapManageEvents); err != nil {
			return err
		}
	}
	return s.store.WithTx(ctx, func(tx ledger.Tx) error {
		e, err := tx.EventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if self && e.Ended(s.Now()) {
			return ledger.ErrEventEnded
		}
		if _, ok := e.Guest(userID); !ok {
			return ledger.NewNotFound("guest", userID)
		}
		return tx.RemoveGuest(ctx, eventID, userID)
	})
}

// ConfirmAttendance marks a guest as attended.
func (s *Service) ConfirmAttendance(ctx context.Context, actor ledger.Actor, eventID, userID int64) error {
	return s.store.WithTx(ctx, func(tx ledger.Tx) error {
		e, err := tx.EventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if !canManage(actor, e) {
			return fmt.Errorf("%w: only organizers and managers confirm attendance", ledger.ErrForbidden)
		}
		if _, ok := e.Guest(userID); !ok {
			return ledger.NewNotFound("guest", userID)
		}
		return tx.MarkAttended(ctx, eventID, userID)
	})
}

// =============================================================================
// POINTS POOL
// =============================================================================

type AwardInput struct {
	// Utorid names one guest. Empty awards every RSVP'd guest.
	Utorid string
	Amount int64
	Remark string
}

// AwardPoints grants in.Amount to each recipient from the event's pool.
// Either every recipient is paid or nobody is.
func (s *Service) AwardPoints(ctx context.Context, actor ledger.Actor, eventID int64, in AwardInput) ([]ledger.Transaction, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: award must be positive", ledger.ErrInvalidAmount)
	}

	now := s.Now()
	var rows []ledger.Transaction
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		e, err := tx.EventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if !actor.Role.Can(ledger.CapAwardAnyEvent) && !e.IsOrganizer(actor.ID) {
			return fmt.Errorf("%w: only organizers and managers award points", ledger.ErrForbidden)
		}

		recipients, err := resolveRecipients(ctx, tx, e, in.Utorid)
		if err != nil {
			return err
		}

		awarded, err := tx.SumAwards(ctx, eventID)
		if err != nil {
			return err
		}
		remaining := max(e.Points-awarded, 0)
		// Divide instead of multiplying so a huge amount cannot wrap.
		n := int64(len(recipients))
		if in.Amount > remaining/n {
			return fmt.Errorf("%w: %d each to %d guests, %d remaining", ledger.ErrInvalidAmount, in.Amount, n, remaining)
		}

		eid := e.ID
		for _, g := range recipients {
			award := ledger.EventPointAward{
				EventID: e.ID, AttendeeID: g.UserID, AwardedByID: actor.ID, Points: in.Amount, CreatedAt: now,
			}
			if err := tx.InsertAward(ctx, &award); err != nil {
				return err
			}
			if err := ledger.Credit(ctx, tx, g.Utorid, in.Amount); err != nil {
				return err
			}
			row := ledger.Transaction{
				Kind:      ledger.KindEvent,
				Owner:     g.Utorid,
				Amount:    in.Amount,
				RelatedID: &eid,
				EventID:   &eid,
				Remark:    in.Remark,
				CreatedBy: actor.Utorid,
				CreatedAt: now,
			}
			if err := tx.InsertTransaction(ctx, &row); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		metrics.RecordTransaction(string(row.Kind))
		metrics.RecordPoints(string(row.Kind), row.Amount)
	}
	log.WithFields(log.Fields{
		"event":      eventID,
		"recipients": len(rows),
		"amount":     in.Amount,
		"actor":      actor.Utorid,
	}).Info("event points awarded")
	return rows, nil
}

func resolveRecipients(ctx context.Context, tx ledger.Tx, e *ledger.Event, utorid string) ([]ledger.Guest, error) {
	if utorid == "" {
		var guests []ledger.Guest
		for _, g := range e.Guests {
			if g.Status == ledger.RSVPed {
				guests = append(guests, g)
			}
		}
		if len(guests) == 0 {
			return nil, fmt.Errorf("%w: event has no guests", ledger.ErrNotGuest)
		}
		return guests, nil
	}

	u, err := tx.UserByUtorid(ctx, utorid)
	if err != nil {
		return nil, err
	}
	g, ok := e.Guest(u.ID)
	if !ok || g.Status != ledger.RSVPed {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotGuest, utorid)
	}
	return []ledger.Guest{g}, nil
}
