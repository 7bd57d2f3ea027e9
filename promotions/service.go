package promotions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/ledger"
)

// Service administers promotion definitions.
type Service struct {
	store ledger.Store
	Now   func() time.Time
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store, Now: time.Now}
}

// =============================================================================
// CREATE
// =============================================================================

type CreateInput struct {
	Name        string
	Description string
	Kind        ledger.PromotionKind
	StartTime   time.Time
	EndTime     time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      int64
}

func (s *Service) Create(ctx context.Context, actor ledger.Actor, in CreateInput) (*ledger.Promotion, error) {
	now := s.Now()
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ledger.ErrInvalidInput)
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: type must be automatic or onetime", ledger.ErrInvalidInput)
	}
	if in.StartTime.Before(now) {
		return nil, fmt.Errorf("%w: start time is in the past", ledger.ErrInvalidInput)
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, fmt.Errorf("%w: end time must be after start time", ledger.ErrInvalidInput)
	}
	if err := validateTerms(in.MinSpending, in.Rate, in.Points); err != nil {
		return nil, err
	}
	if err := actor.Require(ledger.CapManagePromotions); err != nil {
		return nil, err
	}

	p := &ledger.Promotion{
		Name:        in.Name,
		Description: in.Description,
		Kind:        in.Kind,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		MinSpending: nullable(in.MinSpending),
		Rate:        nullable(in.Rate),
		Points:      in.Points,
	}
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.InsertPromotion(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"promotion": p.ID, "type": p.Kind, "actor": actor.Utorid}).Info("promotion created")
	return p, nil
}

func validateTerms(minSpending, rate *decimal.Decimal, points int64) error {
	if minSpending != nil && !minSpending.IsPositive() {
		return fmt.Errorf("%w: minimum spending must be positive", ledger.ErrInvalidAmount)
	}
	if rate != nil && rate.IsNegative() {
		return fmt.Errorf("%w: rate must not be negative", ledger.ErrInvalidAmount)
	}
	if points < 0 {
		return fmt.Errorf("%w: points must not be negative", ledger.ErrInvalidAmount)
	}
	return nil
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// =============================================================================
// READ
// =============================================================================

// Get returns a promotion. Actors who cannot manage promotions only see
// promotions that are currently active.
func (s *Service) Get(ctx context.Context, actor ledger.Actor, id int64) (*ledger.Promotion, error) {
	var p *ledger.Promotion
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		p, err = tx.PromotionByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !actor.Role.Can(ledger.CapManagePromotions) && !p.ActiveAt(s.Now()) {
		return nil, ledger.NewNotFound("promotion", id)
	}
	return p, nil
}

// AvailableOneTime lists the one-time promotions active now that utorid
// has not used yet. Automatic promotions carry no per-member state and
// are left out.
func (s *Service) AvailableOneTime(ctx context.Context, utorid string) ([]ledger.Promotion, error) {
	available := []ledger.Promotion{}
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		active, err := tx.PromotionsActiveAt(ctx, s.Now())
		if err != nil {
			return err
		}
		used, err := tx.UsedPromotions(ctx, utorid)
		if err != nil {
			return err
		}
		for _, p := range active {
			if p.Kind != ledger.PromotionOneTime || used.Contains(p.ID) {
				continue
			}
			available = append(available, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return available, nil
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

// UpdateInput carries optional changes. Nil fields are left as they are.
type UpdateInput struct {
	Name        *string
	Description *string
	Kind        *ledger.PromotionKind
	StartTime   *time.Time
	EndTime     *time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int64
}

func (in UpdateInput) touchesTerms() bool {
	return in.Name != nil || in.Description != nil || in.Kind != nil || in.StartTime != nil ||
		in.MinSpending != nil || in.Rate != nil || in.Points != nil
}

// Update edits a promotion. Once it has started only the end time may
// change, and once it has ended nothing may.
func (s *Service) Update(ctx context.Context, actor ledger.Actor, id int64, in UpdateInput) (*ledger.Promotion, error) {
	now := s.Now()
	if in.Kind != nil && !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: type must be automatic or onetime", ledger.ErrInvalidInput)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ledger.ErrInvalidInput)
	}
	var points int64
	if in.Points != nil {
		points = *in.Points
	}
	if err := validateTerms(in.MinSpending, in.Rate, points); err != nil {
		return nil, err
	}
	if in.StartTime != nil && in.StartTime.Before(now) {
		return nil, fmt.Errorf("%w: start time is in the past", ledger.ErrInvalidInput)
	}
	if in.EndTime != nil && in.EndTime.Before(now) {
		return nil, fmt.Errorf("%w: end time is in the past", ledger.ErrInvalidInput)
	}
	if err := actor.Require(ledger.CapManagePromotions); err != nil {
		return nil, err
	}

	var p *ledger.Promotion
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		if p, err = tx.PromotionByID(ctx, id); err != nil {
			return err
		}
		if p.Started(now) && in.touchesTerms() {
			return fmt.Errorf("%w: promotion has started; only the end time can change", ledger.ErrInvalidInput)
		}
		if p.Ended(now) && in.EndTime != nil {
			return fmt.Errorf("%w: promotion has ended", ledger.ErrInvalidInput)
		}

		if in.Name != nil {
			p.Name = *in.Name
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Kind != nil {
			p.Kind = *in.Kind
		}
		if in.StartTime != nil {
			p.StartTime = *in.StartTime
		}
		if in.EndTime != nil {
			p.EndTime = *in.EndTime
		}
		if in.MinSpending != nil {
			p.MinSpending = nullable(in.MinSpending)
		}
		if in.Rate != nil {
			p.Rate = nullable(in.Rate)
		}
		if in.Points != nil {
			p.Points = *in.Points
		}
		if !p.EndTime.After(p.StartTime) {
			return fmt.Errorf("%w: end time must be after start time", ledger.ErrInvalidInput)
		}
		return tx.UpdatePromotion(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"promotion": id, "actor": actor.Utorid}).Info("promotion updated")
	return p, nil
}

// Delete removes a promotion that has not started yet.
func (s *Service) Delete(ctx context.Context, actor ledger.Actor, id int64) error {
	if err := actor.Require(ledger.CapManagePromotions); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		p, err := tx.PromotionByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Started(s.Now()) {
			return fmt.Errorf("%w: promotion has already started", ledger.ErrForbidden)
		}
		return tx.DeletePromotion(ctx, id)
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"promotion": id, "actor": actor.Utorid}).Info("promotion deleted")
	return nil
}
