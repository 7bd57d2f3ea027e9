/*
dto.go - Request and response bodies

PURPOSE:
  JSON shapes of the HTTP API. Request types carry validator tags so
  structural problems are rejected before any permission check runs.

NAMING CONVENTION:
  - *Request: request bodies from clients
  - *Response: wrappers around ledger types when the raw type is not enough

SEE ALSO:
  - handlers.go: decode and validate helpers
  - ledger/types.go: ledger.User, ledger.Transaction, ledger.Event serialize directly
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-engine/jobs"
	"github.com/warp/loyalty-engine/ledger"
)

// =============================================================================
// AUTH / USERS
// =============================================================================

type LoginRequest struct {
	Utorid   string `json:"utorid" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RegisterUserRequest struct {
	Utorid   string `json:"utorid" validate:"required,alphanum,max=16"`
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=6"`
}

type UpdateUserRequest struct {
	Verified   *bool   `json:"verified"`
	Suspicious *bool   `json:"suspicious"`
	Role       *string `json:"role" validate:"omitempty,oneof=regular cashier manager superuser"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CreateTransactionRequest is a purchase (cashier) or adjustment (manager).
type CreateTransactionRequest struct {
	Type         string           `json:"type" validate:"required,oneof=purchase adjustment"`
	Utorid       string           `json:"utorid" validate:"required"`
	Spent        *decimal.Decimal `json:"spent"`
	Amount       *int64           `json:"amount"`
	RelatedID    *int64           `json:"relatedId"`
	PromotionIDs []int64          `json:"promotionIds"`
	Remark       string           `json:"remark" validate:"max=500"`
}

type RedemptionRequest struct {
	Type   string `json:"type" validate:"required,eq=redemption"`
	Amount int64  `json:"amount"`
	Remark string `json:"remark" validate:"max=500"`
}

type TransferRequest struct {
	Type   string `json:"type" validate:"required,eq=transfer"`
	Amount int64  `json:"amount"`
	Remark string `json:"remark" validate:"max=500"`
}

type ProcessedRequest struct {
	Processed *bool `json:"processed" validate:"required"`
}

type SuspiciousRequest struct {
	Suspicious *bool `json:"suspicious" validate:"required"`
}

// PurchaseResponse is the stored row plus what reached the balance.
type PurchaseResponse struct {
	ledger.Transaction
	Credited int64 `json:"credited"`
}

// =============================================================================
// PROMOTIONS
// =============================================================================

type CreatePromotionRequest struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Description string           `json:"description"`
	Type        string           `json:"type" validate:"required,oneof=automatic onetime"`
	StartTime   time.Time        `json:"startTime" validate:"required"`
	EndTime     time.Time        `json:"endTime" validate:"required"`
	MinSpending *decimal.Decimal `json:"minSpending"`
	Rate        *decimal.Decimal `json:"rate"`
	Points      int64            `json:"points"`
}

type UpdatePromotionRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string          `json:"description"`
	Type        *string          `json:"type" validate:"omitempty,oneof=automatic onetime"`
	StartTime   *time.Time       `json:"startTime"`
	EndTime     *time.Time       `json:"endTime"`
	MinSpending *decimal.Decimal `json:"minSpending"`
	Rate        *decimal.Decimal `json:"rate"`
	Points      *int64           `json:"points"`
}

// =============================================================================
// EVENTS
// =============================================================================

type CreateEventRequest struct {
	Name         string    `json:"name" validate:"required,max=100"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartTime    time.Time `json:"startTime" validate:"required"`
	EndTime      time.Time `json:"endTime" validate:"required"`
	Capacity     *int64    `json:"capacity"`
	Points       int64     `json:"points"`
	Published    bool      `json:"published"`
	OrganizerIDs []int64   `json:"organizerIds" validate:"dive,gt=0"`
}

type UpdateEventPointsRequest struct {
	Points *int64 `json:"points" validate:"required"`
}

type PublishEventRequest struct {
	Published *bool `json:"published" validate:"required"`
}

type UtoridRequest struct {
	Utorid string `json:"utorid" validate:"required"`
}

// AwardRequest pays one guest when Utorid is set, otherwise every guest.
type AwardRequest struct {
	Type   string `json:"type" validate:"required,eq=event"`
	Utorid string `json:"utorid"`
	Amount int64  `json:"amount"`
	Remark string `json:"remark" validate:"max=500"`
}

// EventResponse adds the pool summary to the event.
type EventResponse struct {
	ledger.Event
	PointsAwarded int64 `json:"pointsAwarded"`
	PointsRemain  int64 `json:"pointsRemain"`
	NumGuests     int   `json:"numGuests"`
}

func toEventResponse(e *ledger.Event) EventResponse {
	if e.Organizers == nil {
		e.Organizers = []ledger.Organizer{}
	}
	if e.Guests == nil {
		e.Guests = []ledger.Guest{}
	}
	return EventResponse{
		Event:         *e,
		PointsAwarded: e.PointsAwarded(),
		PointsRemain:  e.PointsRemain(),
		NumGuests:     len(e.Guests),
	}
}

// =============================================================================
// ADMIN
// =============================================================================

// AuditResponse is one audit report plus its verdict.
type AuditResponse struct {
	jobs.AuditReport
	Clean bool `json:"clean"`
}

func toAuditResponse(r *jobs.AuditReport) AuditResponse {
	resp := AuditResponse{AuditReport: *r, Clean: r.Clean()}
	if resp.Drift == nil {
		resp.Drift = []ledger.Drift{}
	}
	return resp
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func validationErrors(err error) []ValidationError {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: validationMessage(fe),
		})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min", "max":
		return fe.Field() + " must be " + fe.Tag() + " " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "eq":
		return fe.Field() + " must be " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
