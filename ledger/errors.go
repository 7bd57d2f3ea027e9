/*
errors.go - Error taxonomy for the points ledger

PURPOSE:
  Every failure the ledger can report lives here so callers can branch on
  kinds with errors.Is and the HTTP layer can map kinds to status codes in
  one place.

ERROR CATEGORIES:
  1. Lookup errors     - NotFound
  2. Amount errors     - InvalidAmount, InsufficientPoints
  3. Permission errors - Forbidden, Unauthenticated
  4. State errors      - AlreadyProcessed, Conflict, InvalidReference
  5. Promotion errors  - PromotionInactive, PromotionAlreadyUsed, MinimumSpendNotMet
  6. Event errors      - CapacityExceeded, EventEnded, NotGuest

USAGE:
  Domain packages wrap sentinels with context:

    return fmt.Errorf("%w: sender must be verified", ledger.ErrForbidden)

  and callers test the kind:

    if errors.Is(err, ledger.ErrInsufficientPoints) { ... }

SEE ALSO:
  - ledger.go: Debit returns InsufficientPointsError
  - api/errors.go: kind -> HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced user, transaction, promotion
	// or event does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount is returned for non-positive, zero or wrong-sign amounts,
	// and for event awards that exceed the remaining pool.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput is returned for malformed arguments that are not amounts
	// (missing handles, bad time windows, self-transfers).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientPoints is returned when a balance is too low at debit time.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrForbidden is returned when verification is required and absent, or
	// when the actor lacks the capability for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated is returned when credentials do not match.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAlreadyProcessed is returned on a second attempt to process a redemption.
	ErrAlreadyProcessed = errors.New("redemption already processed")

	// ErrConflict is returned when a uniqueness rule is violated
	// (duplicate utorid, user already a guest).
	ErrConflict = errors.New("conflict")

	// ErrInvalidReference is returned when an adjustment's related transaction
	// belongs to a different user.
	ErrInvalidReference = errors.New("related transaction does not belong to this user")

	ErrPromotionInactive    = errors.New("promotion not active")
	ErrPromotionAlreadyUsed = errors.New("promotion already used")
	ErrMinimumSpendNotMet   = errors.New("minimum spending not met for promotion")

	ErrCapacityExceeded = errors.New("event is at full capacity")
	ErrEventEnded       = errors.New("event has ended")
	ErrNotGuest         = errors.New("user is not a guest")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing resource and the key it was looked up by.
type NotFoundError struct {
	Resource string
	Key      any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFound builds a NotFoundError.
func NewNotFound(resource string, key any) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// InsufficientPointsError provides details about a balance shortage.
type InsufficientPointsError struct {
	Utorid    string
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for %s: available %d, requested %d",
		e.Utorid, e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to caller input or state
// rather than an infrastructure failure.
func IsClientError(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrInvalidAmount, ErrInvalidInput, ErrInsufficientPoints,
		ErrForbidden, ErrUnauthenticated, ErrAlreadyProcessed, ErrConflict,
		ErrInvalidReference, ErrPromotionInactive, ErrPromotionAlreadyUsed,
		ErrMinimumSpendNotMet, ErrCapacityExceeded, ErrEventEnded, ErrNotGuest,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
