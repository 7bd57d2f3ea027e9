package ledger

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// =============================================================================
// REDEMPTION - two-state lifecycle: requested -> processed
// =============================================================================

type RedemptionStatus string

const (
	RedemptionRequested RedemptionStatus = "requested"
	RedemptionProcessed RedemptionStatus = "processed"
)

// Redemption is the processing state carried by redemption rows.
// Requested is always the positive amount the user asked for.
type Redemption struct {
	Status      RedemptionStatus `json:"status"`
	Requested   int64            `json:"requested"`
	ProcessedBy string           `json:"processedBy,omitempty"`
	ProcessedAt *time.Time       `json:"processedAt,omitempty"`
}

// RequestRedemption starts a redemption in the requested state.
func RequestRedemption(amount int64) (Redemption, error) {
	if amount <= 0 {
		return Redemption{}, fmt.Errorf("%w: redemption amount must be positive", ErrInvalidAmount)
	}
	return Redemption{Status: RedemptionRequested, Requested: amount}, nil
}

func (r Redemption) Processed() bool {
	return r.Status == RedemptionProcessed
}

// Process moves the redemption to processed. Processing twice fails.
func (r Redemption) Process(by string, at time.Time) (Redemption, error) {
	if r.Processed() {
		return r, ErrAlreadyProcessed
	}
	r.Status = RedemptionProcessed
	r.ProcessedBy = by
	r.ProcessedAt = &at
	return r, nil
}

// LedgerAmount is the signed amount stored on the row: positive while
// pending, negated once processed.
func (r Redemption) LedgerAmount() int64 {
	if r.Processed() {
		return -r.Requested
	}
	return r.Requested
}

// =============================================================================
// PROMOTION SET - applied promotion ids on a purchase
// =============================================================================

// PromotionSet is a sorted, duplicate-free list of promotion ids.
type PromotionSet []int64

func NewPromotionSet(ids ...int64) PromotionSet {
	set := make(PromotionSet, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(set, id) {
			set = append(set, id)
		}
	}
	slices.Sort(set)
	return set
}

func (s PromotionSet) Contains(id int64) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}

func (s PromotionSet) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]int64(s))
}

func (s *PromotionSet) UnmarshalJSON(b []byte) error {
	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewPromotionSet(ids...)
	return nil
}
