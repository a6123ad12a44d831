/*
audit.go - Decision log for resolution

PURPOSE:
  Every per-segment resolution produces a full audit entry: which layers
  were considered, which one won, and why each non-winner lost. The log
  ships with every result (and with NoApplicablePolicy failures) so an
  operator can answer "why this price?" without re-running the query.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectionReason classifies why a candidate lost a segment.
type RejectionReason string

const (
	RejectedLowerLevel     RejectionReason = "lower_hierarchy_level"
	RejectedLowerPriority  RejectionReason = "lower_priority"
	RejectedByValue        RejectionReason = "lost_value_tiebreak"
	RejectedNoWindow       RejectionReason = "no_window_for_time"
	RejectedNotRecurring   RejectionReason = "recurrence_not_matching"
	RejectedBadRecurrence  RejectionReason = "invalid_recurrence"
	RejectedSurgeMultiplier RejectionReason = "surge_applied_as_multiplier"
)

// Candidate is one layer considered for a segment.
type Candidate struct {
	LayerID   LayerID
	LayerName string
	Level     Level
	Priority  int
	Value     decimal.Decimal
	Rejected  bool
	Reason    RejectionReason
	Detail    string
}

// SegmentDecision is the audit record for one segment.
type SegmentDecision struct {
	SegmentStart time.Time
	SegmentEnd   time.Time
	LocalTime    LocalTime

	Candidates []Candidate

	// WinnerID is empty when the default-rate fallback was used.
	WinnerID    LayerID
	AppliedRule string

	// Surge multiplier applied on top of the winner, if any.
	SurgeLayerID    LayerID
	SurgeMultiplier *decimal.Decimal

	UsedDefaultRate   bool
	DefaultRateSource string
}

// DecisionLog is the ordered audit trail for a whole query.
type DecisionLog []SegmentDecision
