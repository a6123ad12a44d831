/*
errors.go - Centralized error types for the resolution engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (API layer, scheduler) classify errors with the helpers below
  instead of string matching.

ERROR CATEGORIES:
  1. Query errors - Bad input to resolution (invalid range, timezone)
  2. Resolution errors - No applicable policy anywhere in the chain
  3. Surge errors - Invalid surge parameters, materialization conflicts

PROPAGATION POLICY:
  Segment-level anomalies (no matching window) degrade gracefully to the
  default-rate fallback and are recorded in the decision log. Entity-level
  anomalies (no layer AND no default rate anywhere in the ancestor chain)
  are fatal for the whole query and carry the decision log for debugging.

USAGE:
  if errors.Is(err, engine.ErrNoApplicablePolicy) {
      var napErr *engine.NoApplicablePolicyError
      errors.As(err, &napErr) // napErr.Log has the full audit trail
  }
*/
package engine

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a query interval has end <= start.
	// Rejected before segmenting; no partial result is produced.
	ErrInvalidRange = errors.New("invalid range: end must be after start")

	// ErrNoApplicablePolicy is returned when a segment has no matching
	// layer and no ancestor provides a default hourly rate. Fatal for the
	// whole query, not per-segment.
	ErrNoApplicablePolicy = errors.New("no applicable policy")

	// ErrInvalidSurgeParameters is returned when surge inputs would make
	// the multiplier formula undefined (supply <= 0, historical <= 0, or
	// coefficients outside their allowed bands).
	ErrInvalidSurgeParameters = errors.New("invalid surge parameters")

	// ErrInvalidRecurrence marks a malformed recurrence. The layer is
	// excluded from candidates for the affected segment, logged, not fatal.
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrConcurrentMaterialization is returned when two materializations
	// for the same (scope, hour bucket) would produce duplicate layers.
	ErrConcurrentMaterialization = errors.New("concurrent materialization conflict")

	// ErrLayerNotFound is returned when a referenced layer doesn't exist.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrConfigNotFound is returned when a referenced surge config doesn't exist.
	ErrConfigNotFound = errors.New("surge config not found")

	// ErrNodeNotFound is returned when a referenced hierarchy node doesn't exist.
	ErrNodeNotFound = errors.New("hierarchy node not found")

	// ErrNoSnapshot is returned when materialization runs for a scope
	// that has no demand snapshot yet.
	ErrNoSnapshot = errors.New("no demand snapshot for scope")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError reports a rejected query interval.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: [%s, %s)", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// NoApplicablePolicyError carries the segment that failed and the full
// decision log accumulated up to that point, for debugging.
type NoApplicablePolicyError struct {
	EntityID     EntityID
	SegmentStart time.Time
	SegmentEnd   time.Time
	Log          DecisionLog
}

func (e *NoApplicablePolicyError) Error() string {
	return fmt.Sprintf("no applicable policy for %s in [%s, %s)",
		e.EntityID, e.SegmentStart.Format(time.RFC3339), e.SegmentEnd.Format(time.RFC3339))
}

func (e *NoApplicablePolicyError) Unwrap() error { return ErrNoApplicablePolicy }

// InvalidRecurrenceError describes a malformed recurrence rule.
type InvalidRecurrenceError struct {
	Kind   RecurrenceKind
	Detail string
}

func (e *InvalidRecurrenceError) Error() string {
	return fmt.Sprintf("invalid recurrence (%s): %s", e.Kind, e.Detail)
}

func (e *InvalidRecurrenceError) Unwrap() error { return ErrInvalidRecurrence }

// InvalidSurgeParametersError describes which surge invariant was violated.
type InvalidSurgeParametersError struct {
	Field  string
	Detail string
}

func (e *InvalidSurgeParametersError) Error() string {
	return fmt.Sprintf("invalid surge parameters: %s %s", e.Field, e.Detail)
}

func (e *InvalidSurgeParametersError) Unwrap() error { return ErrInvalidSurgeParameters }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidRecurrence) ||
		errors.Is(err, ErrInvalidSurgeParameters)
}

// IsConflict returns true if the error indicates a write conflict the
// caller may resolve by retrying.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentMaterialization)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLayerNotFound) ||
		errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrNoSnapshot)
}
