/*
Package engine provides the hierarchical rate & capacity resolution core.

PURPOSE:
  This package contains the domain types and algorithms that answer two
  questions for any booking interval: "what does it cost?" and "how much
  capacity is available?". Both answers are derived by merging multiple
  overlapping, prioritized policy layers defined at different hierarchy
  levels and time scopes.

KEY CONCEPTS IN THIS FILE (types.go):
  - PolicyLayer: A prioritized rule (rate sheet or capacity sheet) scoped
    to one hierarchy level and a validity window
  - Scope/Level: Where in the account→site→subarea→venue tree a layer binds
  - TimeWindow: A local-time slice of the day carrying a value
  - Recurrence: How a layer repeats (daily, weekly, monthly, yearly)
  - LocalTime: Minutes since local midnight, the unit of window matching

DESIGN PRINCIPLES:
  1. Determinism: Resolution is a pure function of its inputs
  2. Precision: Uses decimal.Decimal for all money math
  3. Type Safety: Level is a closed sum type with exhaustive switches
  4. Auditability: Every per-segment decision records all candidates and
     why each non-winner lost

USAGE:
  layer := engine.PolicyLayer{
      Scope:    engine.Scope{Level: engine.LevelSite, EntityID: "site-1"},
      Kind:     engine.KindTimeWindow,
      Priority: 10,
      Windows:  []engine.TimeWindow{{Start: nine, End: five, Value: rate}},
  }

SEE ALSO:
  - hierarchy.go: Hierarchy nodes and ancestor chains
  - resolver.go: Per-segment conflict resolution for pricing
  - capacity.go: Per-segment capacity aggregation
*/
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type LayerID string
type ConfigID string

// =============================================================================
// LEVEL - Closed sum type for hierarchy levels
// =============================================================================

// Level identifies a tier in the four-level spatial hierarchy.
// The set is closed: any other string is invalid and must be rejected
// at the boundary, never silently passed through.
type Level string

const (
	LevelAccount    Level = "account"
	LevelSite       Level = "site"
	LevelSubarea    Level = "subarea"
	LevelVenueEvent Level = "venue_event"
)

// Rank returns the specificity of a level. Higher rank means closer to
// the bookable unit; a higher-ranked layer strictly dominates a
// lower-ranked one regardless of numeric priority.
func (l Level) Rank() int {
	switch l {
	case LevelAccount:
		return 1
	case LevelSite:
		return 2
	case LevelSubarea:
		return 3
	case LevelVenueEvent:
		return 4
	default:
		return 0
	}
}

func (l Level) Valid() bool { return l.Rank() > 0 }

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(s))
	if !l.Valid() {
		return "", fmt.Errorf("unknown hierarchy level %q", s)
	}
	return l, nil
}

// Scope binds a policy layer to one entity at one level.
type Scope struct {
	Level    Level
	EntityID EntityID
}

func (s Scope) String() string { return string(s.Level) + "/" + string(s.EntityID) }

// =============================================================================
// LOCAL TIME - Minutes since local midnight
// =============================================================================

// LocalTime is a wall-clock time-of-day, measured in minutes since
// midnight in the entity's timezone. Valid range is [0, 1440].
type LocalTime int

const EndOfDay LocalTime = 24 * 60

// ParseLocalTime parses "HH:mm" (24-hour clock).
func ParseLocalTime(s string) (LocalTime, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid local time %q (use HH:mm)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	lt := LocalTime(h*60 + m)
	if lt > EndOfDay {
		return 0, fmt.Errorf("local time %q past end of day", s)
	}
	return lt, nil
}

func MustLocalTime(s string) LocalTime {
	lt, err := ParseLocalTime(s)
	if err != nil {
		panic(err)
	}
	return lt
}

func (lt LocalTime) Hour() int   { return int(lt) / 60 }
func (lt LocalTime) Minute() int { return int(lt) % 60 }

func (lt LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", lt.Hour(), lt.Minute())
}

// LocalTimeOf extracts the LocalTime of an instant in a timezone.
func LocalTimeOf(t time.Time, loc *time.Location) LocalTime {
	local := t.In(loc)
	return LocalTime(local.Hour()*60 + local.Minute())
}

// =============================================================================
// TIME WINDOW - Local-time slice of the day carrying a value
// =============================================================================

// TimeWindow is one entry of a layer's schedule. Value is a price per
// hour for rate sheets, a multiplier for surge layers. Capacity sheets
// carry bounds in Capacity instead.
type TimeWindow struct {
	Start LocalTime
	End   LocalTime
	Value decimal.Decimal

	// Capacity bounds, set only on capacity-sheet layers.
	Capacity *CapacitySettings
}

// Covers reports whether the window contains the local time.
// Windows are half-open: [Start, End).
func (w TimeWindow) Covers(lt LocalTime) bool {
	return lt >= w.Start && lt < w.End
}

func (w TimeWindow) validate() error {
	if w.Start >= w.End {
		// Cross-midnight windows are not supported; every window must
		// start and end on the same local day.
		return fmt.Errorf("window %s-%s: start must be before end", w.Start, w.End)
	}
	if w.Start < 0 || w.End > EndOfDay {
		return fmt.Errorf("window %s-%s: outside [00:00, 24:00]", w.Start, w.End)
	}
	return nil
}

// =============================================================================
// RECURRENCE - How a layer repeats over calendar dates
// =============================================================================

type RecurrenceKind string

const (
	RecurNone    RecurrenceKind = "none"
	RecurDaily   RecurrenceKind = "daily"
	RecurWeekly  RecurrenceKind = "weekly"
	RecurMonthly RecurrenceKind = "monthly"
	RecurYearly  RecurrenceKind = "yearly"
)

// Recurrence determines which calendar dates a layer's windows apply to.
// RecurNone behaves like RecurDaily within the validity range: the
// windows apply on every date the layer is effective.
type Recurrence struct {
	Kind RecurrenceKind

	// For RecurWeekly: which weekdays the layer applies on.
	Weekdays []time.Weekday

	// For RecurMonthly: day of month (1-31).
	DayOfMonth int
}

// MatchesDate reports whether the recurrence applies on the given local
// date. anchor is the layer's EffectiveFrom, used by yearly recurrence.
// A malformed recurrence returns ErrInvalidRecurrence-wrapped detail.
func (r Recurrence) MatchesDate(date time.Time, anchor time.Time) (bool, error) {
	switch r.Kind {
	case RecurNone, RecurDaily, "":
		return true, nil
	case RecurWeekly:
		if len(r.Weekdays) == 0 {
			return false, &InvalidRecurrenceError{Kind: r.Kind, Detail: "weekly recurrence with no weekdays"}
		}
		for _, wd := range r.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return false, &InvalidRecurrenceError{Kind: r.Kind, Detail: fmt.Sprintf("invalid weekday %d", wd)}
			}
			if date.Weekday() == wd {
				return true, nil
			}
		}
		return false, nil
	case RecurMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return false, &InvalidRecurrenceError{Kind: r.Kind, Detail: fmt.Sprintf("invalid day of month %d", r.DayOfMonth)}
		}
		return date.Day() == r.DayOfMonth, nil
	case RecurYearly:
		return date.Month() == anchor.Month() && date.Day() == anchor.Day(), nil
	default:
		return false, &InvalidRecurrenceError{Kind: r.Kind, Detail: "unknown recurrence kind"}
	}
}

// =============================================================================
// POLICY LAYER - The unit of pricing/capacity policy
// =============================================================================

type LayerKind string

const (
	KindTimeWindow      LayerKind = "time_window"
	KindDurationPackage LayerKind = "duration_package"
	KindSurgeMultiplier LayerKind = "surge_multiplier"
)

// LayerCategory separates rate sheets from capacity sheets. Both share
// the PolicyLayer shape; the resolver consults rate-category layers, the
// capacity aggregator consults capacity-category layers.
type LayerCategory string

const (
	CategoryRate     LayerCategory = "rate"
	CategoryCapacity LayerCategory = "capacity"
)

type TieBreak string

const (
	TieBreakPriority     TieBreak = "priority"
	TieBreakHighestValue TieBreak = "highest_value"
	TieBreakLowestValue  TieBreak = "lowest_value"
)

type ApprovalStatus string

const (
	StatusDraft      ApprovalStatus = "draft"
	StatusPending    ApprovalStatus = "pending"
	StatusApproved   ApprovalStatus = "approved"
	StatusSuperseded ApprovalStatus = "superseded"
	StatusRejected   ApprovalStatus = "rejected"
)

// PolicyLayer is a prioritized, time-boxed pricing or capacity rule.
// Layers are created by operators directly, or derived by the surge
// materializer (in which case SourceConfigID links back to the config).
type PolicyLayer struct {
	ID       LayerID
	Name     string
	Scope    Scope
	Category LayerCategory
	Kind     LayerKind

	// Priority orders layers within one hierarchy level. Hierarchy level
	// strictly dominates: a venue-level layer with priority 1 beats a
	// site-level layer with priority 999.
	Priority int

	TieBreak TieBreak

	EffectiveFrom time.Time
	EffectiveTo   *time.Time

	Recurrence Recurrence
	Windows    []TimeWindow

	Active         bool
	ApprovalStatus ApprovalStatus

	// Set on layers derived by the surge materializer.
	SourceConfigID ConfigID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the layer's structural invariants.
func (pl *PolicyLayer) Validate() error {
	if !pl.Scope.Level.Valid() {
		return fmt.Errorf("layer %s: invalid scope level %q", pl.ID, pl.Scope.Level)
	}
	if pl.EffectiveTo != nil && pl.EffectiveTo.Before(pl.EffectiveFrom) {
		return fmt.Errorf("layer %s: effectiveTo before effectiveFrom", pl.ID)
	}
	if len(pl.Windows) == 0 {
		return fmt.Errorf("layer %s: no windows", pl.ID)
	}
	for _, w := range pl.Windows {
		if err := w.validate(); err != nil {
			return fmt.Errorf("layer %s: %w", pl.ID, err)
		}
	}
	return nil
}

// EffectiveDuring reports whether the layer's validity range overlaps
// [start, end). An open EffectiveTo is treated as unbounded.
func (pl *PolicyLayer) EffectiveDuring(start, end time.Time) bool {
	if !pl.EffectiveFrom.Before(end) {
		return false
	}
	if pl.EffectiveTo != nil && !pl.EffectiveTo.After(start) {
		return false
	}
	return true
}

// WindowFor returns the first window covering the local time, or nil.
// Windows are ordered; the first match wins.
func (pl *PolicyLayer) WindowFor(lt LocalTime) *TimeWindow {
	for i := range pl.Windows {
		if pl.Windows[i].Covers(lt) {
			return &pl.Windows[i]
		}
	}
	return nil
}

// IsSurge reports whether this layer contributes a multiplier instead of
// a price. Surge layers never win a segment by themselves.
func (pl *PolicyLayer) IsSurge() bool { return pl.Kind == KindSurgeMultiplier }
