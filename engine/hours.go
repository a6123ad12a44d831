/*
hours.go - Operating hours merging over the ancestor chain

PURPOSE:
  Resolves the effective open/closed schedule and blackout calendar for
  an entity by walking its ancestor chain with override/inherit rules.
  The capacity aggregator consults the merged result to zero out capacity
  during closures and blackouts.

MERGE RULES:
  Weekly schedule, per day-of-week:
    - A node that leaves a day undefined inherits the running value
    - A node that defines a day (even as an empty slot list = closed)
      overwrites it and records itself as the source
    - Nearest definition wins: walking root to leaf, later definitions
      replace earlier ones
    - A day no node defines is closed
  Blackouts:
    - Unioned across ALL ancestors
    - A descendant can cancel an inherited blackout by id without
      deleting the ancestor's record; cancelled entries are removed
    - A blackout flagged cancelled on its own record never applies

SEE ALSO:
  - capacity.go: Uses the merged result for availability
*/
package engine

import "time"

// =============================================================================
// OPERATING HOURS - As configured on a single node
// =============================================================================

// HourSlot is one open interval of a day, in local time.
type HourSlot struct {
	Open  LocalTime
	Close LocalTime
}

func (s HourSlot) Covers(lt LocalTime) bool { return lt >= s.Open && lt < s.Close }

type BlackoutType string

const (
	BlackoutFullDay BlackoutType = "full_day"
	BlackoutPartial BlackoutType = "partial"
)

// Blackout is a calendar exception forcing unavailability regardless of
// the weekly schedule.
type Blackout struct {
	ID   string
	Name string
	Date time.Time
	Type BlackoutType

	// Slot restricts a partial blackout to part of the day.
	Slot *HourSlot

	RecurringYearly bool
	Cancelled       bool
}

// AppliesOn reports whether the blackout is in force on the local date.
func (b Blackout) AppliesOn(date time.Time) bool {
	if b.Cancelled {
		return false
	}
	if b.RecurringYearly {
		return b.Date.Month() == date.Month() && b.Date.Day() == date.Day()
	}
	return b.Date.Year() == date.Year() && b.Date.Month() == date.Month() && b.Date.Day() == date.Day()
}

// Blocks reports whether the blackout makes the given local time
// unavailable on its date.
func (b Blackout) Blocks(lt LocalTime) bool {
	if b.Type == BlackoutPartial && b.Slot != nil {
		return b.Slot.Covers(lt)
	}
	return true
}

// OperatingHours is the calendar configuration of a single node.
// Weekly uses map presence to distinguish "undefined, inherit" (key
// absent) from "closed" (key present with empty slice).
type OperatingHours struct {
	Weekly    map[time.Weekday][]HourSlot
	Blackouts []Blackout

	// CancelBlackoutIDs removes blackouts inherited from ancestors by id,
	// for this node and its descendants. Ids of blackouts defined on this
	// node or deeper have no effect.
	CancelBlackoutIDs []string
}

// =============================================================================
// RESOLVED HOURS - Result of merging the chain
// =============================================================================

// ResolvedDay is the effective schedule for one day-of-week, with the
// node that defined it.
type ResolvedDay struct {
	Slots      []HourSlot
	SourceName string
	Inherited  bool
	Defined    bool
}

// Closed reports whether the day has no open slots (either defined as
// closed or never defined anywhere in the chain).
func (d ResolvedDay) Closed() bool { return len(d.Slots) == 0 }

// ResolvedBlackout is a blackout with provenance.
type ResolvedBlackout struct {
	Blackout
	SourceName string
	Inherited  bool
}

// ResolvedHours is the effective calendar for an entity after merging
// its ancestor chain.
type ResolvedHours struct {
	Days      map[time.Weekday]ResolvedDay
	Blackouts []ResolvedBlackout
}

// MergeOperatingHours walks the chain root to leaf applying the merge
// rules described in the package comment.
func MergeOperatingHours(chain Chain) ResolvedHours {
	resolved := ResolvedHours{Days: make(map[time.Weekday]ResolvedDay)}
	leafIdx := len(chain) - 1

	// Deepest chain position that cancels each blackout id. A blackout is
	// removed only when a strictly more specific node cancels it; a node
	// cannot cancel its own or a descendant's blackout.
	deepestCancel := make(map[string]int)
	for i, node := range chain {
		if node.OperatingHours == nil {
			continue
		}
		for _, id := range node.OperatingHours.CancelBlackoutIDs {
			deepestCancel[id] = i
		}
	}

	for i, node := range chain {
		oh := node.OperatingHours
		if oh == nil {
			continue
		}

		for day, slots := range oh.Weekly {
			resolved.Days[day] = ResolvedDay{
				Slots:      slots,
				SourceName: node.Name,
				Inherited:  i != leafIdx,
				Defined:    true,
			}
		}

		for _, b := range oh.Blackouts {
			if b.Cancelled {
				continue
			}
			if at, ok := deepestCancel[b.ID]; ok && at > i {
				continue
			}
			resolved.Blackouts = append(resolved.Blackouts, ResolvedBlackout{
				Blackout:   b,
				SourceName: node.Name,
				Inherited:  i != leafIdx,
			})
		}
	}

	return resolved
}

// DayFor returns the effective schedule for a weekday. Days no node
// defined resolve as closed.
func (rh ResolvedHours) DayFor(day time.Weekday) ResolvedDay {
	if d, ok := rh.Days[day]; ok {
		return d
	}
	return ResolvedDay{}
}

// BlackoutAt returns the first blackout blocking the given local
// date/time, or nil.
func (rh ResolvedHours) BlackoutAt(date time.Time, lt LocalTime) *ResolvedBlackout {
	for i := range rh.Blackouts {
		b := &rh.Blackouts[i]
		if b.AppliesOn(date) && b.Blocks(lt) {
			return b
		}
	}
	return nil
}

// OpenAt reports whether the entity is open at the given local
// date/time: the day's schedule must cover it and no blackout may block it.
func (rh ResolvedHours) OpenAt(date time.Time, lt LocalTime) bool {
	day := rh.DayFor(date.Weekday())
	if day.Closed() {
		return false
	}
	covered := false
	for _, slot := range day.Slots {
		if slot.Covers(lt) {
			covered = true
			break
		}
	}
	if !covered {
		return false
	}
	return rh.BlackoutAt(date, lt) == nil
}
