/*
capacity.go - Per-segment capacity aggregation

PURPOSE:
  Mirrors the pricing resolver but resolves capacity bounds per segment
  from capacity-sheet layers, with one addition: the merged operating
  hours are consulted first. A closed or blacked-out segment is forced
  unavailable - the ancestor's configured max is kept for display, with
  zero allocatable capacity - overriding any capacity-sheet match.

ALLOCATION BREAKDOWN:
  The aggregate result exposes capacity-hours split into
    allocated:   transient / events / reserved
    unallocated: unavailable / readyToUse
  either from a stored static split on the chain or derived from segment
  sources (event-scoped capacity counts as "events", all other matched
  layers count as "transient"). Percentages are normalized to sum to 100
  by assigning any rounding remainder to readyToUse.
*/
package engine

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// CAPACITY LINE - Per-segment capacity result
// =============================================================================

// CapacityLine is the resolved capacity for one segment.
type CapacityLine struct {
	Start time.Time
	End   time.Time
	Hours float64

	Min       int
	Max       int
	Default   int
	Allocated int

	Available bool

	// SheetID is empty when the default-capacity fallback applied or the
	// segment was unavailable.
	SheetID     LayerID
	SheetName   string
	SheetLevel  Level
	AppliedRule string
}

// AllocatedBreakdown splits allocated capacity-hours by origin.
type AllocatedBreakdown struct {
	Transient float64
	Events    float64
	Reserved  float64
}

// UnallocatedBreakdown splits unallocated capacity-hours.
type UnallocatedBreakdown struct {
	Unavailable float64
	ReadyToUse  float64
}

// CapacityMetadata summarizes availability over the whole interval.
type CapacityMetadata struct {
	TotalHours       float64
	AvailableHours   float64
	UnavailableHours float64
}

// CapacityResult is the aggregate capacity answer for a query.
type CapacityResult struct {
	Lines       []CapacityLine
	Allocated   AllocatedBreakdown
	Unallocated UnallocatedBreakdown

	// Percentages maps transient/events/reserved/unavailable/readyToUse
	// to integer percentages summing to exactly 100.
	Percentages map[string]int

	Metadata CapacityMetadata
	Log      DecisionLog
}

// ResolveCapacity resolves every segment against the capacity-category
// layers, folding in the merged operating hours. Never fatal: segments
// with no capacity sheet fall back to the ancestor default, and segments
// with neither resolve to zero capacity.
func ResolveCapacity(chain Chain, layers []PolicyLayer, segments []Segment, hours ResolvedHours) CapacityResult {
	result := CapacityResult{
		Lines:       make([]CapacityLine, 0, len(segments)),
		Percentages: make(map[string]int),
		Log:         make(DecisionLog, 0, len(segments)),
	}

	defaults, defaultsSource := chain.DefaultCapacity()

	for _, seg := range segments {
		line, decision := resolveSegmentCapacity(chain, layers, seg, hours, defaults, defaultsSource)
		result.Lines = append(result.Lines, line)
		result.Log = append(result.Log, decision)
	}

	aggregate(&result, chain.StaticSplit())
	return result
}

func resolveSegmentCapacity(chain Chain, layers []PolicyLayer, seg Segment, hours ResolvedHours, defaults *CapacitySettings, defaultsSource *HierarchyNode) (CapacityLine, SegmentDecision) {
	decision := SegmentDecision{
		SegmentStart: seg.Start,
		SegmentEnd:   seg.End,
		LocalTime:    seg.LocalTime,
	}

	line := CapacityLine{
		Start: seg.Start,
		End:   seg.End,
		Hours: seg.DurationHours,
	}

	// Operating hours dominate: closed or blacked-out segments are
	// unavailable regardless of any capacity sheet.
	if !hours.OpenAt(seg.LocalDate, seg.LocalTime) {
		if defaults != nil {
			line.Max = defaults.Max // kept for display only
		}
		line.Available = false
		if b := hours.BlackoutAt(seg.LocalDate, seg.LocalTime); b != nil {
			line.AppliedRule = fmt.Sprintf("unavailable: blackout %q from %s", b.Name, b.SourceName)
		} else {
			line.AppliedRule = fmt.Sprintf("unavailable: closed on %s", seg.LocalDate.Weekday())
		}
		decision.AppliedRule = line.AppliedRule
		return line, decision
	}

	line.Available = true
	matched, _ := matchSegment(layers, seg, &decision)

	switch len(matched) {
	case 0:
		if defaults != nil {
			line.Min = defaults.Min
			line.Max = defaults.Max
			line.Default = defaults.Default
			line.Allocated = defaults.Allocated
			line.AppliedRule = fmt.Sprintf("default capacity from %s %q", defaultsSource.Level, defaultsSource.Name)
			decision.UsedDefaultRate = true
			decision.DefaultRateSource = defaultsSource.Name
		} else {
			line.AppliedRule = "no capacity sheet and no default capacity"
		}
	default:
		winner := pickCapacityWinner(matched, &decision)
		caps := winner.window.Capacity
		if caps == nil {
			caps = defaults
		}
		if caps != nil {
			line.Min = caps.Min
			line.Max = caps.Max
			line.Default = caps.Default
			line.Allocated = caps.Allocated
		}
		line.SheetID = winner.layer.ID
		line.SheetName = winner.layer.Name
		line.SheetLevel = winner.layer.Scope.Level
		line.AppliedRule = fmt.Sprintf("%s capacity sheet %q window %s-%s (priority %d)",
			winner.layer.Scope.Level, winner.layer.Name,
			winner.window.Start, winner.window.End, winner.layer.Priority)
		decision.WinnerID = winner.layer.ID
	}

	decision.AppliedRule = line.AppliedRule
	return line, decision
}

// pickCapacityWinner mirrors the pricing winner selection, comparing
// window max capacity for the value tie-breaks.
func pickCapacityWinner(matched []matchedLayer, decision *SegmentDecision) matchedLayer {
	if len(matched) == 1 {
		return matched[0]
	}

	sortByLevelThenPriority(matched)
	top := matched[0]

	winner := top
	switch top.layer.TieBreak {
	case TieBreakHighestValue, TieBreakLowestValue:
		highest := top.layer.TieBreak == TieBreakHighestValue
		for _, m := range matched[1:] {
			if highest && capacityMax(m) > capacityMax(winner) {
				winner = m
			}
			if !highest && capacityMax(m) < capacityMax(winner) {
				winner = m
			}
		}
	}

	markLosers(matched, winner, top.layer.TieBreak, decision)
	return winner
}

func capacityMax(m matchedLayer) int {
	if m.window.Capacity == nil {
		return 0
	}
	return m.window.Capacity.Max
}

// aggregate computes the allocation breakdown and integer percentages
// over the whole interval.
func aggregate(result *CapacityResult, static *AllocationSplit) {
	for _, line := range result.Lines {
		result.Metadata.TotalHours += line.Hours
		if !line.Available {
			result.Metadata.UnavailableHours += line.Hours
			result.Unallocated.Unavailable += float64(line.Max) * line.Hours
			continue
		}
		result.Metadata.AvailableHours += line.Hours

		allocated := float64(line.Allocated) * line.Hours
		free := float64(line.Max-line.Allocated) * line.Hours
		if free < 0 {
			free = 0
		}
		result.Unallocated.ReadyToUse += free

		if static != nil {
			// Stored split: distribute allocated capacity-hours by the
			// configured ratio.
			total := static.Transient + static.Events + static.Reserved
			if total > 0 {
				result.Allocated.Transient += allocated * static.Transient / total
				result.Allocated.Events += allocated * static.Events / total
				result.Allocated.Reserved += allocated * static.Reserved / total
			}
			continue
		}

		// Derived split: event-scoped sheets count as "events", every
		// other source as "transient".
		if line.SheetLevel == LevelVenueEvent {
			result.Allocated.Events += allocated
		} else {
			result.Allocated.Transient += allocated
		}
	}

	total := result.Allocated.Transient + result.Allocated.Events + result.Allocated.Reserved +
		result.Unallocated.Unavailable + result.Unallocated.ReadyToUse
	if total <= 0 {
		result.Percentages = map[string]int{
			"transient": 0, "events": 0, "reserved": 0, "unavailable": 0, "readyToUse": 0,
		}
		return
	}

	pct := func(v float64) int { return int(math.Round(v / total * 100)) }
	result.Percentages["transient"] = pct(result.Allocated.Transient)
	result.Percentages["events"] = pct(result.Allocated.Events)
	result.Percentages["reserved"] = pct(result.Allocated.Reserved)
	result.Percentages["unavailable"] = pct(result.Unallocated.Unavailable)

	// Rounding remainder lands on readyToUse so the five buckets always
	// sum to exactly 100.
	used := result.Percentages["transient"] + result.Percentages["events"] +
		result.Percentages["reserved"] + result.Percentages["unavailable"]
	result.Percentages["readyToUse"] = 100 - used
}
