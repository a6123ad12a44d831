package engine_test

import (
	"testing"
	"time"

	"github.com/warp/rate-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func capacitySheet(id string, level engine.Level, entityID string, priority, min, max, def, alloc int) engine.PolicyLayer {
	return engine.PolicyLayer{
		ID:            engine.LayerID(id),
		Name:          id,
		Scope:         engine.Scope{Level: level, EntityID: engine.EntityID(entityID)},
		Category:      engine.CategoryCapacity,
		Kind:          engine.KindTimeWindow,
		Priority:      priority,
		TieBreak:      engine.TieBreakPriority,
		EffectiveFrom: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Windows: []engine.TimeWindow{{
			Start:    0,
			End:      engine.EndOfDay,
			Capacity: &engine.CapacitySettings{Min: min, Max: max, Default: def, Allocated: alloc},
		}},
		Active:         true,
		ApprovalStatus: engine.StatusApproved,
	}
}

// capacityChain builds acct > site > venue with account defaults
// {0,100,50,20} and Monday hours 08:00-close.
func capacityChain(close string, split *engine.AllocationSplit) engine.Chain {
	account := node("acct", engine.LevelAccount, "")
	account.DefaultCapacity = &engine.CapacitySettings{Min: 0, Max: 100, Default: 50, Allocated: 20}
	account.AllocationSplit = split
	account.OperatingHours = &engine.OperatingHours{
		Weekly: map[time.Weekday][]engine.HourSlot{
			time.Monday: {slot("08:00", close)},
		},
	}
	return engine.Chain{
		account,
		node("site", engine.LevelSite, "acct"),
		node("venue", engine.LevelVenueEvent, "site"),
	}
}

func resolveCapacity(t *testing.T, chain engine.Chain, layers []engine.PolicyLayer, startHour, endHour int) engine.CapacityResult {
	t.Helper()
	segments := segmentsFor(t, startHour, endHour)
	hours := engine.MergeOperatingHours(chain)
	return engine.ResolveCapacity(chain, layers, segments, hours)
}

// =============================================================================
// CAPACITY RESOLUTION TESTS
// =============================================================================

func TestResolveCapacity_ClosedSegmentsAreUnavailable(t *testing.T) {
	// GIVEN: Monday hours end at 12:00 and a booking runs 10:00-13:00
	chain := capacityChain("12:00", nil)

	result := resolveCapacity(t, chain, nil, 10, 13)

	// THEN: The 12:00 segment is unavailable but keeps max for display
	if len(result.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(result.Lines))
	}
	last := result.Lines[2]
	if last.Available {
		t.Errorf("segment past closing must be unavailable")
	}
	if last.Max != 100 {
		t.Errorf("unavailable segment keeps the default max for display, got %d", last.Max)
	}
	if last.Allocated != 0 {
		t.Errorf("unavailable segment must carry no allocatable capacity")
	}

	// AND: Metadata and breakdown reflect the split
	if result.Metadata.AvailableHours != 2 || result.Metadata.UnavailableHours != 1 {
		t.Errorf("expected 2 available / 1 unavailable hours, got %+v", result.Metadata)
	}
	if result.Unallocated.Unavailable != 100 {
		t.Errorf("expected 100 unavailable capacity-hours, got %v", result.Unallocated.Unavailable)
	}
}

func TestResolveCapacity_DefaultFallbackFromAncestor(t *testing.T) {
	// GIVEN: Open hours and no capacity sheets at all
	chain := capacityChain("22:00", nil)

	result := resolveCapacity(t, chain, nil, 10, 12)

	for i, line := range result.Lines {
		if line.Max != 100 || line.Default != 50 || line.Allocated != 20 {
			t.Errorf("line %d: expected account defaults, got %+v", i, line)
		}
		if line.SheetID != "" {
			t.Errorf("line %d: fallback must leave sheet id empty", i)
		}
	}
	if !result.Log[0].UsedDefaultRate || result.Log[0].DefaultRateSource != "acct" {
		t.Errorf("expected fallback attributed to acct in the log")
	}
}

func TestResolveCapacity_SheetWinsOverDefault(t *testing.T) {
	// GIVEN: Competing site sheets with different priorities
	chain := capacityChain("22:00", nil)
	layers := []engine.PolicyLayer{
		capacitySheet("low", engine.LevelSite, "site", 5, 10, 120, 80, 30),
		capacitySheet("high", engine.LevelSite, "site", 10, 10, 150, 100, 40),
	}

	result := resolveCapacity(t, chain, layers, 10, 12)

	for i, line := range result.Lines {
		if line.SheetID != "high" {
			t.Errorf("line %d: expected the higher-priority sheet, got %s", i, line.SheetID)
		}
		if line.Max != 150 || line.Allocated != 40 {
			t.Errorf("line %d: expected the winning sheet's bounds, got %+v", i, line)
		}
	}
}

func TestResolveCapacity_HighestValueComparesMaxCapacity(t *testing.T) {
	// GIVEN: The top-priority sheet declares highest_value and a
	// lower-priority sheet has a larger max
	chain := capacityChain("22:00", nil)
	small := capacitySheet("small", engine.LevelSite, "site", 10, 0, 80, 60, 10)
	small.TieBreak = engine.TieBreakHighestValue
	big := capacitySheet("big", engine.LevelSite, "site", 1, 0, 200, 150, 50)

	result := resolveCapacity(t, chain, []engine.PolicyLayer{small, big}, 10, 11)

	if result.Lines[0].SheetID != "big" {
		t.Errorf("highest_value must pick the larger max, got %s", result.Lines[0].SheetID)
	}
}

// =============================================================================
// AGGREGATION TESTS
// =============================================================================

func TestResolveCapacity_StaticSplitDistributesAllocated(t *testing.T) {
	// GIVEN: A stored 50/30/20 split and a sheet allocating 40 over 2h
	split := &engine.AllocationSplit{Transient: 0.5, Events: 0.3, Reserved: 0.2}
	chain := capacityChain("22:00", split)
	layers := []engine.PolicyLayer{
		capacitySheet("sheet", engine.LevelSite, "site", 10, 10, 150, 100, 40),
	}

	result := resolveCapacity(t, chain, layers, 10, 12)

	// THEN: 80 allocated capacity-hours distribute by the ratio
	if result.Allocated.Transient != 40 || result.Allocated.Events != 24 || result.Allocated.Reserved != 16 {
		t.Errorf("expected 40/24/16 split, got %+v", result.Allocated)
	}
	// AND: 110 free per hour land in readyToUse
	if result.Unallocated.ReadyToUse != 220 {
		t.Errorf("expected 220 ready-to-use capacity-hours, got %v", result.Unallocated.ReadyToUse)
	}
}

func TestResolveCapacity_DerivedSplitCountsEventScopedAsEvents(t *testing.T) {
	// GIVEN: No stored split; the winning sheet is venue_event scoped
	chain := capacityChain("22:00", nil)
	layers := []engine.PolicyLayer{
		capacitySheet("event-sheet", engine.LevelVenueEvent, "venue", 10, 0, 60, 40, 25),
	}

	result := resolveCapacity(t, chain, layers, 10, 11)

	if result.Allocated.Events != 25 {
		t.Errorf("expected event-scoped allocation under events, got %+v", result.Allocated)
	}
	if result.Allocated.Transient != 0 {
		t.Errorf("expected no transient allocation, got %v", result.Allocated.Transient)
	}
}

func TestResolveCapacity_PercentagesSumToExactly100(t *testing.T) {
	// GIVEN: A mix of open and closed segments forcing rounding
	chain := capacityChain("12:00", nil)

	result := resolveCapacity(t, chain, nil, 10, 13)

	sum := 0
	for _, v := range result.Percentages {
		if v < 0 {
			t.Errorf("percentage must not be negative: %+v", result.Percentages)
		}
		sum += v
	}
	if sum != 100 {
		t.Errorf("percentages must sum to exactly 100, got %d (%+v)", sum, result.Percentages)
	}
	for _, key := range []string{"transient", "events", "reserved", "unavailable", "readyToUse"} {
		if _, ok := result.Percentages[key]; !ok {
			t.Errorf("missing percentage bucket %q", key)
		}
	}
}
