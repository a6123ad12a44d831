package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/rate-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fourLevelChain builds acct > site > sub > venue. The account carries
// the default hourly rate unless rate is empty.
func fourLevelChain(defaultRate string) engine.Chain {
	account := node("acct", engine.LevelAccount, "")
	if defaultRate != "" {
		r := dec(defaultRate)
		account.DefaultHourlyRate = &r
	}
	return engine.Chain{
		account,
		node("site", engine.LevelSite, "acct"),
		node("sub", engine.LevelSubarea, "site"),
		node("venue", engine.LevelVenueEvent, "sub"),
	}
}

func rateLayer(id string, level engine.Level, entityID string, priority int, windows ...engine.TimeWindow) engine.PolicyLayer {
	return engine.PolicyLayer{
		ID:             engine.LayerID(id),
		Name:           id,
		Scope:          engine.Scope{Level: level, EntityID: engine.EntityID(entityID)},
		Category:       engine.CategoryRate,
		Kind:           engine.KindTimeWindow,
		Priority:       priority,
		TieBreak:       engine.TieBreakPriority,
		EffectiveFrom:  time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Windows:        windows,
		Active:         true,
		ApprovalStatus: engine.StatusApproved,
	}
}

func allDay(rate string) engine.TimeWindow {
	return engine.TimeWindow{Start: 0, End: engine.EndOfDay, Value: dec(rate)}
}

func window(start, end, rate string) engine.TimeWindow {
	return engine.TimeWindow{Start: engine.MustLocalTime(start), End: engine.MustLocalTime(end), Value: dec(rate)}
}

func surgeLayer(id string, level engine.Level, entityID string, priority int, multiplier string) engine.PolicyLayer {
	l := rateLayer(id, level, entityID, priority, allDay(multiplier))
	l.Kind = engine.KindSurgeMultiplier
	return l
}

// segmentsFor splits one booking on March 2 2026 (a Monday) in UTC.
func segmentsFor(t *testing.T, startHour, endHour int) []engine.Segment {
	t.Helper()
	start := time.Date(2026, time.March, 2, startHour, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 2, endHour, 0, 0, 0, time.UTC)
	segments, err := engine.SplitHourly(start, end, time.UTC)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	return segments
}

// =============================================================================
// WINNER SELECTION TESTS
// =============================================================================

func TestResolvePrices_LevelDominatesPriority(t *testing.T) {
	// GIVEN: A site layer with a huge priority and a venue layer with a
	// tiny one, both covering the whole day
	chain := fourLevelChain("")
	layers := []engine.PolicyLayer{
		rateLayer("site-sheet", engine.LevelSite, "site", 999, allDay("50")),
		rateLayer("venue-sheet", engine.LevelVenueEvent, "venue", 1, allDay("80")),
	}

	// WHEN: Resolving one hour
	lines, log, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The deeper level wins regardless of priority
	if lines[0].RatesheetID != "venue-sheet" {
		t.Errorf("expected venue-sheet to win, got %s", lines[0].RatesheetID)
	}
	if !lines[0].PricePerHour.Equal(dec("80")) {
		t.Errorf("expected 80/h, got %s", lines[0].PricePerHour)
	}

	// AND: The loser is recorded with the level rejection reason
	var found bool
	for _, c := range log[0].Candidates {
		if c.LayerID == "site-sheet" {
			found = true
			if !c.Rejected || c.Reason != engine.RejectedLowerLevel {
				t.Errorf("expected site-sheet rejected for lower level, got %+v", c)
			}
		}
	}
	if !found {
		t.Errorf("site-sheet missing from decision log")
	}
}

func TestResolvePrices_PriorityBreaksTiesWithinLevel(t *testing.T) {
	// GIVEN: Two site layers, same level, different priorities
	chain := fourLevelChain("")
	layers := []engine.PolicyLayer{
		rateLayer("low", engine.LevelSite, "site", 5, allDay("50")),
		rateLayer("high", engine.LevelSite, "site", 20, allDay("65")),
	}

	lines, log, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lines[0].RatesheetID != "high" {
		t.Errorf("expected the higher priority layer to win, got %s", lines[0].RatesheetID)
	}
	for _, c := range log[0].Candidates {
		if c.LayerID == "low" && c.Reason != engine.RejectedLowerPriority {
			t.Errorf("expected low rejected for lower priority, got %s", c.Reason)
		}
	}
}

func TestResolvePrices_ValueTieBreaksConsiderAllCandidates(t *testing.T) {
	// GIVEN: The top candidate declares lowest_value, and a cheaper rate
	// exists at a lower hierarchy level
	chain := fourLevelChain("")
	top := rateLayer("venue-sheet", engine.LevelVenueEvent, "venue", 10, allDay("90"))
	top.TieBreak = engine.TieBreakLowestValue
	layers := []engine.PolicyLayer{
		top,
		rateLayer("site-cheap", engine.LevelSite, "site", 1, allDay("40")),
	}

	lines, _, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The lowest value wins even from a shallower level
	if lines[0].RatesheetID != "site-cheap" {
		t.Errorf("expected site-cheap via lowest_value, got %s", lines[0].RatesheetID)
	}

	// WHEN: The top candidate declares highest_value instead
	top.TieBreak = engine.TieBreakHighestValue
	lines, _, err = engine.ResolvePrices(chain, []engine.PolicyLayer{top, layers[1]}, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines[0].RatesheetID != "venue-sheet" {
		t.Errorf("expected venue-sheet via highest_value, got %s", lines[0].RatesheetID)
	}
}

func TestResolvePrices_WindowsAreHalfOpen(t *testing.T) {
	// GIVEN: A peak window ending at 17:00 and an off-peak window from it
	chain := fourLevelChain("")
	layers := []engine.PolicyLayer{
		rateLayer("sheet", engine.LevelSite, "site", 10,
			window("09:00", "17:00", "75"),
			window("17:00", "22:00", "50")),
	}

	// WHEN: Resolving 16:00-18:00
	lines, _, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 16, 18))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The 17:00 segment belongs to the off-peak window
	if !lines[0].PricePerHour.Equal(dec("75")) {
		t.Errorf("16:00 segment: expected 75, got %s", lines[0].PricePerHour)
	}
	if !lines[1].PricePerHour.Equal(dec("50")) {
		t.Errorf("17:00 segment: expected 50, got %s", lines[1].PricePerHour)
	}
}

// =============================================================================
// FALLBACK AND FAILURE TESTS
// =============================================================================

func TestResolvePrices_DefaultRateFallback(t *testing.T) {
	// GIVEN: No layer covers the segment, the account has a default rate
	chain := fourLevelChain("40")
	layers := []engine.PolicyLayer{
		rateLayer("evening-only", engine.LevelSite, "site", 10, window("18:00", "22:00", "60")),
	}

	lines, log, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !lines[0].PricePerHour.Equal(dec("40")) {
		t.Errorf("expected the account default 40, got %s", lines[0].PricePerHour)
	}
	if lines[0].RatesheetID != "" {
		t.Errorf("default fallback must leave ratesheet id empty")
	}
	if !log[0].UsedDefaultRate || log[0].DefaultRateSource != "acct" {
		t.Errorf("expected default rate attributed to acct, got %+v", log[0])
	}
}

func TestResolvePrices_NoApplicablePolicyIsFatal(t *testing.T) {
	// GIVEN: A 3-hour booking where only the first two hours are covered
	// and no ancestor defines a default rate
	chain := fourLevelChain("")
	layers := []engine.PolicyLayer{
		rateLayer("partial", engine.LevelSite, "site", 10, window("10:00", "12:00", "60")),
	}

	// WHEN: Resolving 10:00-13:00
	lines, log, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 13))

	// THEN: The whole query fails, no partial lines
	if err == nil {
		t.Fatal("expected NoApplicablePolicy")
	}
	if lines != nil {
		t.Errorf("a fatal segment must not produce partial lines")
	}
	if !errors.Is(err, engine.ErrNoApplicablePolicy) {
		t.Errorf("expected ErrNoApplicablePolicy, got %v", err)
	}

	// AND: The error carries the log accumulated up to the failing segment
	var napErr *engine.NoApplicablePolicyError
	if !errors.As(err, &napErr) {
		t.Fatalf("expected *NoApplicablePolicyError, got %T", err)
	}
	if napErr.EntityID != "venue" {
		t.Errorf("expected the leaf entity on the error, got %s", napErr.EntityID)
	}
	if len(napErr.Log) != 3 || len(log) != 3 {
		t.Errorf("expected 3 log entries (2 resolved + failing), got %d", len(napErr.Log))
	}
	wantStart := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	if !napErr.SegmentStart.Equal(wantStart) {
		t.Errorf("expected failing segment at 12:00, got %s", napErr.SegmentStart)
	}
}

func TestResolvePrices_InvalidRecurrenceExcludesLayerNonFatally(t *testing.T) {
	// GIVEN: A layer with a malformed weekly recurrence next to a healthy
	// fallback layer
	chain := fourLevelChain("")
	broken := rateLayer("broken", engine.LevelVenueEvent, "venue", 10, allDay("99"))
	broken.Recurrence = engine.Recurrence{Kind: engine.RecurWeekly} // no weekdays
	layers := []engine.PolicyLayer{
		broken,
		rateLayer("healthy", engine.LevelSite, "site", 10, allDay("55")),
	}

	lines, log, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("a malformed recurrence must not fail the query: %v", err)
	}

	// THEN: The healthy layer wins and the broken one is logged
	if lines[0].RatesheetID != "healthy" {
		t.Errorf("expected healthy to win, got %s", lines[0].RatesheetID)
	}
	var found bool
	for _, c := range log[0].Candidates {
		if c.LayerID == "broken" {
			found = true
			if c.Reason != engine.RejectedBadRecurrence {
				t.Errorf("expected invalid_recurrence reason, got %s", c.Reason)
			}
		}
	}
	if !found {
		t.Errorf("broken layer missing from decision log")
	}
}

func TestResolvePrices_WeeklyRecurrenceFiltersByWeekday(t *testing.T) {
	// GIVEN: A weekend-only sheet and a booking on a Monday
	chain := fourLevelChain("40")
	weekend := rateLayer("weekend", engine.LevelSite, "site", 10, allDay("95"))
	weekend.Recurrence = engine.Recurrence{
		Kind:     engine.RecurWeekly,
		Weekdays: []time.Weekday{time.Saturday, time.Sunday},
	}

	lines, log, err := engine.ResolvePrices(chain, []engine.PolicyLayer{weekend}, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The sheet does not apply; the default takes over
	if !lines[0].PricePerHour.Equal(dec("40")) {
		t.Errorf("expected default 40 on a Monday, got %s", lines[0].PricePerHour)
	}
	if log[0].Candidates[0].Reason != engine.RejectedNotRecurring {
		t.Errorf("expected recurrence_not_matching, got %s", log[0].Candidates[0].Reason)
	}
}

// =============================================================================
// SURGE MULTIPLIER TESTS
// =============================================================================

func TestResolvePrices_SurgeMultipliesTheWinner(t *testing.T) {
	// GIVEN: A site rate and a venue surge layer
	chain := fourLevelChain("")
	layers := []engine.PolicyLayer{
		rateLayer("base", engine.LevelSite, "site", 10, allDay("50")),
		surgeLayer("surge", engine.LevelVenueEvent, "venue", 10001, "1.5"),
	}

	lines, log, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The surge never wins alone; it scales the winning price
	if lines[0].RatesheetID != "base" {
		t.Errorf("surge layer must not win a segment, got %s", lines[0].RatesheetID)
	}
	if !lines[0].PricePerHour.Equal(dec("75")) {
		t.Errorf("expected 50 x 1.5 = 75, got %s", lines[0].PricePerHour)
	}
	if log[0].SurgeLayerID != "surge" || log[0].SurgeMultiplier == nil {
		t.Errorf("decision log must record the applied surge, got %+v", log[0])
	}
}

func TestResolvePrices_SurgeAppliesOnTopOfDefaultRate(t *testing.T) {
	// GIVEN: Only a surge layer matches; pricing falls back to the default
	chain := fourLevelChain("40")
	layers := []engine.PolicyLayer{
		surgeLayer("surge", engine.LevelVenueEvent, "venue", 10001, "2"),
	}

	lines, _, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !lines[0].PricePerHour.Equal(dec("80")) {
		t.Errorf("expected 40 x 2 = 80, got %s", lines[0].PricePerHour)
	}
}

func TestResolvePrices_HighestRankedSurgeWins(t *testing.T) {
	// GIVEN: Surge layers at two levels
	chain := fourLevelChain("")
	layers := []engine.PolicyLayer{
		rateLayer("base", engine.LevelSite, "site", 10, allDay("100")),
		surgeLayer("site-surge", engine.LevelSite, "site", 10005, "1.2"),
		surgeLayer("venue-surge", engine.LevelVenueEvent, "venue", 10001, "1.4"),
	}

	lines, log, err := engine.ResolvePrices(chain, layers, segmentsFor(t, 10, 11))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The deeper-level surge applies
	if log[0].SurgeLayerID != "venue-surge" {
		t.Errorf("expected venue-surge to apply, got %s", log[0].SurgeLayerID)
	}
	if !lines[0].PricePerHour.Equal(dec("140")) {
		t.Errorf("expected 100 x 1.4 = 140, got %s", lines[0].PricePerHour)
	}
}
