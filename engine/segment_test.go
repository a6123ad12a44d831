package engine_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/warp/rate-engine/engine"
)

// =============================================================================
// SEGMENTATION TESTS
// =============================================================================

func TestSplitHourly_AlignedInterval(t *testing.T) {
	// GIVEN: A 3-hour booking starting exactly on an hour boundary
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	// WHEN: Splitting into hourly segments
	segments, err := engine.SplitHourly(start, end, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Three whole-hour segments with the right local times
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if seg.DurationHours != 1.0 {
			t.Errorf("segment %d: expected 1.0h, got %v", i, seg.DurationHours)
		}
	}
	if segments[0].LocalTime != engine.MustLocalTime("10:00") {
		t.Errorf("expected first segment local time 10:00, got %s", segments[0].LocalTime)
	}
	if segments[2].LocalTime != engine.MustLocalTime("12:00") {
		t.Errorf("expected last segment local time 12:00, got %s", segments[2].LocalTime)
	}
}

func TestSplitHourly_FractionalBoundaries(t *testing.T) {
	// GIVEN: A booking from 10:30 to 13:00
	start := time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 2, 13, 0, 0, 0, time.UTC)

	// WHEN: Splitting into hourly segments
	segments, err := engine.SplitHourly(start, end, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: 0.5h boundary segment then two whole hours
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	want := []float64{0.5, 1.0, 1.0}
	for i, seg := range segments {
		if seg.DurationHours != want[i] {
			t.Errorf("segment %d: expected %vh, got %v", i, want[i], seg.DurationHours)
		}
	}
	if segments[0].LocalTime != engine.MustLocalTime("10:30") {
		t.Errorf("expected first segment local time 10:30, got %s", segments[0].LocalTime)
	}
}

func TestSplitHourly_SubHourInterval(t *testing.T) {
	// GIVEN: A booking shorter than an hour inside one hour
	start := time.Date(2026, time.March, 2, 10, 15, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 2, 10, 45, 0, 0, time.UTC)

	segments, err := engine.SplitHourly(start, end, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].DurationHours != 0.5 {
		t.Errorf("expected 0.5h, got %v", segments[0].DurationHours)
	}
}

func TestSplitHourly_PartitionsExactly(t *testing.T) {
	// GIVEN: An awkward interval with minute-level boundaries
	start := time.Date(2026, time.July, 10, 8, 17, 0, 0, time.UTC)
	end := time.Date(2026, time.July, 10, 14, 41, 0, 0, time.UTC)

	segments, err := engine.SplitHourly(start, end, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: Segments tile the interval with no gaps or overlaps
	if !segments[0].Start.Equal(start) {
		t.Errorf("first segment must start at interval start")
	}
	if !segments[len(segments)-1].End.Equal(end) {
		t.Errorf("last segment must end at interval end")
	}
	for i := 1; i < len(segments); i++ {
		if !segments[i].Start.Equal(segments[i-1].End) {
			t.Errorf("gap between segment %d and %d", i-1, i)
		}
	}

	// AND: Durations sum to the interval length
	total := engine.TotalHours(segments)
	if math.Abs(total-end.Sub(start).Hours()) > 1e-9 {
		t.Errorf("expected total %v, got %v", end.Sub(start).Hours(), total)
	}
}

func TestSplitHourly_NonWholeHourTimezone(t *testing.T) {
	// GIVEN: A timezone with a +5:30 offset, so local hour boundaries
	// fall on :30 in UTC
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	segments, err := engine.SplitHourly(start, end, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: The split lands on the local boundary (10:30 UTC = 16:00 IST)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].DurationHours != 0.5 || segments[1].DurationHours != 0.5 {
		t.Errorf("expected two half-hour segments, got %v and %v",
			segments[0].DurationHours, segments[1].DurationHours)
	}
	if segments[0].LocalTime != engine.MustLocalTime("15:30") {
		t.Errorf("expected local time 15:30, got %s", segments[0].LocalTime)
	}
}

func TestSplitHourly_SpringForwardSkipsMissingHour(t *testing.T) {
	// GIVEN: An interval spanning the US spring-forward transition
	// (Mar 8, 2026: 02:00 EST jumps to 03:00 EDT)
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	start := time.Date(2026, time.March, 8, 0, 30, 0, 0, loc)
	end := time.Date(2026, time.March, 8, 4, 0, 0, 0, loc)

	segments, err := engine.SplitHourly(start, end, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: 2.5 elapsed hours tile as 0.5/1/1; the 02:00 wall hour
	// never appears
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	want := []float64{0.5, 1.0, 1.0}
	for i, seg := range segments {
		if seg.DurationHours != want[i] {
			t.Errorf("segment %d: expected %vh, got %v", i, want[i], seg.DurationHours)
		}
	}
	if segments[2].LocalTime != engine.MustLocalTime("03:00") {
		t.Errorf("expected last segment local time 03:00, got %s", segments[2].LocalTime)
	}
	if math.Abs(engine.TotalHours(segments)-end.Sub(start).Hours()) > 1e-9 {
		t.Errorf("durations must sum to elapsed time across the transition")
	}
}

func TestSplitHourly_FallBackRepeatedHourPartitions(t *testing.T) {
	// GIVEN: An interval spanning the US fall-back transition
	// (Nov 1, 2026: 02:00 EDT falls back to 01:00 EST, so the 01:00
	// wall hour occurs twice)
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	start := time.Date(2026, time.November, 1, 4, 30, 0, 0, time.UTC) // 00:30 EDT
	end := time.Date(2026, time.November, 1, 7, 30, 0, 0, time.UTC)   // 02:30 EST

	segments, err := engine.SplitHourly(start, end, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN: 3 elapsed hours tile as 0.5/1/1/0.5 with both occurrences
	// of the 01:00 wall hour present as distinct segments
	if len(segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(segments))
	}
	want := []float64{0.5, 1.0, 1.0, 0.5}
	for i, seg := range segments {
		if seg.DurationHours != want[i] {
			t.Errorf("segment %d: expected %vh, got %v", i, want[i], seg.DurationHours)
		}
	}
	if segments[1].LocalTime != engine.MustLocalTime("01:00") ||
		segments[2].LocalTime != engine.MustLocalTime("01:00") {
		t.Errorf("expected the repeated 01:00 hour twice, got %s and %s",
			segments[1].LocalTime, segments[2].LocalTime)
	}
	for i := 1; i < len(segments); i++ {
		if !segments[i].Start.Equal(segments[i-1].End) {
			t.Errorf("gap between segment %d and %d", i-1, i)
		}
	}
	if math.Abs(engine.TotalHours(segments)-3.0) > 1e-9 {
		t.Errorf("expected 3 elapsed hours, got %v", engine.TotalHours(segments))
	}
}

func TestSplitHourly_RejectsEmptyAndInvertedRanges(t *testing.T) {
	at := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	// WHEN: end == start
	_, err := engine.SplitHourly(at, at, time.UTC)
	if !errors.Is(err, engine.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange for empty range, got %v", err)
	}

	// WHEN: end < start
	_, err = engine.SplitHourly(at, at.Add(-time.Hour), time.UTC)
	if !errors.Is(err, engine.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange for inverted range, got %v", err)
	}

	var rangeErr *engine.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected *InvalidRangeError, got %T", err)
	}
	if !engine.IsClientError(err) {
		t.Errorf("invalid range must classify as a client error")
	}
}
