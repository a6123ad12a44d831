/*
segment.go - Interval segmentation

PURPOSE:
  Splits an arbitrary [start, end) instant range into hour-aligned
  segments. Each segment carries the local wall-clock time-of-day of its
  start and its fractional duration in hours. Every downstream resolution
  step (pricing, capacity) works segment by segment.

CONTRACT:
  - Segments partition [start, end) exactly: no gaps, no overlaps
  - Sum of DurationHours equals (end - start) in hours within 1e-9
  - Boundary segments may be fractional (a 10:30-13:00 booking yields
    10:30-11:00 (0.5h), 11:00-12:00 (1h), 12:00-13:00 (1h))
  - end <= start is rejected with ErrInvalidRange before any work
*/
package engine

import "time"

// =============================================================================
// SEGMENT - One hour-aligned slice of a booking interval
// =============================================================================

// Segment is one hour-aligned (possibly fractional at the boundaries)
// slice of a booking interval.
type Segment struct {
	Start time.Time
	End   time.Time

	// LocalTime is the wall-clock time-of-day of Start in the query
	// timezone. Window matching uses this value.
	LocalTime LocalTime

	// LocalDate is Start converted to the query timezone; recurrence and
	// operating-hours matching use its weekday/day/month.
	LocalDate time.Time

	// DurationHours is fractional for boundary segments.
	DurationHours float64
}

// SplitHourly partitions [start, end) into hour-aligned segments in the
// given timezone. Returns *InvalidRangeError when end <= start.
func SplitHourly(start, end time.Time, loc *time.Location) ([]Segment, error) {
	if !end.After(start) {
		return nil, &InvalidRangeError{Start: start, End: end}
	}
	if loc == nil {
		loc = time.UTC
	}

	var segments []Segment
	cursor := start
	for cursor.Before(end) {
		local := cursor.In(loc)
		// Advance to the next hour boundary by instant arithmetic. Building
		// the boundary from wall-clock fields would resolve ambiguous local
		// times (DST fall-back repeats an hour) to the wrong instant and
		// stall the cursor; elapsed time from the position within the
		// current local hour always moves strictly forward.
		intoHour := time.Duration(local.Minute())*time.Minute +
			time.Duration(local.Second())*time.Second +
			time.Duration(local.Nanosecond())
		segEnd := cursor.Add(time.Hour - intoHour)
		if segEnd.After(end) {
			segEnd = end
		}

		segments = append(segments, Segment{
			Start:         cursor,
			End:           segEnd,
			LocalTime:     LocalTime(local.Hour()*60 + local.Minute()),
			LocalDate:     local,
			DurationHours: segEnd.Sub(cursor).Hours(),
		})
		cursor = segEnd
	}
	return segments, nil
}

// TotalHours sums the fractional durations of the segments.
func TotalHours(segments []Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.DurationHours
	}
	return total
}
