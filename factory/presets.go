/*
presets.go - Canned layer configurations

PURPOSE:
  Go builders for the layer shapes operators create most often. Used by
  the demo scenarios and handy in tests. Each returns the JSON form so
  the same validation path applies as for operator-submitted layers.
*/
package factory

// WeekdayRateSheetJSON builds a weekly-recurring rate sheet covering
// Monday-Friday with one peak window and an off-peak remainder.
func WeekdayRateSheetJSON(id, name, level, entityID string, priority int, effectiveFrom string, peakStart, peakEnd, peakRate, offPeakRate string) LayerJSON {
	return LayerJSON{
		ID:            id,
		Name:          name,
		Scope:         ScopeJSON{Level: level, EntityID: entityID},
		Priority:      priority,
		EffectiveFrom: effectiveFrom,
		Recurrence:    &RecurrenceJSON{Kind: "weekly", Weekdays: []int{1, 2, 3, 4, 5}},
		Windows: []WindowJSON{
			{Start: "00:00", End: peakStart, Value: offPeakRate},
			{Start: peakStart, End: peakEnd, Value: peakRate},
			{Start: peakEnd, End: "24:00", Value: offPeakRate},
		},
		ApprovalStatus: "approved",
	}
}

// FlatRateSheetJSON builds an always-on rate sheet with a single
// all-day window.
func FlatRateSheetJSON(id, name, level, entityID string, priority int, effectiveFrom, rate string) LayerJSON {
	return LayerJSON{
		ID:            id,
		Name:          name,
		Scope:         ScopeJSON{Level: level, EntityID: entityID},
		Priority:      priority,
		EffectiveFrom: effectiveFrom,
		Windows: []WindowJSON{
			{Start: "00:00", End: "24:00", Value: rate},
		},
		ApprovalStatus: "approved",
	}
}

// CapacitySheetJSON builds an all-day capacity sheet with fixed bounds.
func CapacitySheetJSON(id, name, level, entityID string, priority int, effectiveFrom string, min, max, def, allocated int) LayerJSON {
	return LayerJSON{
		ID:            id,
		Name:          name,
		Scope:         ScopeJSON{Level: level, EntityID: entityID},
		Category:      "capacity",
		Priority:      priority,
		EffectiveFrom: effectiveFrom,
		Windows: []WindowJSON{
			{Start: "00:00", End: "24:00", Capacity: &CapacityJSON{Min: min, Max: max, Default: def, Allocated: allocated}},
		},
		ApprovalStatus: "approved",
	}
}
