/*
Package factory provides JSON to Go policy-layer conversion.

PURPOSE:
  Converts JSON layer definitions into engine.PolicyLayer values. This
  enables layer configuration without code changes - operators can define
  rate sheets and capacity sheets in JSON, and the factory creates the
  proper Go structs. The same schema is what the SQLite store persists
  and the API accepts.

JSON SCHEMA:
  {
    "id": "site-1-weekday-peak",
    "name": "Weekday Peak",
    "scope": {"level": "site", "entity_id": "site-1"},
    "category": "rate",
    "kind": "time_window",
    "priority": 10,
    "tie_break": "priority",
    "effective_from": "2026-01-01T00:00:00Z",
    "recurrence": {"kind": "weekly", "weekdays": [1,2,3,4,5]},
    "windows": [
      {"start": "09:00", "end": "17:00", "value": "120.00"}
    ],
    "active": true,
    "approval_status": "approved"
  }

KEY FEATURES:
  - Validates structure and the layer invariants (same-day windows,
    effective range ordering)
  - Sets sensible defaults (priority tie-break, draft status)
  - Round-trips: ToJSON(FromJSON(x)) preserves meaning

SEE ALSO:
  - engine/types.go: PolicyLayer definition
  - store/sqlite: Persists layers through this schema
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/rate-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LayerJSON is the JSON representation of a policy layer.
type LayerJSON struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Scope          ScopeJSON       `json:"scope"`
	Category       string          `json:"category,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	Priority       int             `json:"priority"`
	TieBreak       string          `json:"tie_break,omitempty"`
	EffectiveFrom  string          `json:"effective_from"`
	EffectiveTo    string          `json:"effective_to,omitempty"`
	Recurrence     *RecurrenceJSON `json:"recurrence,omitempty"`
	Windows        []WindowJSON    `json:"windows"`
	Active         *bool           `json:"active,omitempty"`
	ApprovalStatus string          `json:"approval_status,omitempty"`
	SourceConfigID string          `json:"source_config_id,omitempty"`
}

type ScopeJSON struct {
	Level    string `json:"level"`
	EntityID string `json:"entity_id"`
}

type RecurrenceJSON struct {
	Kind       string `json:"kind"`
	Weekdays   []int  `json:"weekdays,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
}

type WindowJSON struct {
	Start    string        `json:"start"`
	End      string        `json:"end"`
	Value    string        `json:"value,omitempty"`
	Capacity *CapacityJSON `json:"capacity,omitempty"`
}

type CapacityJSON struct {
	Min       int `json:"min"`
	Max       int `json:"max"`
	Default   int `json:"default"`
	Allocated int `json:"allocated"`
}

// =============================================================================
// LAYER FACTORY
// =============================================================================

// LayerFactory converts JSON layers to engine structs and back.
type LayerFactory struct{}

func NewLayerFactory() *LayerFactory {
	return &LayerFactory{}
}

// ParseLayer parses a JSON string into a validated PolicyLayer.
func (f *LayerFactory) ParseLayer(jsonStr string) (*engine.PolicyLayer, error) {
	var lj LayerJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse layer JSON: %w", err)
	}
	return f.FromJSON(lj)
}

// FromJSON converts LayerJSON to a validated engine.PolicyLayer.
func (f *LayerFactory) FromJSON(lj LayerJSON) (*engine.PolicyLayer, error) {
	level, err := engine.ParseLevel(lj.Scope.Level)
	if err != nil {
		return nil, err
	}

	from, err := time.Parse(time.RFC3339, lj.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("invalid effective_from: %w", err)
	}

	var to *time.Time
	if lj.EffectiveTo != "" {
		t, err := time.Parse(time.RFC3339, lj.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("invalid effective_to: %w", err)
		}
		to = &t
	}

	windows := make([]engine.TimeWindow, 0, len(lj.Windows))
	for _, wj := range lj.Windows {
		w, err := windowFromJSON(wj)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}

	layer := &engine.PolicyLayer{
		ID:             engine.LayerID(lj.ID),
		Name:           lj.Name,
		Scope:          engine.Scope{Level: level, EntityID: engine.EntityID(lj.Scope.EntityID)},
		Category:       engine.LayerCategory(defaultStr(lj.Category, string(engine.CategoryRate))),
		Kind:           engine.LayerKind(defaultStr(lj.Kind, string(engine.KindTimeWindow))),
		Priority:       lj.Priority,
		TieBreak:       engine.TieBreak(defaultStr(lj.TieBreak, string(engine.TieBreakPriority))),
		EffectiveFrom:  from,
		EffectiveTo:    to,
		Recurrence:     recurrenceFromJSON(lj.Recurrence),
		Windows:        windows,
		Active:         lj.Active == nil || *lj.Active,
		ApprovalStatus: engine.ApprovalStatus(defaultStr(lj.ApprovalStatus, string(engine.StatusDraft))),
		SourceConfigID: engine.ConfigID(lj.SourceConfigID),
	}

	if err := layer.Validate(); err != nil {
		return nil, err
	}
	return layer, nil
}

// ToJSON converts a PolicyLayer back to its JSON schema.
func (f *LayerFactory) ToJSON(layer engine.PolicyLayer) LayerJSON {
	lj := LayerJSON{
		ID:             string(layer.ID),
		Name:           layer.Name,
		Scope:          ScopeJSON{Level: string(layer.Scope.Level), EntityID: string(layer.Scope.EntityID)},
		Category:       string(layer.Category),
		Kind:           string(layer.Kind),
		Priority:       layer.Priority,
		TieBreak:       string(layer.TieBreak),
		EffectiveFrom:  layer.EffectiveFrom.Format(time.RFC3339),
		Active:         &layer.Active,
		ApprovalStatus: string(layer.ApprovalStatus),
		SourceConfigID: string(layer.SourceConfigID),
	}
	if layer.EffectiveTo != nil {
		lj.EffectiveTo = layer.EffectiveTo.Format(time.RFC3339)
	}
	if layer.Recurrence.Kind != "" && layer.Recurrence.Kind != engine.RecurNone {
		rj := &RecurrenceJSON{Kind: string(layer.Recurrence.Kind), DayOfMonth: layer.Recurrence.DayOfMonth}
		for _, wd := range layer.Recurrence.Weekdays {
			rj.Weekdays = append(rj.Weekdays, int(wd))
		}
		lj.Recurrence = rj
	}
	for _, w := range layer.Windows {
		wj := WindowJSON{Start: w.Start.String(), End: w.End.String(), Value: w.Value.String()}
		if w.Capacity != nil {
			wj.Capacity = &CapacityJSON{Min: w.Capacity.Min, Max: w.Capacity.Max, Default: w.Capacity.Default, Allocated: w.Capacity.Allocated}
		}
		lj.Windows = append(lj.Windows, wj)
	}
	return lj
}

// Marshal renders a layer as its canonical JSON string.
func (f *LayerFactory) Marshal(layer engine.PolicyLayer) (string, error) {
	b, err := json.Marshal(f.ToJSON(layer))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func windowFromJSON(wj WindowJSON) (engine.TimeWindow, error) {
	start, err := engine.ParseLocalTime(wj.Start)
	if err != nil {
		return engine.TimeWindow{}, err
	}
	end, err := engine.ParseLocalTime(wj.End)
	if err != nil {
		return engine.TimeWindow{}, err
	}

	w := engine.TimeWindow{Start: start, End: end}
	if wj.Value != "" {
		v, err := decimal.NewFromString(wj.Value)
		if err != nil {
			return engine.TimeWindow{}, fmt.Errorf("invalid window value %q: %w", wj.Value, err)
		}
		w.Value = v
	}
	if wj.Capacity != nil {
		w.Capacity = &engine.CapacitySettings{
			Min: wj.Capacity.Min, Max: wj.Capacity.Max,
			Default: wj.Capacity.Default, Allocated: wj.Capacity.Allocated,
		}
	}
	return w, nil
}

func recurrenceFromJSON(rj *RecurrenceJSON) engine.Recurrence {
	if rj == nil {
		return engine.Recurrence{Kind: engine.RecurNone}
	}
	r := engine.Recurrence{Kind: engine.RecurrenceKind(rj.Kind), DayOfMonth: rj.DayOfMonth}
	for _, wd := range rj.Weekdays {
		r.Weekdays = append(r.Weekdays, time.Weekday(wd))
	}
	return r
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
