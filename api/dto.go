/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Resolution:
    ResolveRequest, ResolveResponse, PriceLineDTO, SegmentDecisionDTO

  Capacity:
    CapacityResultDTO, CapacityLineDTO

  Layers:
    LayerDTO (wraps factory.LayerJSON), ApprovalRequest

  Surge:
    SurgeConfigDTO, CreateSurgeConfigRequest, SnapshotRequest,
    MaterializeRequest, RunDTO

  Hierarchy:
    NodeDTO, CreateNodeRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/layer.go: LayerJSON type
*/
package api

import (
	"github.com/warp/rate-engine/engine"
	"github.com/warp/rate-engine/factory"
)

// =============================================================================
// RESOLUTION TYPES
// =============================================================================

// ResolveRequest asks for a price and capacity breakdown over an interval.
type ResolveRequest struct {
	EntityID string `json:"entity_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// PriceLineDTO is one contiguous run of identically-priced hours.
type PriceLineDTO struct {
	Start         string `json:"start"`
	End           string `json:"end"`
	PricePerHour  string `json:"price_per_hour"`
	Hours         float64 `json:"hours"`
	Subtotal      string `json:"subtotal"`
	RatesheetID   string `json:"ratesheet_id,omitempty"`
	RatesheetName string `json:"ratesheet_name,omitempty"`
	AppliedRule   string `json:"applied_rule"`
}

// CandidateDTO records one considered layer in a segment decision.
type CandidateDTO struct {
	LayerID   string `json:"layer_id"`
	LayerName string `json:"layer_name,omitempty"`
	Level     string `json:"level"`
	Priority  int    `json:"priority"`
	Value     string `json:"value"`
	Rejected  bool   `json:"rejected"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// SegmentDecisionDTO is the audit record for one resolved segment.
type SegmentDecisionDTO struct {
	SegmentStart      string         `json:"segment_start"`
	SegmentEnd        string         `json:"segment_end"`
	LocalTime         string         `json:"local_time"`
	Candidates        []CandidateDTO `json:"candidates"`
	WinnerID          string         `json:"winner_id,omitempty"`
	AppliedRule       string         `json:"applied_rule,omitempty"`
	SurgeLayerID      string         `json:"surge_layer_id,omitempty"`
	SurgeMultiplier   string         `json:"surge_multiplier,omitempty"`
	UsedDefaultRate   bool           `json:"used_default_rate,omitempty"`
	DefaultRateSource string         `json:"default_rate_source,omitempty"`
}

// CapacityLineDTO is the capacity answer for one segment.
type CapacityLineDTO struct {
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Hours     float64 `json:"hours"`
	Min       int     `json:"min"`
	Max       int     `json:"max"`
	Default   int     `json:"default"`
	Allocated int     `json:"allocated"`
	Available bool    `json:"available"`
	SheetID   string  `json:"sheet_id,omitempty"`
	SheetName string  `json:"sheet_name,omitempty"`
}

// CapacityResultDTO aggregates capacity over the whole interval.
type CapacityResultDTO struct {
	Lines []CapacityLineDTO `json:"lines"`

	Allocated struct {
		Transient float64 `json:"transient"`
		Events    float64 `json:"events"`
		Reserved  float64 `json:"reserved"`
	} `json:"allocated"`

	Unallocated struct {
		Unavailable float64 `json:"unavailable"`
		ReadyToUse  float64 `json:"ready_to_use"`
	} `json:"unallocated"`

	Percentages map[string]int `json:"percentages"`

	TotalHours       float64 `json:"total_hours"`
	AvailableHours   float64 `json:"available_hours"`
	UnavailableHours float64 `json:"unavailable_hours"`
}

// ResolveResponse is the full resolution answer.
type ResolveResponse struct {
	EntityID   string `json:"entity_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`
	TotalHours float64 `json:"total_hours"`

	Breakdown   []PriceLineDTO       `json:"breakdown"`
	Capacity    CapacityResultDTO    `json:"capacity"`
	DecisionLog []SegmentDecisionDTO `json:"decision_log,omitempty"`
}

// =============================================================================
// LAYER TYPES
// =============================================================================

// LayerDTO represents a policy layer in API responses.
type LayerDTO struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Level          string            `json:"level"`
	EntityID       string            `json:"entity_id"`
	Category       string            `json:"category"`
	Kind           string            `json:"kind"`
	Priority       int               `json:"priority"`
	ApprovalStatus string            `json:"approval_status"`
	Active         bool              `json:"active"`
	Config         factory.LayerJSON `json:"config"`
	CreatedAt      string            `json:"created_at,omitempty"`
}

// =============================================================================
// HIERARCHY TYPES
// =============================================================================

// NodeDTO represents a hierarchy node in API responses.
type NodeDTO struct {
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	Level             string                  `json:"level"`
	ParentID          string                  `json:"parent_id,omitempty"`
	Timezone          string                  `json:"timezone,omitempty"`
	DefaultHourlyRate string                  `json:"default_hourly_rate,omitempty"`
	DefaultCapacity   *factory.CapacityJSON   `json:"default_capacity,omitempty"`
	AllocationSplit   *AllocationSplitDTO     `json:"allocation_split,omitempty"`
	OperatingHours    *engine.OperatingHours  `json:"operating_hours,omitempty"`
	CreatedAt         string                  `json:"created_at,omitempty"`
}

// CreateNodeRequest is the request to create or replace a hierarchy node.
type CreateNodeRequest struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Level             string                 `json:"level"`
	ParentID          string                 `json:"parent_id,omitempty"`
	Timezone          string                 `json:"timezone,omitempty"`
	DefaultHourlyRate string                 `json:"default_hourly_rate,omitempty"`
	DefaultCapacity   *factory.CapacityJSON  `json:"default_capacity,omitempty"`
	AllocationSplit   *AllocationSplitDTO    `json:"allocation_split,omitempty"`
	OperatingHours    *engine.OperatingHours `json:"operating_hours,omitempty"`
}

// AllocationSplitDTO is the static transient/events/reserved ratio.
type AllocationSplitDTO struct {
	Transient float64 `json:"transient"`
	Events    float64 `json:"events"`
	Reserved  float64 `json:"reserved"`
}

// =============================================================================
// SURGE TYPES
// =============================================================================

// SurgeParamsDTO carries the multiplier formula coefficients.
type SurgeParamsDTO struct {
	Alpha         float64 `json:"alpha"`
	MinMultiplier float64 `json:"min_multiplier"`
	MaxMultiplier float64 `json:"max_multiplier"`
	EMAAlpha      float64 `json:"ema_alpha,omitempty"`
}

// SurgeConfigDTO represents a surge config in API responses.
type SurgeConfigDTO struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Level         string         `json:"level"`
	EntityID      string         `json:"entity_id"`
	Priority      int            `json:"priority"`
	Params        SurgeParamsDTO `json:"params"`
	EffectiveFrom string         `json:"effective_from"`
	EffectiveTo   string         `json:"effective_to,omitempty"`
	Active        bool           `json:"active"`
	CreatedAt     string         `json:"created_at,omitempty"`
}

// CreateSurgeConfigRequest is the request to create or replace a surge
// config.
type CreateSurgeConfigRequest struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Level         string         `json:"level"`
	EntityID      string         `json:"entity_id"`
	Priority      int            `json:"priority"`
	Params        SurgeParamsDTO `json:"params"`
	EffectiveFrom string         `json:"effective_from,omitempty"`
	EffectiveTo   string         `json:"effective_to,omitempty"`
	Active        *bool          `json:"active,omitempty"`
}

// SnapshotRequest ingests one demand snapshot for a scope/hour bucket.
type SnapshotRequest struct {
	Level                 string  `json:"level"`
	EntityID              string  `json:"entity_id"`
	HourBucket            string  `json:"hour_bucket"`
	BookingsCount         int     `json:"bookings_count"`
	TotalAttendees        int     `json:"total_attendees"`
	AvailableCapacity     int     `json:"available_capacity"`
	HistoricalAvgPressure float64 `json:"historical_avg_pressure"`
}

// MaterializeRequest triggers a surge materialization, either by config
// id or by scope.
type MaterializeRequest struct {
	ConfigID string `json:"config_id,omitempty"`
	Level    string `json:"level,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

// MaterializeResponse reports what a materialization produced.
type MaterializeResponse struct {
	CreatedLayerID string   `json:"created_layer_id"`
	Multiplier     float64  `json:"multiplier"`
	ApprovalStatus string   `json:"approval_status"`
	TargetBucket   string   `json:"target_bucket"`
	SupersededIDs  []string `json:"superseded_ids,omitempty"`
}

// RunDTO represents a materialization run in API responses.
type RunDTO struct {
	ID             string  `json:"id"`
	ConfigID       string  `json:"config_id"`
	Scope          string  `json:"scope"`
	TargetBucket   string  `json:"target_bucket"`
	Multiplier     float64 `json:"multiplier,omitempty"`
	CreatedLayerID string  `json:"created_layer_id,omitempty"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	StartedAt      string  `json:"started_at"`
	CompletedAt    string  `json:"completed_at,omitempty"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
