/*
Package surge synthesizes surge-multiplier policy layers from demand
pressure.

PURPOSE:
  Turns a surge configuration plus the latest demand snapshot for its
  scope into a concrete, time-boxed surge_multiplier layer that the
  resolution engine picks up on subsequent queries. Materialized layers
  start DRAFT and outrank static layers at the same hierarchy level.

KEY CONCEPTS IN THIS FILE (types.go):
  - SurgeConfig: Scope, demand/supply inputs and tunable coefficients
  - DemandSnapshot: Per-hour-bucket demand signal from the ingestion
    pipeline (a black box to this package)
  - Run: Audit record of one materialization

INVARIANTS:
  currentSupply > 0, historicalAvgPressure > 0,
  0.1 <= alpha <= 1.0, 0.5 <= minMultiplier < maxMultiplier <= 3.0.
  Violations reject the materialization and leave existing layers
  untouched.

SEE ALSO:
  - calculator.go: The pure multiplier formula
  - materializer.go: Orchestration and supersession bookkeeping
*/
package surge

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/rate-engine/engine"
)

// =============================================================================
// SURGE CONFIG
// =============================================================================

// DemandSupplyParams are the live inputs to the multiplier formula,
// refreshed from the latest demand snapshot on every materialization.
type DemandSupplyParams struct {
	CurrentDemand float64

	// CurrentSupply is normalized per 10 capacity units (demand
	// snapshots normalize per 100; the calculator reconciles the bases).
	CurrentSupply float64

	HistoricalAvgPressure float64
}

// SurgeParams are the tunable coefficients of the multiplier formula.
type SurgeParams struct {
	// Alpha scales how aggressively pressure moves the multiplier.
	Alpha float64

	MinMultiplier float64
	MaxMultiplier float64

	// EMAAlpha smooths the historical baseline on ingest.
	EMAAlpha float64
}

// Validate checks the coefficient bands.
func (p SurgeParams) Validate() error {
	if p.Alpha < 0.1 || p.Alpha > 1.0 {
		return &engine.InvalidSurgeParametersError{Field: "alpha", Detail: fmt.Sprintf("%v outside [0.1, 1.0]", p.Alpha)}
	}
	if p.MinMultiplier < 0.5 {
		return &engine.InvalidSurgeParametersError{Field: "minMultiplier", Detail: fmt.Sprintf("%v below 0.5", p.MinMultiplier)}
	}
	if p.MaxMultiplier > 3.0 {
		return &engine.InvalidSurgeParametersError{Field: "maxMultiplier", Detail: fmt.Sprintf("%v above 3.0", p.MaxMultiplier)}
	}
	if p.MinMultiplier >= p.MaxMultiplier {
		return &engine.InvalidSurgeParametersError{Field: "minMultiplier", Detail: "must be below maxMultiplier"}
	}
	return nil
}

// SurgeConfig declares how surge layers are derived for one scope.
type SurgeConfig struct {
	ID       engine.ConfigID
	Name     string
	Scope    engine.Scope
	Priority int

	DemandSupply DemandSupplyParams
	Params       SurgeParams

	EffectiveFrom time.Time
	EffectiveTo   *time.Time

	// Windows optionally restricts the derived layer to parts of the
	// day; empty means the whole target hour.
	Windows []engine.TimeWindow

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the config's structural invariants. Demand/supply
// inputs are validated at materialization time against the fresh
// snapshot, not here.
func (c *SurgeConfig) Validate() error {
	if !c.Scope.Level.Valid() {
		return fmt.Errorf("surge config %s: invalid scope level %q", c.ID, c.Scope.Level)
	}
	if c.EffectiveTo != nil && c.EffectiveTo.Before(c.EffectiveFrom) {
		return fmt.Errorf("surge config %s: effectiveTo before effectiveFrom", c.ID)
	}
	return c.Params.Validate()
}

// =============================================================================
// DEMAND SNAPSHOT
// =============================================================================

// DemandSnapshot is one per-hour-bucket demand signal produced by the
// external ingestion pipeline.
type DemandSnapshot struct {
	ID         string
	Scope      engine.Scope
	HourBucket time.Time

	BookingsCount     int
	TotalAttendees    int
	AvailableCapacity int

	// HistoricalAvgPressure is the 30-day rolling average for the same
	// day-of-week/hour-of-day.
	HistoricalAvgPressure float64

	Timestamp time.Time
}

// DemandPressure normalizes bookings against available capacity per 100
// capacity units.
func (s DemandSnapshot) DemandPressure() float64 {
	if s.AvailableCapacity <= 0 {
		return 0
	}
	return float64(s.BookingsCount) / (float64(s.AvailableCapacity) / 100)
}

// =============================================================================
// RUN - Audit record of one materialization
// =============================================================================

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run records one materialization attempt, completed or failed.
type Run struct {
	ID       string
	ConfigID engine.ConfigID
	Scope    engine.Scope

	TargetBucket   time.Time
	Multiplier     float64
	CreatedLayerID engine.LayerID
	SupersededIDs  []engine.LayerID

	Status RunStatus
	Error  string

	StartedAt   time.Time
	CompletedAt time.Time
}

// =============================================================================
// STORES - Persistence contracts owned by this package
// =============================================================================

// ConfigStore persists surge configs.
type ConfigStore interface {
	SaveConfig(ctx context.Context, cfg SurgeConfig) error
	GetConfig(ctx context.Context, id engine.ConfigID) (*SurgeConfig, error)
	GetConfigByScope(ctx context.Context, scope engine.Scope) (*SurgeConfig, error)
	ListActiveConfigs(ctx context.Context) ([]SurgeConfig, error)
}

// SnapshotStore persists demand snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot DemandSnapshot) error

	// LatestSnapshot returns ErrNoSnapshot when the scope has none.
	LatestSnapshot(ctx context.Context, scope engine.Scope) (*DemandSnapshot, error)
}

// RunStore persists materialization run records.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
