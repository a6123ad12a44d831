/*
materializer.go - Surge layer materialization

PURPOSE:
  Orchestrates the calculator plus layer supersession bookkeeping to turn
  a surge config and a fresh demand snapshot into a new, time-boxed
  surge_multiplier policy layer:
    (a) refresh the config's demand/supply params from the snapshot
    (b) supersede previously derived DRAFT/APPROVED layers whose
        effectiveTo is strictly in the future; elapsed layers are kept
        untouched as historical record
    (c) compute the clamped multiplier
    (d) build the layer for the NEXT hour bucket after the snapshot's
        (predictive, one bucket ahead) with priority 10000 + config
        priority so surge layers always outrank static layers at the
        same level
    (e) persist as DRAFT, linked back to the config

CONCURRENCY:
  Two concurrent materializations for the same scope could both see the
  same "existing future layers" snapshot. The materializer serializes per
  (scope, target hour bucket) with a keyed mutex, AND derives a
  deterministic layer id from (scope, bucket) so a lost race degrades to
  an upsert instead of a duplicate active layer. Failures are not retried
  here; the caller (manual trigger or scheduler) decides.
*/
package surge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/rate-engine/engine"
)

// layerNamespace seeds the deterministic layer ids. Fixed so every
// process derives the same id for the same (scope, bucket).
var layerNamespace = uuid.MustParse("9f2c1d4e-8a3b-4c5d-9e6f-7a8b9c0d1e2f")

// surgePriorityBase lifts derived layers above any static layer at the
// same hierarchy level.
const surgePriorityBase = 10000

// Result is the outcome of one materialization.
type Result struct {
	CreatedLayerID engine.LayerID
	Multiplier     float64
	ApprovalStatus engine.ApprovalStatus
	TargetBucket   time.Time
	SupersededIDs  []engine.LayerID
}

// Materializer reads, mutates and writes layer records. It is the one
// stateful, side-effecting operation in the system.
type Materializer struct {
	Layers    engine.LayerStore
	Configs   ConfigStore
	Snapshots SnapshotStore
	Runs      RunStore

	// Clock is swappable for tests; defaults to time.Now.
	Clock func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMaterializer(layers engine.LayerStore, configs ConfigStore, snapshots SnapshotStore, runs RunStore) *Materializer {
	return &Materializer{
		Layers:    layers,
		Configs:   configs,
		Snapshots: snapshots,
		Runs:      runs,
		Clock:     time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Materialize runs one materialization for the config.
func (m *Materializer) Materialize(ctx context.Context, configID engine.ConfigID) (*Result, error) {
	cfg, err := m.Configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	return m.materialize(ctx, cfg)
}

// MaterializeScope materializes for the active config bound to a scope.
func (m *Materializer) MaterializeScope(ctx context.Context, scope engine.Scope) (*Result, error) {
	cfg, err := m.Configs.GetConfigByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	return m.materialize(ctx, cfg)
}

func (m *Materializer) materialize(ctx context.Context, cfg *SurgeConfig) (result *Result, err error) {
	started := m.Clock()

	snapshot, err := m.Snapshots.LatestSnapshot(ctx, cfg.Scope)
	if err != nil {
		return nil, err
	}

	// Predictive: the derived layer covers the bucket AFTER the
	// snapshot's hour.
	target := snapshot.HourBucket.Truncate(time.Hour).Add(time.Hour)

	unlock := m.lock(cfg.Scope, target)
	defer unlock()

	defer func() {
		m.recordRun(ctx, cfg, target, started, result, err)
	}()

	// (a) Refresh demand/supply params from the snapshot.
	cfg.DemandSupply = DemandSupplyParams{
		CurrentDemand:         float64(snapshot.BookingsCount),
		CurrentSupply:         float64(snapshot.AvailableCapacity) / 10,
		HistoricalAvgPressure: snapshot.HistoricalAvgPressure,
	}

	// (c) Validate and compute BEFORE touching any existing layer, so a
	// rejected materialization leaves the store untouched.
	multiplier, err := Multiplier(cfg.DemandSupply, cfg.Params)
	if err != nil {
		return nil, err
	}

	cfg.UpdatedAt = m.Clock()
	if err = m.Configs.SaveConfig(ctx, *cfg); err != nil {
		return nil, fmt.Errorf("persist refreshed config: %w", err)
	}

	// (b) Supersede derived layers still in the future; elapsed layers
	// stay untouched for historical audit.
	superseded, err := m.supersedeFutureLayers(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	// (d)+(e) Build and upsert the derived layer.
	layer := m.buildLayer(cfg, multiplier, target)
	if err = m.Layers.SaveLayer(ctx, layer); err != nil {
		return nil, fmt.Errorf("persist derived layer: %w", err)
	}

	return &Result{
		CreatedLayerID: layer.ID,
		Multiplier:     multiplier,
		ApprovalStatus: engine.StatusDraft,
		TargetBucket:   target,
		SupersededIDs:  superseded,
	}, nil
}

func (m *Materializer) supersedeFutureLayers(ctx context.Context, configID engine.ConfigID) ([]engine.LayerID, error) {
	existing, err := m.Layers.ListDerivedLayers(ctx, configID)
	if err != nil {
		return nil, err
	}

	now := m.Clock()
	var superseded []engine.LayerID
	for _, layer := range existing {
		if layer.ApprovalStatus != engine.StatusDraft && layer.ApprovalStatus != engine.StatusApproved {
			continue
		}
		if layer.EffectiveTo == nil || !layer.EffectiveTo.After(now) {
			continue
		}
		if err := m.Layers.UpdateApprovalStatus(ctx, layer.ID, engine.StatusSuperseded); err != nil {
			return nil, fmt.Errorf("supersede layer %s: %w", layer.ID, err)
		}
		superseded = append(superseded, layer.ID)
	}
	return superseded, nil
}

func (m *Materializer) buildLayer(cfg *SurgeConfig, multiplier float64, target time.Time) engine.PolicyLayer {
	value := decimal.NewFromFloat(multiplier).Round(4)

	windows := make([]engine.TimeWindow, 0, len(cfg.Windows)+1)
	if len(cfg.Windows) > 0 {
		for _, w := range cfg.Windows {
			windows = append(windows, engine.TimeWindow{Start: w.Start, End: w.End, Value: value})
		}
	} else {
		windows = append(windows, engine.TimeWindow{Start: 0, End: engine.EndOfDay, Value: value})
	}

	end := target.Add(time.Hour)
	now := m.Clock()
	return engine.PolicyLayer{
		ID:             DerivedLayerID(cfg.Scope, target),
		Name:           fmt.Sprintf("%s surge %s", cfg.Name, target.UTC().Format("2006-01-02 15:00")),
		Scope:          cfg.Scope,
		Category:       engine.CategoryRate,
		Kind:           engine.KindSurgeMultiplier,
		Priority:       surgePriorityBase + cfg.Priority,
		TieBreak:       engine.TieBreakPriority,
		EffectiveFrom:  target,
		EffectiveTo:    &end,
		Windows:        windows,
		Active:         true,
		ApprovalStatus: engine.StatusDraft,
		SourceConfigID: cfg.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DerivedLayerID is deterministic over (scope, target bucket): a second
// concurrent materialization for the same pair upserts the same row
// instead of duplicating it.
func DerivedLayerID(scope engine.Scope, bucket time.Time) engine.LayerID {
	seed := scope.String() + "@" + bucket.UTC().Format(time.RFC3339)
	return engine.LayerID("surge-" + uuid.NewSHA1(layerNamespace, []byte(seed)).String())
}

// lock serializes materialization per (scope, target bucket).
func (m *Materializer) lock(scope engine.Scope, bucket time.Time) func() {
	key := scope.String() + "@" + bucket.UTC().Format(time.RFC3339)

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Materializer) recordRun(ctx context.Context, cfg *SurgeConfig, target, started time.Time, result *Result, runErr error) {
	if m.Runs == nil {
		return
	}
	run := Run{
		ID:           "run-" + uuid.NewString(),
		ConfigID:     cfg.ID,
		Scope:        cfg.Scope,
		TargetBucket: target,
		Status:       RunCompleted,
		StartedAt:    started,
		CompletedAt:  m.Clock(),
	}
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	} else if result != nil {
		run.Multiplier = result.Multiplier
		run.CreatedLayerID = result.CreatedLayerID
		run.SupersededIDs = result.SupersededIDs
	}
	// Run records are best-effort; a failed write must not fail the
	// materialization itself.
	_ = m.Runs.SaveRun(ctx, run)
}
