package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rate-engine/engine"
	"github.com/warp/rate-engine/store/sqlite"
	"github.com/warp/rate-engine/surge"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleLayer(id string) engine.PolicyLayer {
	to := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)
	return engine.PolicyLayer{
		ID:            engine.LayerID(id),
		Name:          "Weekday Rates",
		Scope:         engine.Scope{Level: engine.LevelSite, EntityID: "site-1"},
		Category:      engine.CategoryRate,
		Kind:          engine.KindTimeWindow,
		Priority:      10,
		TieBreak:      engine.TieBreakHighestValue,
		EffectiveFrom: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		EffectiveTo:   &to,
		Recurrence: engine.Recurrence{
			Kind:     engine.RecurWeekly,
			Weekdays: []time.Weekday{time.Monday, time.Friday},
		},
		Windows: []engine.TimeWindow{
			{Start: engine.MustLocalTime("09:00"), End: engine.MustLocalTime("17:00"), Value: decimal.NewFromInt(75)},
			{
				Start:    engine.MustLocalTime("17:00"),
				End:      engine.MustLocalTime("22:00"),
				Value:    decimal.NewFromInt(50),
				Capacity: &engine.CapacitySettings{Min: 5, Max: 120, Default: 80, Allocated: 30},
			},
		},
		Active:         true,
		ApprovalStatus: engine.StatusApproved,
	}
}

// =============================================================================
// LAYER STORE TESTS
// =============================================================================

func TestLayerRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleLayer("layer-1")
	require.NoError(t, store.SaveLayer(ctx, want))

	got, err := store.GetLayer(ctx, "layer-1")
	require.NoError(t, err)

	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Scope, got.Scope)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.TieBreak, got.TieBreak)
	assert.Equal(t, want.Recurrence.Weekdays, got.Recurrence.Weekdays)
	require.Len(t, got.Windows, 2)
	assert.True(t, got.Windows[0].Value.Equal(decimal.NewFromInt(75)))
	require.NotNil(t, got.Windows[1].Capacity)
	assert.Equal(t, 120, got.Windows[1].Capacity.Max)
	require.NotNil(t, got.EffectiveTo)
	assert.True(t, got.EffectiveTo.Equal(*want.EffectiveTo))
}

func TestSaveLayer_UpsertsById(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	layer := sampleLayer("layer-1")
	require.NoError(t, store.SaveLayer(ctx, layer))

	layer.Name = "Renamed"
	layer.Priority = 99
	require.NoError(t, store.SaveLayer(ctx, layer))

	got, err := store.GetLayer(ctx, "layer-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 99, got.Priority)

	all, err := store.ListLayers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "save must replace, not duplicate")
}

func TestGetLayer_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetLayer(context.Background(), "nope")
	assert.True(t, errors.Is(err, engine.ErrLayerNotFound))
	assert.True(t, engine.IsNotFound(err))
}

func TestListLayersForEntities_FiltersScopeAndTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inScope := sampleLayer("in-scope")
	require.NoError(t, store.SaveLayer(ctx, inScope))

	otherEntity := sampleLayer("other-entity")
	otherEntity.Scope.EntityID = "site-2"
	require.NoError(t, store.SaveLayer(ctx, otherEntity))

	expired := sampleLayer("expired")
	expiredTo := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	expired.EffectiveTo = &expiredTo
	require.NoError(t, store.SaveLayer(ctx, expired))

	inactive := sampleLayer("inactive")
	inactive.Active = false
	require.NoError(t, store.SaveLayer(ctx, inactive))

	superseded := sampleLayer("superseded")
	superseded.ApprovalStatus = engine.StatusSuperseded
	require.NoError(t, store.SaveLayer(ctx, superseded))

	draft := sampleLayer("draft")
	draft.ApprovalStatus = engine.StatusDraft
	require.NoError(t, store.SaveLayer(ctx, draft))

	got, err := store.ListLayersForEntities(ctx,
		[]engine.EntityID{"site-1"},
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, got, 1, "only approved, active, in-scope, overlapping layers are candidates")
	assert.Equal(t, engine.LayerID("in-scope"), got[0].ID)
}

func TestUpdateApprovalStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	layer := sampleLayer("layer-1")
	layer.ApprovalStatus = engine.StatusDraft
	require.NoError(t, store.SaveLayer(ctx, layer))

	require.NoError(t, store.UpdateApprovalStatus(ctx, "layer-1", engine.StatusApproved))

	got, err := store.GetLayer(ctx, "layer-1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, got.ApprovalStatus)

	err = store.UpdateApprovalStatus(ctx, "missing", engine.StatusApproved)
	assert.True(t, errors.Is(err, engine.ErrLayerNotFound))
}

// =============================================================================
// NODE STORE TESTS
// =============================================================================

func TestNodeRoundtripAndChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rate := decimal.NewFromInt(40)
	account := engine.HierarchyNode{
		ID:                "acct-1",
		Name:              "Account",
		Level:             engine.LevelAccount,
		DefaultHourlyRate: &rate,
		DefaultCapacity:   &engine.CapacitySettings{Max: 100, Default: 50},
		AllocationSplit:   &engine.AllocationSplit{Transient: 0.5, Events: 0.3, Reserved: 0.2},
		Timezone:          "America/New_York",
		OperatingHours: &engine.OperatingHours{
			Weekly: map[time.Weekday][]engine.HourSlot{
				time.Monday: {{Open: engine.MustLocalTime("08:00"), Close: engine.MustLocalTime("22:00")}},
			},
		},
	}
	require.NoError(t, store.SaveNode(ctx, account))

	parent := engine.EntityID("acct-1")
	site := engine.HierarchyNode{ID: "site-1", Name: "Site", Level: engine.LevelSite, ParentID: &parent}
	require.NoError(t, store.SaveNode(ctx, site))

	siteParent := engine.EntityID("site-1")
	venue := engine.HierarchyNode{ID: "venue-1", Name: "Venue", Level: engine.LevelVenueEvent, ParentID: &siteParent}
	require.NoError(t, store.SaveNode(ctx, venue))

	// Node roundtrip preserves the nested configuration
	got, err := store.GetNode(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, got.DefaultHourlyRate)
	assert.True(t, got.DefaultHourlyRate.Equal(rate))
	require.NotNil(t, got.OperatingHours)
	assert.Len(t, got.OperatingHours.Weekly[time.Monday], 1)
	assert.Equal(t, "America/New_York", got.Timezone)

	// ChainFor walks to the root and orders root first
	chain, err := store.ChainFor(ctx, "venue-1")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, engine.EntityID("acct-1"), chain[0].ID)
	assert.Equal(t, engine.EntityID("venue-1"), chain[2].ID)

	_, err = store.ChainFor(ctx, "missing")
	assert.True(t, errors.Is(err, engine.ErrNodeNotFound))
}

// =============================================================================
// SURGE CONFIG / SNAPSHOT / RUN TESTS
// =============================================================================

func TestConfigRoundtripAndScopeLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := surge.SurgeConfig{
		ID:       "sc-1",
		Name:     "Venue Surge",
		Scope:    engine.Scope{Level: engine.LevelVenueEvent, EntityID: "venue-1"},
		Priority: 2,
		Params: surge.SurgeParams{
			Alpha: 0.3, MinMultiplier: 0.75, MaxMultiplier: 1.8, EMAAlpha: 0.2,
		},
		EffectiveFrom: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Active:        true,
	}
	require.NoError(t, store.SaveConfig(ctx, cfg))

	got, err := store.GetConfig(ctx, "sc-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.Params, got.Params)

	byScope, err := store.GetConfigByScope(ctx, cfg.Scope)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, byScope.ID)

	_, err = store.GetConfig(ctx, "missing")
	assert.True(t, errors.Is(err, engine.ErrConfigNotFound))

	// Inactive configs drop out of the active list
	active, err := store.ListActiveConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	cfg.Active = false
	require.NoError(t, store.SaveConfig(ctx, cfg))
	active, err = store.ListActiveConfigs(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSnapshotUpsertPerBucket(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scope := engine.Scope{Level: engine.LevelVenueEvent, EntityID: "venue-1"}
	bucket := time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC)

	first := surge.DemandSnapshot{
		ID: "snap-a", Scope: scope, HourBucket: bucket,
		BookingsCount: 5, AvailableCapacity: 100, HistoricalAvgPressure: 1.0,
		Timestamp: bucket.Add(10 * time.Minute),
	}
	require.NoError(t, store.SaveSnapshot(ctx, first))

	// Re-emitting the same bucket updates in place
	second := first
	second.BookingsCount = 12
	second.Timestamp = bucket.Add(40 * time.Minute)
	require.NoError(t, store.SaveSnapshot(ctx, second))

	got, err := store.LatestSnapshot(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 12, got.BookingsCount)
	assert.True(t, got.HourBucket.Equal(bucket))

	_, err = store.LatestSnapshot(ctx, engine.Scope{Level: engine.LevelSite, EntityID: "nowhere"})
	assert.True(t, errors.Is(err, engine.ErrNoSnapshot))
}

func TestRunsListNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := surge.Run{
			ID:           []string{"run-a", "run-b", "run-c"}[i],
			ConfigID:     "sc-1",
			Scope:        engine.Scope{Level: engine.LevelVenueEvent, EntityID: "venue-1"},
			TargetBucket: base.Add(time.Duration(i) * time.Hour),
			Multiplier:   1.2,
			Status:       surge.RunCompleted,
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
			CompletedAt:  base.Add(time.Duration(i)*time.Hour + time.Second),
		}
		require.NoError(t, store.SaveRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
}
