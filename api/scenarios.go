/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates hierarchy nodes,
	rate/capacity sheets, and surge configuration that demonstrate
	specific resolution features.

AVAILABLE SCENARIOS:

	downtown-campus:  Full 4-level hierarchy with competing rate sheets
	flat-single-site: One site, one flat rate sheet, default capacity
	surge-weekend:    Venue with surge config and a seeded demand snapshot

HOW SCENARIOS WORK:
 1. Create the hierarchy nodes (account down to venue)
 2. Create rate and capacity sheets via factory presets
 3. Optionally create a surge config and seed a demand snapshot

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "downtown-campus"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios upsert by fixed ids, so re-loading one is idempotent. Only
	use in development/demo environments.

SEE ALSO:
  - handlers.go: ListScenarios, LoadScenario handlers
  - factory/presets.go: Layer JSON builders
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rate-engine/engine"
	"github.com/warp/rate-engine/factory"
	"github.com/warp/rate-engine/surge"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "downtown-campus",
		Name:        "Downtown Campus",
		Description: "Account > site > subarea > venue with competing weekday rate sheets and capacity splits",
		Category:    "pricing",
	},
	{
		ID:          "flat-single-site",
		Name:        "Flat Single Site",
		Description: "One site with a flat all-day rate and inherited default capacity",
		Category:    "pricing",
	},
	{
		ID:          "surge-weekend",
		Name:        "Surge Weekend",
		Description: "Venue under demand pressure with a surge config and seeded snapshot",
		Category:    "surge",
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns all available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario populates the database with a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error

	switch req.ScenarioID {
	case "downtown-campus":
		err = h.loadDowntownCampusScenario(ctx)
	case "flat-single-site":
		err = h.loadFlatSingleSiteScenario(ctx)
	case "surge-weekend":
		err = h.loadSurgeWeekendScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"scenario_id": req.ScenarioID,
		"status":      "loaded",
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadDowntownCampusScenario builds the full 4-level hierarchy. The site
// carries a weekday rate sheet, the venue a higher-priority one for peak
// hours, so a resolution across a day shows level dominance and window
// transitions.
func (h *Handler) loadDowntownCampusScenario(ctx context.Context) error {
	accountRate := decimal.NewFromInt(40)
	nodes := []engine.HierarchyNode{
		{
			ID:    "acct-metro",
			Name:  "Metro Venues Inc",
			Level: engine.LevelAccount,
			DefaultHourlyRate: &accountRate,
			DefaultCapacity:   &engine.CapacitySettings{Min: 0, Max: 500, Default: 200, Allocated: 0},
			Timezone:          "America/New_York",
			OperatingHours: &engine.OperatingHours{
				Weekly: map[time.Weekday][]engine.HourSlot{
					time.Monday:    {{Open: engine.MustLocalTime("08:00"), Close: engine.MustLocalTime("22:00")}},
					time.Tuesday:   {{Open: engine.MustLocalTime("08:00"), Close: engine.MustLocalTime("22:00")}},
					time.Wednesday: {{Open: engine.MustLocalTime("08:00"), Close: engine.MustLocalTime("22:00")}},
					time.Thursday:  {{Open: engine.MustLocalTime("08:00"), Close: engine.MustLocalTime("22:00")}},
					time.Friday:    {{Open: engine.MustLocalTime("08:00"), Close: engine.MustLocalTime("23:00")}},
					time.Saturday:  {{Open: engine.MustLocalTime("09:00"), Close: engine.MustLocalTime("23:00")}},
					time.Sunday:    {},
				},
			},
		},
		{
			ID:       "site-downtown",
			Name:     "Downtown Campus",
			Level:    engine.LevelSite,
			ParentID: parentOf("acct-metro"),
			AllocationSplit: &engine.AllocationSplit{Transient: 0.5, Events: 0.3, Reserved: 0.2},
		},
		{
			ID:       "sub-hall-a",
			Name:     "Hall A",
			Level:    engine.LevelSubarea,
			ParentID: parentOf("site-downtown"),
		},
		{
			ID:       "venue-stage-1",
			Name:     "Main Stage",
			Level:    engine.LevelVenueEvent,
			ParentID: parentOf("sub-hall-a"),
		},
	}
	for _, n := range nodes {
		n.CreatedAt = time.Now().UTC()
		if err := h.Store.SaveNode(ctx, n); err != nil {
			return err
		}
	}

	layerJSONs := []factory.LayerJSON{
		factory.WeekdayRateSheetJSON(
			"rs-downtown-weekday", "Downtown Weekday Rates",
			"site", "site-downtown", 10, "2026-01-01T00:00:00Z",
			"09:00", "17:00", "75", "50"),
		factory.WeekdayRateSheetJSON(
			"rs-stage1-peak", "Main Stage Peak Rates",
			"venue_event", "venue-stage-1", 5, "2026-01-01T00:00:00Z",
			"17:00", "22:00", "120", "90"),
		factory.CapacitySheetJSON(
			"cs-hall-a", "Hall A Capacity",
			"subarea", "sub-hall-a", 10, "2026-01-01T00:00:00Z",
			10, 150, 100, 40),
	}
	return h.saveLayerJSONs(ctx, layerJSONs)
}

// loadFlatSingleSiteScenario is the simplest possible setup: one site
// under an account, one flat rate sheet, no capacity sheets at all.
func (h *Handler) loadFlatSingleSiteScenario(ctx context.Context) error {
	nodes := []engine.HierarchyNode{
		{
			ID:              "acct-solo",
			Name:            "Solo Operator",
			Level:           engine.LevelAccount,
			DefaultCapacity: &engine.CapacitySettings{Min: 0, Max: 60, Default: 30, Allocated: 0},
			Timezone:        "UTC",
		},
		{
			ID:       "site-garage",
			Name:     "The Garage",
			Level:    engine.LevelSite,
			ParentID: parentOf("acct-solo"),
		},
	}
	for _, n := range nodes {
		n.CreatedAt = time.Now().UTC()
		if err := h.Store.SaveNode(ctx, n); err != nil {
			return err
		}
	}

	return h.saveLayerJSONs(ctx, []factory.LayerJSON{
		factory.FlatRateSheetJSON(
			"rs-garage-flat", "Garage Flat Rate",
			"site", "site-garage", 1, "2026-01-01T00:00:00Z", "35"),
	})
}

// loadSurgeWeekendScenario reuses the downtown campus and adds a surge
// config for the main stage plus a demand snapshot for the current hour,
// so a materialization can run immediately.
func (h *Handler) loadSurgeWeekendScenario(ctx context.Context) error {
	if err := h.loadDowntownCampusScenario(ctx); err != nil {
		return err
	}

	scope := engine.Scope{Level: engine.LevelVenueEvent, EntityID: "venue-stage-1"}
	now := time.Now().UTC()

	cfg := surge.SurgeConfig{
		ID:       "sc-stage1",
		Name:     "Main Stage Surge",
		Scope:    scope,
		Priority: 1,
		Params: surge.SurgeParams{
			Alpha:         0.3,
			MinMultiplier: 0.8,
			MaxMultiplier: 2.0,
			EMAAlpha:      0.2,
		},
		EffectiveFrom: now.Add(-time.Hour),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := h.Store.SaveConfig(ctx, cfg); err != nil {
		return err
	}

	snapshot := surge.DemandSnapshot{
		ID:                    "snap-stage1-seed",
		Scope:                 scope,
		HourBucket:            now.Truncate(time.Hour),
		BookingsCount:         14,
		TotalAttendees:        420,
		AvailableCapacity:     150,
		HistoricalAvgPressure: 6.0,
		Timestamp:             now,
	}
	return h.Store.SaveSnapshot(ctx, snapshot)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saveLayerJSONs(ctx context.Context, layerJSONs []factory.LayerJSON) error {
	for _, lj := range layerJSONs {
		layer, err := h.LayerFactory.FromJSON(lj)
		if err != nil {
			return fmt.Errorf("scenario layer %s: %w", lj.ID, err)
		}
		if err := h.Store.SaveLayer(ctx, *layer); err != nil {
			return err
		}
	}
	return nil
}

func parentOf(id string) *engine.EntityID {
	eid := engine.EntityID(id)
	return &eid
}
