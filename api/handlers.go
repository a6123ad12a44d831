/*
handlers.go - HTTP API handlers for the rate & capacity resolution engine

PURPOSE:
  Exposes the resolution engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Resolution:
    POST   /api/resolve                Resolve price + capacity for an interval

  Layers:
    GET    /api/layers                 List all policy layers
    POST   /api/layers                 Create layer from JSON
    GET    /api/layers/{id}            Get layer details
    POST   /api/layers/{id}/approve    Approve a draft/pending layer
    POST   /api/layers/{id}/reject     Reject a draft/pending layer
    POST   /api/layers/{id}/deactivate Take a layer out of pricing

  Hierarchy:
    GET    /api/nodes                  List hierarchy nodes
    POST   /api/nodes                  Create/replace a node
    GET    /api/nodes/{id}             Get node details

  Surge:
    GET    /api/surge-configs          List surge configs
    POST   /api/surge-configs          Create/replace a surge config
    GET    /api/surge-configs/{id}     Get config details
    POST   /api/snapshots              Ingest a demand snapshot
    POST   /api/materialize            Trigger materialization now
    GET    /api/runs                   List materialization runs

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid ranges, invalid surge parameters
  - 404: Layer/node/config not found
  - 409: Concurrent materialization conflict
  - 422: No applicable policy anywhere in the chain (decision log attached)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/rate-engine/engine"
	"github.com/warp/rate-engine/factory"
	"github.com/warp/rate-engine/store/sqlite"
	"github.com/warp/rate-engine/surge"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Resolver     *engine.Resolver
	Materializer *surge.Materializer
	LayerFactory *factory.LayerFactory

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, defaultCurrency string) *Handler {
	return &Handler{
		Store:        store,
		Resolver:     engine.NewResolver(defaultCurrency),
		Materializer: surge.NewMaterializer(store, store, store, store),
		LayerFactory: factory.NewLayerFactory(),
	}
}

// =============================================================================
// RESOLUTION HANDLERS
// =============================================================================

// Resolve answers a price + capacity query for one entity and interval.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use RFC3339)", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end (use RFC3339)", err)
		return
	}

	ctx := r.Context()
	chain, err := h.Store.ChainFor(ctx, engine.EntityID(req.EntityID))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entityIDs := make([]engine.EntityID, len(chain))
	for i, n := range chain {
		entityIDs[i] = n.ID
	}
	layers, err := h.Store.ListLayersForEntities(ctx, entityIDs, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load layers", err)
		return
	}

	result, err := h.Resolver.Resolve(ctx, engine.ResolutionQuery{
		EntityID:        engine.EntityID(req.EntityID),
		Chain:           chain,
		CandidateLayers: layers,
		Start:           start,
		End:             end,
		Timezone:        req.Timezone,
		Currency:        req.Currency,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResolveResponse(result))
}

// =============================================================================
// LAYER HANDLERS
// =============================================================================

// ListLayers returns all policy layers.
func (h *Handler) ListLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := h.Store.ListLayers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list layers", err)
		return
	}

	dtos := make([]LayerDTO, len(layers))
	for i, l := range layers {
		dtos[i] = h.toLayerDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLayer creates a policy layer from its JSON definition.
func (h *Handler) CreateLayer(w http.ResponseWriter, r *http.Request) {
	var lj factory.LayerJSON
	if err := json.NewDecoder(r.Body).Decode(&lj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	layer, err := h.LayerFactory.FromJSON(lj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid layer definition", err)
		return
	}

	if err := h.Store.SaveLayer(r.Context(), *layer); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save layer", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toLayerDTO(*layer))
}

// GetLayer returns a single policy layer.
func (h *Handler) GetLayer(w http.ResponseWriter, r *http.Request) {
	id := engine.LayerID(chi.URLParam(r, "id"))

	layer, err := h.Store.GetLayer(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toLayerDTO(*layer))
}

// ApproveLayer moves a layer to APPROVED.
func (h *Handler) ApproveLayer(w http.ResponseWriter, r *http.Request) {
	h.updateLayerStatus(w, r, engine.StatusApproved)
}

// RejectLayer moves a layer to REJECTED.
func (h *Handler) RejectLayer(w http.ResponseWriter, r *http.Request) {
	h.updateLayerStatus(w, r, engine.StatusRejected)
}

// DeactivateLayer flips a layer inactive so it stops pricing, without
// touching its approval status. Works on layers in any lifecycle state.
func (h *Handler) DeactivateLayer(w http.ResponseWriter, r *http.Request) {
	id := engine.LayerID(chi.URLParam(r, "id"))
	ctx := r.Context()

	layer, err := h.Store.GetLayer(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	layer.Active = false
	if err := h.Store.SaveLayer(ctx, *layer); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save layer", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     string(id),
		"active": false,
	})
}

func (h *Handler) updateLayerStatus(w http.ResponseWriter, r *http.Request, status engine.ApprovalStatus) {
	id := engine.LayerID(chi.URLParam(r, "id"))
	ctx := r.Context()

	layer, err := h.Store.GetLayer(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if layer.ApprovalStatus != engine.StatusDraft && layer.ApprovalStatus != engine.StatusPending {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("Layer is %s, only draft/pending layers can transition", layer.ApprovalStatus), nil)
		return
	}

	if err := h.Store.UpdateApprovalStatus(ctx, id, status); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              string(id),
		"approval_status": string(status),
	})
}

// =============================================================================
// HIERARCHY HANDLERS
// =============================================================================

// ListNodes returns all hierarchy nodes.
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.Store.ListNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list nodes", err)
		return
	}

	dtos := make([]NodeDTO, len(nodes))
	for i, n := range nodes {
		dtos[i] = toNodeDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetNode returns a single hierarchy node.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := engine.EntityID(chi.URLParam(r, "id"))

	node, err := h.Store.GetNode(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNodeDTO(*node))
}

// CreateNode creates or replaces a hierarchy node.
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	node, err := nodeFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid node definition", err)
		return
	}

	if err := h.Store.SaveNode(r.Context(), *node); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save node", err)
		return
	}

	writeJSON(w, http.StatusCreated, toNodeDTO(*node))
}

// =============================================================================
// SURGE HANDLERS
// =============================================================================

// ListSurgeConfigs returns all active surge configs.
func (h *Handler) ListSurgeConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Store.ListActiveConfigs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list surge configs", err)
		return
	}

	dtos := make([]SurgeConfigDTO, len(configs))
	for i, c := range configs {
		dtos[i] = toConfigDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSurgeConfig returns a single surge config.
func (h *Handler) GetSurgeConfig(w http.ResponseWriter, r *http.Request) {
	id := engine.ConfigID(chi.URLParam(r, "id"))

	cfg, err := h.Store.GetConfig(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigDTO(*cfg))
}

// CreateSurgeConfig creates or replaces a surge config.
func (h *Handler) CreateSurgeConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateSurgeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := configFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid surge config", err)
		return
	}

	if err := h.Store.SaveConfig(r.Context(), *cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save surge config", err)
		return
	}

	writeJSON(w, http.StatusCreated, toConfigDTO(*cfg))
}

// IngestSnapshot stores one demand snapshot for a scope/hour bucket.
func (h *Handler) IngestSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	level, err := engine.ParseLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid level", err)
		return
	}
	bucket, err := time.Parse(time.RFC3339, req.HourBucket)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hour_bucket (use RFC3339)", err)
		return
	}

	snapshot := surge.DemandSnapshot{
		ID:                    fmt.Sprintf("snap-%d", time.Now().UnixNano()),
		Scope:                 engine.Scope{Level: level, EntityID: engine.EntityID(req.EntityID)},
		HourBucket:            bucket.Truncate(time.Hour),
		BookingsCount:         req.BookingsCount,
		TotalAttendees:        req.TotalAttendees,
		AvailableCapacity:     req.AvailableCapacity,
		HistoricalAvgPressure: req.HistoricalAvgPressure,
		Timestamp:             time.Now().UTC(),
	}

	if err := h.Store.SaveSnapshot(r.Context(), snapshot); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save snapshot", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          snapshot.ID,
		"scope":       snapshot.Scope.String(),
		"hour_bucket": snapshot.HourBucket.Format(time.RFC3339),
	})
}

// TriggerMaterialize runs surge materialization now, by config id or by
// scope.
func (h *Handler) TriggerMaterialize(w http.ResponseWriter, r *http.Request) {
	var req MaterializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var result *surge.Result
	var err error

	switch {
	case req.ConfigID != "":
		result, err = h.Materializer.Materialize(ctx, engine.ConfigID(req.ConfigID))
	case req.EntityID != "":
		level, perr := engine.ParseLevel(req.Level)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid level", perr)
			return
		}
		result, err = h.Materializer.MaterializeScope(ctx, engine.Scope{
			Level:    level,
			EntityID: engine.EntityID(req.EntityID),
		})
	default:
		writeError(w, http.StatusBadRequest, "Either config_id or level+entity_id is required", nil)
		return
	}

	if err != nil {
		writeDomainError(w, err)
		return
	}

	superseded := make([]string, len(result.SupersededIDs))
	for i, id := range result.SupersededIDs {
		superseded[i] = string(id)
	}
	writeJSON(w, http.StatusOK, MaterializeResponse{
		CreatedLayerID: string(result.CreatedLayerID),
		Multiplier:     result.Multiplier,
		ApprovalStatus: string(result.ApprovalStatus),
		TargetBucket:   result.TargetBucket.Format(time.RFC3339),
		SupersededIDs:  superseded,
	})
}

// ListRuns returns recent materialization runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func (h *Handler) toLayerDTO(l engine.PolicyLayer) LayerDTO {
	return LayerDTO{
		ID:             string(l.ID),
		Name:           l.Name,
		Level:          string(l.Scope.Level),
		EntityID:       string(l.Scope.EntityID),
		Category:       string(l.Category),
		Kind:           string(l.Kind),
		Priority:       l.Priority,
		ApprovalStatus: string(l.ApprovalStatus),
		Active:         l.Active,
		Config:         h.LayerFactory.ToJSON(l),
		CreatedAt:      l.CreatedAt.Format(time.RFC3339),
	}
}

func toNodeDTO(n engine.HierarchyNode) NodeDTO {
	dto := NodeDTO{
		ID:             string(n.ID),
		Name:           n.Name,
		Level:          string(n.Level),
		Timezone:       n.Timezone,
		OperatingHours: n.OperatingHours,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339),
	}
	if n.ParentID != nil {
		dto.ParentID = string(*n.ParentID)
	}
	if n.DefaultHourlyRate != nil {
		dto.DefaultHourlyRate = n.DefaultHourlyRate.String()
	}
	if n.DefaultCapacity != nil {
		dto.DefaultCapacity = &factory.CapacityJSON{
			Min:       n.DefaultCapacity.Min,
			Max:       n.DefaultCapacity.Max,
			Default:   n.DefaultCapacity.Default,
			Allocated: n.DefaultCapacity.Allocated,
		}
	}
	if n.AllocationSplit != nil {
		dto.AllocationSplit = &AllocationSplitDTO{
			Transient: n.AllocationSplit.Transient,
			Events:    n.AllocationSplit.Events,
			Reserved:  n.AllocationSplit.Reserved,
		}
	}
	return dto
}

func nodeFromRequest(req CreateNodeRequest) (*engine.HierarchyNode, error) {
	level, err := engine.ParseLevel(req.Level)
	if err != nil {
		return nil, err
	}

	node := &engine.HierarchyNode{
		ID:             engine.EntityID(req.ID),
		Name:           req.Name,
		Level:          level,
		Timezone:       req.Timezone,
		OperatingHours: req.OperatingHours,
		CreatedAt:      time.Now().UTC(),
	}
	if req.ID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if req.ParentID != "" {
		pid := engine.EntityID(req.ParentID)
		node.ParentID = &pid
	}
	if req.DefaultHourlyRate != "" {
		rate, err := decimal.NewFromString(req.DefaultHourlyRate)
		if err != nil {
			return nil, fmt.Errorf("invalid default_hourly_rate: %w", err)
		}
		node.DefaultHourlyRate = &rate
	}
	if req.DefaultCapacity != nil {
		node.DefaultCapacity = &engine.CapacitySettings{
			Min:       req.DefaultCapacity.Min,
			Max:       req.DefaultCapacity.Max,
			Default:   req.DefaultCapacity.Default,
			Allocated: req.DefaultCapacity.Allocated,
		}
	}
	if req.AllocationSplit != nil {
		node.AllocationSplit = &engine.AllocationSplit{
			Transient: req.AllocationSplit.Transient,
			Events:    req.AllocationSplit.Events,
			Reserved:  req.AllocationSplit.Reserved,
		}
	}
	return node, nil
}

func toConfigDTO(c surge.SurgeConfig) SurgeConfigDTO {
	dto := SurgeConfigDTO{
		ID:       string(c.ID),
		Name:     c.Name,
		Level:    string(c.Scope.Level),
		EntityID: string(c.Scope.EntityID),
		Priority: c.Priority,
		Params: SurgeParamsDTO{
			Alpha:         c.Params.Alpha,
			MinMultiplier: c.Params.MinMultiplier,
			MaxMultiplier: c.Params.MaxMultiplier,
			EMAAlpha:      c.Params.EMAAlpha,
		},
		EffectiveFrom: c.EffectiveFrom.Format(time.RFC3339),
		Active:        c.Active,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
	if c.EffectiveTo != nil {
		dto.EffectiveTo = c.EffectiveTo.Format(time.RFC3339)
	}
	return dto
}

func configFromRequest(req CreateSurgeConfigRequest) (*surge.SurgeConfig, error) {
	level, err := engine.ParseLevel(req.Level)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	effectiveFrom := now
	if req.EffectiveFrom != "" {
		effectiveFrom, err = time.Parse(time.RFC3339, req.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("invalid effective_from: %w", err)
		}
	}

	cfg := &surge.SurgeConfig{
		ID:       engine.ConfigID(req.ID),
		Name:     req.Name,
		Scope:    engine.Scope{Level: level, EntityID: engine.EntityID(req.EntityID)},
		Priority: req.Priority,
		Params: surge.SurgeParams{
			Alpha:         req.Params.Alpha,
			MinMultiplier: req.Params.MinMultiplier,
			MaxMultiplier: req.Params.MaxMultiplier,
			EMAAlpha:      req.Params.EMAAlpha,
		},
		EffectiveFrom: effectiveFrom,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.EffectiveTo != "" {
		to, err := time.Parse(time.RFC3339, req.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("invalid effective_to: %w", err)
		}
		cfg.EffectiveTo = &to
	}
	if req.Active != nil {
		cfg.Active = *req.Active
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toRunDTO(run surge.Run) RunDTO {
	dto := RunDTO{
		ID:             run.ID,
		ConfigID:       string(run.ConfigID),
		Scope:          run.Scope.String(),
		TargetBucket:   run.TargetBucket.Format(time.RFC3339),
		Multiplier:     run.Multiplier,
		CreatedLayerID: string(run.CreatedLayerID),
		Status:         string(run.Status),
		Error:          run.Error,
		StartedAt:      run.StartedAt.Format(time.RFC3339),
	}
	if !run.CompletedAt.IsZero() {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func toResolveResponse(result *engine.ResolutionResult) ResolveResponse {
	resp := ResolveResponse{
		EntityID:    string(result.EntityID),
		Start:       result.Start.Format(time.RFC3339),
		End:         result.End.Format(time.RFC3339),
		TotalPrice:  result.TotalPrice.StringFixed(2),
		Currency:    result.Currency,
		TotalHours:  result.TotalHours,
		Breakdown:   make([]PriceLineDTO, len(result.Breakdown)),
		DecisionLog: toDecisionLogDTO(result.DecisionLog),
	}

	for i, line := range result.Breakdown {
		resp.Breakdown[i] = PriceLineDTO{
			Start:         line.Start.Format(time.RFC3339),
			End:           line.End.Format(time.RFC3339),
			PricePerHour:  line.PricePerHour.String(),
			Hours:         line.Hours,
			Subtotal:      line.Subtotal.StringFixed(2),
			RatesheetID:   string(line.RatesheetID),
			RatesheetName: line.RatesheetName,
			AppliedRule:   line.AppliedRule,
		}
	}

	capacity := result.Capacity
	capDTO := CapacityResultDTO{
		Lines:            make([]CapacityLineDTO, len(capacity.Lines)),
		Percentages:      capacity.Percentages,
		TotalHours:       capacity.Metadata.TotalHours,
		AvailableHours:   capacity.Metadata.AvailableHours,
		UnavailableHours: capacity.Metadata.UnavailableHours,
	}
	capDTO.Allocated.Transient = capacity.Allocated.Transient
	capDTO.Allocated.Events = capacity.Allocated.Events
	capDTO.Allocated.Reserved = capacity.Allocated.Reserved
	capDTO.Unallocated.Unavailable = capacity.Unallocated.Unavailable
	capDTO.Unallocated.ReadyToUse = capacity.Unallocated.ReadyToUse

	for i, line := range capacity.Lines {
		capDTO.Lines[i] = CapacityLineDTO{
			Start:     line.Start.Format(time.RFC3339),
			End:       line.End.Format(time.RFC3339),
			Hours:     line.Hours,
			Min:       line.Min,
			Max:       line.Max,
			Default:   line.Default,
			Allocated: line.Allocated,
			Available: line.Available,
			SheetID:   string(line.SheetID),
			SheetName: line.SheetName,
		}
	}
	resp.Capacity = capDTO

	return resp
}

func toDecisionLogDTO(log engine.DecisionLog) []SegmentDecisionDTO {
	dtos := make([]SegmentDecisionDTO, len(log))
	for i, d := range log {
		dto := SegmentDecisionDTO{
			SegmentStart:      d.SegmentStart.Format(time.RFC3339),
			SegmentEnd:        d.SegmentEnd.Format(time.RFC3339),
			LocalTime:         d.LocalTime.String(),
			Candidates:        make([]CandidateDTO, len(d.Candidates)),
			WinnerID:          string(d.WinnerID),
			AppliedRule:       d.AppliedRule,
			SurgeLayerID:      string(d.SurgeLayerID),
			UsedDefaultRate:   d.UsedDefaultRate,
			DefaultRateSource: d.DefaultRateSource,
		}
		if d.SurgeMultiplier != nil {
			dto.SurgeMultiplier = d.SurgeMultiplier.String()
		}
		for j, c := range d.Candidates {
			dto.Candidates[j] = CandidateDTO{
				LayerID:   string(c.LayerID),
				LayerName: c.LayerName,
				Level:     string(c.Level),
				Priority:  c.Priority,
				Value:     c.Value.String(),
				Rejected:  c.Rejected,
				Reason:    string(c.Reason),
				Detail:    c.Detail,
			}
		}
		dtos[i] = dto
	}
	return dtos
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps engine/surge errors onto HTTP statuses. A
// NoApplicablePolicy failure carries its decision log so callers can see
// why every candidate lost.
func writeDomainError(w http.ResponseWriter, err error) {
	var napErr *engine.NoApplicablePolicyError
	if errors.As(err, &napErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":         "No applicable policy for interval",
			"details":       napErr.Error(),
			"entity_id":     string(napErr.EntityID),
			"segment_start": napErr.SegmentStart.Format(time.RFC3339),
			"segment_end":   napErr.SegmentEnd.Format(time.RFC3339),
			"decision_log":  toDecisionLogDTO(napErr.Log),
		})
		return
	}

	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
