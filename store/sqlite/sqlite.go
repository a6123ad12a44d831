/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence interfaces using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.LayerStore:   Policy layer persistence (upsert by id)
  engine.NodeStore:    Hierarchy nodes and ancestor chains
  surge.ConfigStore:   Surge configurations
  surge.SnapshotStore: Demand snapshots (latest per scope)
  surge.RunStore:      Materialization run records

KEY TABLES:
  policy_layers:        Rate sheets, capacity sheets, derived surge layers
  hierarchy_nodes:      The four-level spatial tree (read-mostly)
  surge_configs:        Surge derivation configs
  demand_snapshots:     Per-hour-bucket demand signals
  materialization_runs: Audit of surge materializations

UPSERT SEMANTICS:
  SaveLayer uses an id-keyed upsert. The surge materializer derives
  deterministic ids per (scope, hour bucket), so a concurrent duplicate
  materialization updates the existing row instead of creating a second
  active layer for the same hour.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/rates.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/rate-engine/engine"
	"github.com/warp/rate-engine/surge"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Policy layers: operator-created and surge-derived
	CREATE TABLE IF NOT EXISTS policy_layers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scope_level TEXT NOT NULL,
		scope_entity_id TEXT NOT NULL,
		category TEXT NOT NULL,
		kind TEXT NOT NULL,
		priority INTEGER NOT NULL,
		tie_break TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		recurrence_json TEXT NOT NULL,
		windows_json TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		approval_status TEXT NOT NULL,
		source_config_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Candidate fetch for resolution queries (hot path)
	CREATE INDEX IF NOT EXISTS idx_layers_entity_effective
		ON policy_layers(scope_entity_id, effective_from);
	CREATE INDEX IF NOT EXISTS idx_layers_source_config
		ON policy_layers(source_config_id) WHERE source_config_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_layers_status
		ON policy_layers(approval_status);

	-- Hierarchy nodes (owned by the external entity store in production;
	-- persisted here so the server runs self-contained)
	CREATE TABLE IF NOT EXISTS hierarchy_nodes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		level TEXT NOT NULL,
		parent_id TEXT,
		default_capacity_json TEXT,
		default_hourly_rate TEXT,
		allocation_split_json TEXT,
		operating_hours_json TEXT,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_parent
		ON hierarchy_nodes(parent_id);

	-- Surge configurations
	CREATE TABLE IF NOT EXISTS surge_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scope_level TEXT NOT NULL,
		scope_entity_id TEXT NOT NULL,
		priority INTEGER NOT NULL,
		demand_supply_json TEXT NOT NULL,
		params_json TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		windows_json TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_configs_scope
		ON surge_configs(scope_entity_id, scope_level);

	-- Demand snapshots, one per (scope, hour bucket)
	CREATE TABLE IF NOT EXISTS demand_snapshots (
		id TEXT PRIMARY KEY,
		scope_level TEXT NOT NULL,
		scope_entity_id TEXT NOT NULL,
		hour_bucket TEXT NOT NULL,
		bookings_count INTEGER NOT NULL,
		total_attendees INTEGER NOT NULL,
		available_capacity INTEGER NOT NULL,
		historical_avg_pressure REAL NOT NULL,
		timestamp TEXT NOT NULL,
		UNIQUE(scope_level, scope_entity_id, hour_bucket)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_scope_time
		ON demand_snapshots(scope_entity_id, scope_level, timestamp DESC);

	-- Materialization runs (audit)
	CREATE TABLE IF NOT EXISTS materialization_runs (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL,
		scope_level TEXT NOT NULL,
		scope_entity_id TEXT NOT NULL,
		target_bucket TEXT NOT NULL,
		multiplier REAL,
		created_layer_id TEXT,
		superseded_json TEXT,
		status TEXT NOT NULL,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_config
		ON materialization_runs(config_id, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LAYER STORE
// =============================================================================

// SaveLayer inserts or replaces a layer by id.
func (s *Store) SaveLayer(ctx context.Context, layer engine.PolicyLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recurrence, err := json.Marshal(layer.Recurrence)
	if err != nil {
		return fmt.Errorf("marshal recurrence: %w", err)
	}
	windows, err := json.Marshal(layer.Windows)
	if err != nil {
		return fmt.Errorf("marshal windows: %w", err)
	}

	now := time.Now().UTC()
	createdAt := layer.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_layers
			(id, name, scope_level, scope_entity_id, category, kind, priority,
			 tie_break, effective_from, effective_to, recurrence_json, windows_json,
			 active, approval_status, source_config_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			scope_level = excluded.scope_level,
			scope_entity_id = excluded.scope_entity_id,
			category = excluded.category,
			kind = excluded.kind,
			priority = excluded.priority,
			tie_break = excluded.tie_break,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			recurrence_json = excluded.recurrence_json,
			windows_json = excluded.windows_json,
			active = excluded.active,
			approval_status = excluded.approval_status,
			source_config_id = excluded.source_config_id,
			updated_at = excluded.updated_at`,
		string(layer.ID), layer.Name, string(layer.Scope.Level), string(layer.Scope.EntityID),
		string(layer.Category), string(layer.Kind), layer.Priority, string(layer.TieBreak),
		formatTime(layer.EffectiveFrom), formatTimePtr(layer.EffectiveTo),
		string(recurrence), string(windows), boolToInt(layer.Active),
		string(layer.ApprovalStatus), nullableString(string(layer.SourceConfigID)),
		formatTime(createdAt), formatTime(now),
	)
	return err
}

// GetLayer returns engine.ErrLayerNotFound when absent.
func (s *Store) GetLayer(ctx context.Context, id engine.LayerID) (*engine.PolicyLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, layerSelect+` WHERE id = ?`, string(id))
	layer, err := scanLayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrLayerNotFound
	}
	return layer, err
}

func (s *Store) ListLayers(ctx context.Context) ([]engine.PolicyLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLayers(ctx, layerSelect+` ORDER BY created_at`)
}

// ListLayersForEntities is the candidate fetch backing a resolution
// query. Conservative on time (temporal overlap only, no recurrence
// matching) but strict on lifecycle: only approved layers price, so
// draft, superseded, and rejected layers never reach the resolver.
func (s *Store) ListLayersForEntities(ctx context.Context, entityIDs []engine.EntityID, from, to time.Time) ([]engine.PolicyLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(entityIDs) == 0 {
		return nil, nil
	}

	query := layerSelect + ` WHERE active = 1 AND approval_status = 'approved'
		AND effective_from < ?
		AND (effective_to IS NULL OR effective_to > ?)
		AND scope_entity_id IN (`
	args := []any{formatTime(to), formatTime(from)}
	for i, id := range entityIDs {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(id))
	}
	query += `) ORDER BY created_at`

	return s.queryLayers(ctx, query, args...)
}

func (s *Store) ListDerivedLayers(ctx context.Context, configID engine.ConfigID) ([]engine.PolicyLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLayers(ctx,
		layerSelect+` WHERE source_config_id = ? ORDER BY created_at DESC`,
		string(configID))
}

func (s *Store) UpdateApprovalStatus(ctx context.Context, id engine.LayerID, status engine.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE policy_layers SET approval_status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now().UTC()), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrLayerNotFound
	}
	return nil
}

const layerSelect = `
	SELECT id, name, scope_level, scope_entity_id, category, kind, priority,
	       tie_break, effective_from, effective_to, recurrence_json,
	       windows_json, active, approval_status, source_config_id,
	       created_at, updated_at
	FROM policy_layers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLayer(row rowScanner) (*engine.PolicyLayer, error) {
	var (
		layer                       engine.PolicyLayer
		id, level, entityID         string
		category, kind              string
		tieBreak, status            string
		effectiveFrom, createdAt    string
		updatedAt                   string
		effectiveTo, sourceConfigID sql.NullString
		recurrenceJSON, windowsJSON string
		active                      int
	)

	err := row.Scan(&id, &layer.Name, &level, &entityID, &category, &kind,
		&layer.Priority, &tieBreak, &effectiveFrom, &effectiveTo,
		&recurrenceJSON, &windowsJSON, &active, &status, &sourceConfigID,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	layer.ID = engine.LayerID(id)
	layer.Scope = engine.Scope{Level: engine.Level(level), EntityID: engine.EntityID(entityID)}
	layer.Category = engine.LayerCategory(category)
	layer.Kind = engine.LayerKind(kind)
	layer.TieBreak = engine.TieBreak(tieBreak)
	layer.Active = active != 0
	layer.ApprovalStatus = engine.ApprovalStatus(status)
	if sourceConfigID.Valid {
		layer.SourceConfigID = engine.ConfigID(sourceConfigID.String)
	}

	if layer.EffectiveFrom, err = parseTime(effectiveFrom); err != nil {
		return nil, err
	}
	if effectiveTo.Valid {
		t, err := parseTime(effectiveTo.String)
		if err != nil {
			return nil, err
		}
		layer.EffectiveTo = &t
	}
	if layer.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if layer.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(recurrenceJSON), &layer.Recurrence); err != nil {
		return nil, fmt.Errorf("unmarshal recurrence: %w", err)
	}
	if err := json.Unmarshal([]byte(windowsJSON), &layer.Windows); err != nil {
		return nil, fmt.Errorf("unmarshal windows: %w", err)
	}
	return &layer, nil
}

func (s *Store) queryLayers(ctx context.Context, query string, args ...any) ([]engine.PolicyLayer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.PolicyLayer
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *layer)
	}
	return out, rows.Err()
}

// =============================================================================
// NODE STORE
// =============================================================================

func (s *Store) SaveNode(ctx context.Context, node engine.HierarchyNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacityJSON, err := marshalPtr(node.DefaultCapacity)
	if err != nil {
		return err
	}
	splitJSON, err := marshalPtr(node.AllocationSplit)
	if err != nil {
		return err
	}
	hoursJSON, err := marshalPtr(node.OperatingHours)
	if err != nil {
		return err
	}

	var rate any
	if node.DefaultHourlyRate != nil {
		rate = node.DefaultHourlyRate.String()
	}
	var parent any
	if node.ParentID != nil {
		parent = string(*node.ParentID)
	}

	createdAt := node.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO hierarchy_nodes
			(id, name, level, parent_id, default_capacity_json,
			 default_hourly_rate, allocation_split_json, operating_hours_json,
			 timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(node.ID), node.Name, string(node.Level), parent,
		capacityJSON, rate, splitJSON, hoursJSON,
		defaultTimezone(node.Timezone), formatTime(createdAt))
	return err
}

// GetNode returns engine.ErrNodeNotFound when absent.
func (s *Store) GetNode(ctx context.Context, id engine.EntityID) (*engine.HierarchyNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getNodeLocked(ctx, id)
}

func (s *Store) getNodeLocked(ctx context.Context, id engine.EntityID) (*engine.HierarchyNode, error) {
	row := s.db.QueryRowContext(ctx, nodeSelect+` WHERE id = ?`, string(id))
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNodeNotFound
	}
	return node, err
}

func (s *Store) ListNodes(ctx context.Context) ([]engine.HierarchyNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, nodeSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.HierarchyNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *node)
	}
	return out, rows.Err()
}

// ChainFor walks parent pointers up from the entity and returns the
// ancestor chain root first. Depth is bounded by the four-level
// hierarchy; the loop cap guards against cycles in bad data.
func (s *Store) ChainFor(ctx context.Context, id engine.EntityID) (engine.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reversed []engine.HierarchyNode
	cursor := id
	for i := 0; i < 8; i++ {
		node, err := s.getNodeLocked(ctx, cursor)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, *node)
		if node.ParentID == nil {
			chain := make(engine.Chain, len(reversed))
			for j, n := range reversed {
				chain[len(reversed)-1-j] = n
			}
			return chain, nil
		}
		cursor = *node.ParentID
	}
	return nil, engine.ErrNodeNotFound
}

const nodeSelect = `
	SELECT id, name, level, parent_id, default_capacity_json,
	       default_hourly_rate, allocation_split_json, operating_hours_json,
	       timezone, created_at
	FROM hierarchy_nodes`

func scanNode(row rowScanner) (*engine.HierarchyNode, error) {
	var (
		node                 engine.HierarchyNode
		id, name, level      string
		parent, capacityJSON sql.NullString
		rate, splitJSON      sql.NullString
		hoursJSON            sql.NullString
		timezone, createdAt  string
	)

	err := row.Scan(&id, &name, &level, &parent, &capacityJSON, &rate,
		&splitJSON, &hoursJSON, &timezone, &createdAt)
	if err != nil {
		return nil, err
	}

	node.ID = engine.EntityID(id)
	node.Name = name
	node.Level = engine.Level(level)
	node.Timezone = timezone
	if parent.Valid {
		pid := engine.EntityID(parent.String)
		node.ParentID = &pid
	}
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return nil, fmt.Errorf("parse default rate: %w", err)
		}
		node.DefaultHourlyRate = &d
	}
	if err := unmarshalPtr(capacityJSON, &node.DefaultCapacity); err != nil {
		return nil, err
	}
	if err := unmarshalPtr(splitJSON, &node.AllocationSplit); err != nil {
		return nil, err
	}
	if err := unmarshalPtr(hoursJSON, &node.OperatingHours); err != nil {
		return nil, err
	}
	if node.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &node, nil
}

// =============================================================================
// SURGE CONFIG STORE
// =============================================================================

func (s *Store) SaveConfig(ctx context.Context, cfg surge.SurgeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	demandJSON, err := json.Marshal(cfg.DemandSupply)
	if err != nil {
		return err
	}
	paramsJSON, err := json.Marshal(cfg.Params)
	if err != nil {
		return err
	}
	windowsJSON, err := json.Marshal(cfg.Windows)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO surge_configs
			(id, name, scope_level, scope_entity_id, priority,
			 demand_supply_json, params_json, effective_from, effective_to,
			 windows_json, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(cfg.ID), cfg.Name, string(cfg.Scope.Level), string(cfg.Scope.EntityID),
		cfg.Priority, string(demandJSON), string(paramsJSON),
		formatTime(cfg.EffectiveFrom), formatTimePtr(cfg.EffectiveTo),
		string(windowsJSON), boolToInt(cfg.Active), formatTime(createdAt), formatTime(now))
	return err
}

// GetConfig returns engine.ErrConfigNotFound when absent.
func (s *Store) GetConfig(ctx context.Context, id engine.ConfigID) (*surge.SurgeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, configSelect+` WHERE id = ?`, string(id))
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrConfigNotFound
	}
	return cfg, err
}

func (s *Store) GetConfigByScope(ctx context.Context, scope engine.Scope) (*surge.SurgeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		configSelect+` WHERE scope_level = ? AND scope_entity_id = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`,
		string(scope.Level), string(scope.EntityID))
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrConfigNotFound
	}
	return cfg, err
}

func (s *Store) ListActiveConfigs(ctx context.Context) ([]surge.SurgeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, configSelect+` WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []surge.SurgeConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

const configSelect = `
	SELECT id, name, scope_level, scope_entity_id, priority,
	       demand_supply_json, params_json, effective_from, effective_to,
	       windows_json, active, created_at, updated_at
	FROM surge_configs`

func scanConfig(row rowScanner) (*surge.SurgeConfig, error) {
	var (
		cfg                       surge.SurgeConfig
		id, name, level, entityID string
		demandJSON, paramsJSON    string
		effectiveFrom             string
		effectiveTo               sql.NullString
		windowsJSON               string
		active                    int
		createdAt, updatedAt      string
	)

	err := row.Scan(&id, &name, &level, &entityID, &cfg.Priority,
		&demandJSON, &paramsJSON, &effectiveFrom, &effectiveTo,
		&windowsJSON, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	cfg.ID = engine.ConfigID(id)
	cfg.Name = name
	cfg.Scope = engine.Scope{Level: engine.Level(level), EntityID: engine.EntityID(entityID)}
	cfg.Active = active != 0

	if err := json.Unmarshal([]byte(demandJSON), &cfg.DemandSupply); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &cfg.Params); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(windowsJSON), &cfg.Windows); err != nil {
		return nil, err
	}
	if cfg.EffectiveFrom, err = parseTime(effectiveFrom); err != nil {
		return nil, err
	}
	if effectiveTo.Valid {
		t, err := parseTime(effectiveTo.String)
		if err != nil {
			return nil, err
		}
		cfg.EffectiveTo = &t
	}
	if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

// SaveSnapshot upserts by (scope, hour bucket): the pipeline may emit a
// bucket more than once as the hour fills in.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot surge.DemandSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO demand_snapshots
			(id, scope_level, scope_entity_id, hour_bucket, bookings_count,
			 total_attendees, available_capacity, historical_avg_pressure, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope_level, scope_entity_id, hour_bucket) DO UPDATE SET
			bookings_count = excluded.bookings_count,
			total_attendees = excluded.total_attendees,
			available_capacity = excluded.available_capacity,
			historical_avg_pressure = excluded.historical_avg_pressure,
			timestamp = excluded.timestamp`,
		snapshot.ID, string(snapshot.Scope.Level), string(snapshot.Scope.EntityID),
		formatTime(snapshot.HourBucket), snapshot.BookingsCount,
		snapshot.TotalAttendees, snapshot.AvailableCapacity,
		snapshot.HistoricalAvgPressure, formatTime(snapshot.Timestamp))
	return err
}

// LatestSnapshot returns engine.ErrNoSnapshot when the scope has none.
func (s *Store) LatestSnapshot(ctx context.Context, scope engine.Scope) (*surge.DemandSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, scope_level, scope_entity_id, hour_bucket, bookings_count,
		       total_attendees, available_capacity, historical_avg_pressure, timestamp
		FROM demand_snapshots
		WHERE scope_level = ? AND scope_entity_id = ?
		ORDER BY timestamp DESC LIMIT 1`,
		string(scope.Level), string(scope.EntityID))

	var (
		snap            surge.DemandSnapshot
		level, entityID string
		bucket, ts      string
	)
	err := row.Scan(&snap.ID, &level, &entityID, &bucket, &snap.BookingsCount,
		&snap.TotalAttendees, &snap.AvailableCapacity, &snap.HistoricalAvgPressure, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	snap.Scope = engine.Scope{Level: engine.Level(level), EntityID: engine.EntityID(entityID)}
	if snap.HourBucket, err = parseTime(bucket); err != nil {
		return nil, err
	}
	if snap.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	return &snap, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run surge.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	supersededJSON, err := json.Marshal(run.SupersededIDs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO materialization_runs
			(id, config_id, scope_level, scope_entity_id, target_bucket,
			 multiplier, created_layer_id, superseded_json, status, error,
			 started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.ConfigID), string(run.Scope.Level), string(run.Scope.EntityID),
		formatTime(run.TargetBucket), run.Multiplier, string(run.CreatedLayerID),
		string(supersededJSON), string(run.Status), run.Error,
		formatTime(run.StartedAt), formatTime(run.CompletedAt))
	return err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]surge.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config_id, scope_level, scope_entity_id, target_bucket,
		       multiplier, created_layer_id, superseded_json, status, error,
		       started_at, completed_at
		FROM materialization_runs
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []surge.Run
	for rows.Next() {
		var (
			run             surge.Run
			configID        string
			level, entityID string
			bucket          string
			layerID         string
			supersededJSON  string
			status          string
			started, done   string
		)
		err := rows.Scan(&run.ID, &configID, &level, &entityID, &bucket,
			&run.Multiplier, &layerID, &supersededJSON, &status, &run.Error,
			&started, &done)
		if err != nil {
			return nil, err
		}
		run.ConfigID = engine.ConfigID(configID)
		run.Scope = engine.Scope{Level: engine.Level(level), EntityID: engine.EntityID(entityID)}
		run.CreatedLayerID = engine.LayerID(layerID)
		run.Status = surge.RunStatus(status)
		if err := json.Unmarshal([]byte(supersededJSON), &run.SupersededIDs); err != nil {
			return nil, err
		}
		if run.TargetBucket, err = parseTime(bucket); err != nil {
			return nil, err
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.CompletedAt, err = parseTime(done); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func defaultTimezone(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

func marshalPtr[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalPtr[T any](src sql.NullString, dst **T) error {
	if !src.Valid || src.String == "" || src.String == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(src.String), &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}
