/*
store.go - Persistence interfaces for policy layers and hierarchy nodes

PURPOSE:
  Defines the contract between the engine's data model and persistence.
  Resolution itself never touches these: callers pre-fetch layers and
  chains and hand them to the resolver. The stores exist for the outer
  surfaces (API, surge materializer, scheduler).

WRITE SEMANTICS:
  SaveLayer is an upsert keyed by layer id. The surge materializer relies
  on this: it derives a deterministic id per (scope, hour bucket), so a
  concurrent duplicate materialization degrades to an update instead of
  producing two active layers for the same hour.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - engine/store: in-memory, for tests and dev
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// LAYER STORE
// =============================================================================

// LayerStore persists policy layers.
type LayerStore interface {
	// SaveLayer inserts or replaces a layer by id.
	SaveLayer(ctx context.Context, layer PolicyLayer) error

	// GetLayer returns ErrLayerNotFound when absent.
	GetLayer(ctx context.Context, id LayerID) (*PolicyLayer, error)

	// ListLayers returns all layers, ordered by creation time.
	ListLayers(ctx context.Context) ([]PolicyLayer, error)

	// ListLayersForEntities returns active layers scoped to any of the
	// given entities whose validity overlaps [from, to). This is the
	// candidate fetch backing a resolution query; it must be
	// conservative (over-inclusive is safe).
	ListLayersForEntities(ctx context.Context, entityIDs []EntityID, from, to time.Time) ([]PolicyLayer, error)

	// ListDerivedLayers returns layers produced from a surge config,
	// newest first.
	ListDerivedLayers(ctx context.Context, configID ConfigID) ([]PolicyLayer, error)

	// UpdateApprovalStatus moves a layer through its lifecycle.
	UpdateApprovalStatus(ctx context.Context, id LayerID, status ApprovalStatus) error
}

// =============================================================================
// NODE STORE
// =============================================================================

// NodeStore persists hierarchy nodes. The entity hierarchy is owned by
// an external system in production; this store exists so the server can
// run self-contained.
type NodeStore interface {
	SaveNode(ctx context.Context, node HierarchyNode) error

	// GetNode returns ErrNodeNotFound when absent.
	GetNode(ctx context.Context, id EntityID) (*HierarchyNode, error)

	ListNodes(ctx context.Context) ([]HierarchyNode, error)

	// ChainFor walks parent pointers up from the entity and returns the
	// ancestor chain root first, entity last.
	ChainFor(ctx context.Context, id EntityID) (Chain, error)
}
