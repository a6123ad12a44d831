// Package store provides in-memory implementations of the engine's
// persistence interfaces, for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/rate-engine/engine"
)

// =============================================================================
// MEMORY LAYER STORE
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	layers map[engine.LayerID]engine.PolicyLayer
	nodes  map[engine.EntityID]engine.HierarchyNode
	seq    int
}

func NewMemory() *Memory {
	return &Memory{
		layers: make(map[engine.LayerID]engine.PolicyLayer),
		nodes:  make(map[engine.EntityID]engine.HierarchyNode),
	}
}

// SaveLayer inserts or replaces by id.
func (m *Memory) SaveLayer(_ context.Context, layer engine.PolicyLayer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.layers[layer.ID]; ok {
		layer.CreatedAt = existing.CreatedAt
	} else if layer.CreatedAt.IsZero() {
		m.seq++
		layer.CreatedAt = time.Now().Add(time.Duration(m.seq)) // stable ordering
	}
	m.layers[layer.ID] = layer
	return nil
}

func (m *Memory) GetLayer(_ context.Context, id engine.LayerID) (*engine.PolicyLayer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	layer, ok := m.layers[id]
	if !ok {
		return nil, engine.ErrLayerNotFound
	}
	return &layer, nil
}

func (m *Memory) ListLayers(_ context.Context) ([]engine.PolicyLayer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.PolicyLayer, 0, len(m.layers))
	for _, layer := range m.layers {
		out = append(out, layer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListLayersForEntities(_ context.Context, entityIDs []engine.EntityID, from, to time.Time) ([]engine.PolicyLayer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[engine.EntityID]bool, len(entityIDs))
	for _, id := range entityIDs {
		ids[id] = true
	}

	var out []engine.PolicyLayer
	for _, layer := range m.layers {
		if !layer.Active || layer.ApprovalStatus != engine.StatusApproved {
			continue
		}
		if !ids[layer.Scope.EntityID] {
			continue
		}
		if !layer.EffectiveDuring(from, to) {
			continue
		}
		out = append(out, layer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListDerivedLayers(_ context.Context, configID engine.ConfigID) ([]engine.PolicyLayer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PolicyLayer
	for _, layer := range m.layers {
		if layer.SourceConfigID == configID {
			out = append(out, layer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateApprovalStatus(_ context.Context, id engine.LayerID, status engine.ApprovalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	layer, ok := m.layers[id]
	if !ok {
		return engine.ErrLayerNotFound
	}
	layer.ApprovalStatus = status
	layer.UpdatedAt = time.Now()
	m.layers[id] = layer
	return nil
}

// =============================================================================
// MEMORY NODE STORE
// =============================================================================

func (m *Memory) SaveNode(_ context.Context, node engine.HierarchyNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = node
	return nil
}

func (m *Memory) GetNode(_ context.Context, id engine.EntityID) (*engine.HierarchyNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, engine.ErrNodeNotFound
	}
	return &node, nil
}

func (m *Memory) ListNodes(_ context.Context) ([]engine.HierarchyNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.HierarchyNode, 0, len(m.nodes))
	for _, node := range m.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ChainFor walks parent pointers up from the entity. Depth is bounded by
// the four-level hierarchy; a cycle or dangling parent is an error.
func (m *Memory) ChainFor(_ context.Context, id engine.EntityID) (engine.Chain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reversed []engine.HierarchyNode
	cursor := id
	for i := 0; i < 8; i++ {
		node, ok := m.nodes[cursor]
		if !ok {
			return nil, engine.ErrNodeNotFound
		}
		reversed = append(reversed, node)
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
