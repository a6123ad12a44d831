/*
hierarchy.go - Hierarchy nodes and ancestor chains

PURPOSE:
  Models the four-level spatial tree (account → site → sub-area → bookable
  venue/event) the engine resolves against. The engine does NOT own this
  data; the external entity store fetches nodes and hands the engine an
  ordered root-to-leaf chain per query.

KEY CONCEPTS:
  - HierarchyNode: One entity with its defaults (capacity, hourly rate,
    operating hours, timezone)
  - Chain: Ordered ancestor chain, root first, queried entity last
  - Default fallbacks walk leaf-to-root: the nearest ancestor that
    defines a value wins

SEE ALSO:
  - hours.go: Operating-hours merging over the chain
  - resolver.go: Default-rate fallback when no layer matches
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CAPACITY SETTINGS
// =============================================================================

// CapacitySettings holds the capacity bounds configured on a node or a
// capacity-sheet window.
type CapacitySettings struct {
	Min       int
	Max       int
	Default   int
	Allocated int
}

// AllocationSplit is an optional static breakdown of allocated capacity,
// as ratios summing to 1. When absent, the capacity aggregator derives
// the split from segment sources instead.
type AllocationSplit struct {
	Transient float64
	Events    float64
	Reserved  float64
}

// =============================================================================
// HIERARCHY NODE
// =============================================================================

// HierarchyNode is one entity in the spatial tree. All fields except ID,
// Level and Timezone are optional; absent values inherit from ancestors.
type HierarchyNode struct {
	ID       EntityID
	Name     string
	Level    Level
	ParentID *EntityID

	DefaultCapacity   *CapacitySettings
	DefaultHourlyRate *decimal.Decimal
	AllocationSplit   *AllocationSplit
	OperatingHours    *OperatingHours
	Timezone          string

	CreatedAt time.Time
}

// =============================================================================
// CHAIN - Ordered ancestor chain, root first
// =============================================================================

// Chain is the ancestor chain of the queried entity, ordered root to
// leaf. The last element is the entity being resolved.
type Chain []HierarchyNode

// Leaf returns the queried entity (last node), or nil for an empty chain.
func (c Chain) Leaf() *HierarchyNode {
	if len(c) == 0 {
		return nil
	}
	return &c[len(c)-1]
}

// Contains reports whether the chain includes the scope's entity at the
// scope's level. Used by the policy collector to decide whether a layer
// can apply to this query at all.
func (c Chain) Contains(s Scope) bool {
	for _, n := range c {
		if n.ID == s.EntityID && n.Level == s.Level {
			return true
		}
	}
	return false
}

// DefaultRate returns the nearest-ancestor default hourly rate, walking
// leaf to root, together with the node that provided it. Returns nil if
// no ancestor defines one.
func (c Chain) DefaultRate() (*decimal.Decimal, *HierarchyNode) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].DefaultHourlyRate != nil {
			return c[i].DefaultHourlyRate, &c[i]
		}
	}
	return nil, nil
}

// DefaultCapacity returns the nearest-ancestor capacity settings, walking
// leaf to root, together with the node that provided them.
func (c Chain) DefaultCapacity() (*CapacitySettings, *HierarchyNode) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].DefaultCapacity != nil {
			return c[i].DefaultCapacity, &c[i]
		}
	}
	return nil, nil
}

// StaticSplit returns the nearest-ancestor stored allocation split, or
// nil if no ancestor defines one.
func (c Chain) StaticSplit() *AllocationSplit {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].AllocationSplit != nil {
			return c[i].AllocationSplit
		}
	}
	return nil
}

// Timezone returns the nearest-ancestor timezone, walking leaf to root.
// Falls back to UTC when nothing is configured.
func (c Chain) Timezone() string {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Timezone != "" {
			return c[i].Timezone
		}
	}
	return "UTC"
}
