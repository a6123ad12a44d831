/*
collector.go - Hierarchy policy collection

PURPOSE:
  Pre-filters the full candidate layer list down to layers that could
  possibly apply to a query: scope on the ancestor chain, active, and
  temporally overlapping the query interval. This bounds the work done
  per segment by the resolver and capacity aggregator.

  The filter must be conservative: over-inclusive is safe (the resolver
  re-checks recurrence and windows per segment), under-inclusive is a bug.
*/
package engine

import "time"

// CollectLayers returns the subset of layers whose scope matches one of
// the chain's entities, whose validity overlaps [start, end), and which
// are active. Pure; does not mutate its inputs.
func CollectLayers(chain Chain, layers []PolicyLayer, start, end time.Time) []PolicyLayer {
	var out []PolicyLayer
	for _, layer := range layers {
		if !layer.Active {
			continue
		}
		if !chain.Contains(layer.Scope) {
			continue
		}
		if !layer.EffectiveDuring(start, end) {
			continue
		}
		out = append(out, layer)
	}
	return out
}

// splitByCategory separates rate-category layers (including surge
// multipliers) from capacity-category layers.
func splitByCategory(layers []PolicyLayer) (rate, capacity []PolicyLayer) {
	for _, layer := range layers {
		switch layer.Category {
		case CategoryCapacity:
			capacity = append(capacity, layer)
		default:
			rate = append(rate, layer)
		}
	}
	return rate, capacity
}
