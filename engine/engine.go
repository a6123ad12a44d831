/*
engine.go - Resolution entry point

PURPOSE:
  Ties the pipeline together: segment the interval, collect candidate
  layers over the ancestor chain, resolve price and capacity segment by
  segment, and sum totals. Resolution is purely functional over the
  caller-supplied inputs: no shared mutable state, safe to run fully in
  parallel across queries.

CONTROL FLOW:
  query → CollectLayers → SplitHourly → ResolvePrices (rate layers)
                                      → ResolveCapacity (capacity layers
                                        + MergeOperatingHours)
  → totals + decision log
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUERY / RESULT
// =============================================================================

// ResolutionQuery carries everything the engine needs, pre-fetched by
// the caller. The engine never touches storage during resolution.
type ResolutionQuery struct {
	EntityID EntityID

	// Chain is the ancestor chain root to leaf; the last node is the
	// queried entity.
	Chain Chain

	// CandidateLayers is the full pre-fetched layer list (rate sheets,
	// capacity sheets, surge layers) for the scope chain.
	CandidateLayers []PolicyLayer

	Start time.Time
	End   time.Time

	// Timezone overrides the chain's timezone when set (IANA name).
	Timezone string

	// Currency override; the resolver's default applies when empty.
	Currency string
}

// ResolutionResult is the full answer: totals, per-segment price lines,
// the capacity breakdown, and the decision audit trail.
type ResolutionResult struct {
	EntityID   EntityID
	Start      time.Time
	End        time.Time
	TotalPrice decimal.Decimal
	Currency   string
	TotalHours float64

	Breakdown   []PriceLine
	DecisionLog DecisionLog
	Capacity    CapacityResult
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver is the stateless resolution engine.
type Resolver struct {
	// DefaultCurrency applies when the query doesn't name one.
	DefaultCurrency string
}

func NewResolver(defaultCurrency string) *Resolver {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Resolver{DefaultCurrency: defaultCurrency}
}

// Resolve produces the hour-by-hour price and capacity breakdown for the
// query. The context is accepted for interface symmetry with stores; the
// computation itself never blocks.
func (r *Resolver) Resolve(_ context.Context, q ResolutionQuery) (*ResolutionResult, error) {
	loc, err := q.location()
	if err != nil {
		return nil, err
	}

	segments, err := SplitHourly(q.Start, q.End, loc)
	if err != nil {
		return nil, err
	}

	collected := CollectLayers(q.Chain, q.CandidateLayers, q.Start, q.End)
	rateLayers, capacityLayers := splitByCategory(collected)

	lines, log, err := ResolvePrices(q.Chain, rateLayers, segments)
	if err != nil {
		return nil, err
	}

	hours := MergeOperatingHours(q.Chain)
	capacity := ResolveCapacity(q.Chain, capacityLayers, segments, hours)

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal)
	}

	currency := q.Currency
	if currency == "" {
		currency = r.DefaultCurrency
	}

	return &ResolutionResult{
		EntityID:    q.EntityID,
		Start:       q.Start,
		End:         q.End,
		TotalPrice:  total,
		Currency:    currency,
		TotalHours:  TotalHours(segments),
		Breakdown:   lines,
		DecisionLog: log,
		Capacity:    capacity,
	}, nil
}

func (q ResolutionQuery) location() (*time.Location, error) {
	name := q.Timezone
	if name == "" {
		name = q.Chain.Timezone()
	}
	return time.LoadLocation(name)
}
