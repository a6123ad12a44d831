/*
resolver.go - Per-segment conflict resolution for pricing

PURPOSE:
  For each segment of the booking interval, narrows the collected layers
  to those whose recurrence matches the segment's date and whose windows
  cover its local time, then picks a winner using the declared tie-break
  strategy. Records every candidate and the reason it lost.

WINNER SELECTION:
  - Zero candidates: fall back to the nearest-ancestor default hourly
    rate (leaf to root). No default anywhere: the whole query fails with
    NoApplicablePolicy.
  - One candidate: wins trivially.
  - Multiple: sort by (hierarchy level rank desc, priority desc) -
    hierarchy level strictly dominates numeric priority - then apply the
    TOP candidate's declared tie-break:
      priority:      the top candidate wins outright
      highest_value: among ALL matching candidates, pick by window value
      lowest_value:  same, picking the lowest

SURGE LAYERS:
  A surge_multiplier layer never wins by itself. When one matches the
  segment, its window value multiplies the winning non-surge price and
  the decision log records both. When several match, the highest
  (level, priority) surge layer applies.
*/
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE LINE - Per-segment pricing result
// =============================================================================

// PriceLine is the resolved price for one segment.
type PriceLine struct {
	Start time.Time
	End   time.Time

	PricePerHour decimal.Decimal
	Hours        float64
	Subtotal     decimal.Decimal

	// RatesheetID is empty when the default-rate fallback applied.
	RatesheetID   LayerID
	RatesheetName string
	AppliedRule   string
}

// matchedLayer pairs a layer with the window that covered the segment.
type matchedLayer struct {
	layer  *PolicyLayer
	window *TimeWindow
}

// ResolvePrices resolves every segment against the collected rate-category
// layers. Returns the per-segment price lines and the full decision log.
// Fatal only when a segment has no candidate and no ancestor default rate.
func ResolvePrices(chain Chain, layers []PolicyLayer, segments []Segment) ([]PriceLine, DecisionLog, error) {
	lines := make([]PriceLine, 0, len(segments))
	log := make(DecisionLog, 0, len(segments))

	for _, seg := range segments {
		line, decision, err := resolveSegmentPrice(chain, layers, seg)
		log = append(log, decision)
		if err != nil {
			var napErr *NoApplicablePolicyError
			if errors.As(err, &napErr) {
				napErr.Log = log
			}
			return nil, log, err
		}
		lines = append(lines, line)
	}
	return lines, log, nil
}

func resolveSegmentPrice(chain Chain, layers []PolicyLayer, seg Segment) (PriceLine, SegmentDecision, error) {
	decision := SegmentDecision{
		SegmentStart: seg.Start,
		SegmentEnd:   seg.End,
		LocalTime:    seg.LocalTime,
	}

	matched, surges := matchSegment(layers, seg, &decision)

	var (
		pricePerHour decimal.Decimal
		winnerID     LayerID
		winnerName   string
		rule         string
	)

	switch len(matched) {
	case 0:
		rate, source := chain.DefaultRate()
		if rate == nil {
			entityID := EntityID("")
			if leaf := chain.Leaf(); leaf != nil {
				entityID = leaf.ID
			}
			return PriceLine{}, decision, &NoApplicablePolicyError{
				EntityID:     entityID,
				SegmentStart: seg.Start,
				SegmentEnd:   seg.End,
			}
		}
		pricePerHour = *rate
		rule = fmt.Sprintf("default hourly rate from %s %q", source.Level, source.Name)
		decision.UsedDefaultRate = true
		decision.DefaultRateSource = source.Name
	default:
		winner := pickWinner(matched, &decision)
		pricePerHour = winner.window.Value
		winnerID = winner.layer.ID
		winnerName = winner.layer.Name
		rule = fmt.Sprintf("%s ratesheet %q window %s-%s (priority %d)",
			winner.layer.Scope.Level, winner.layer.Name,
			winner.window.Start, winner.window.End, winner.layer.Priority)
	}

	// A matching surge layer multiplies the winning price; it never wins
	// a segment on its own.
	if len(surges) > 0 {
		surge := topSurge(surges)
		multiplier := surge.window.Value
		pricePerHour = pricePerHour.Mul(multiplier)
		decision.SurgeLayerID = surge.layer.ID
		decision.SurgeMultiplier = &multiplier
		rule = fmt.Sprintf("%s, surge ×%s (%q)", rule, multiplier.String(), surge.layer.Name)
	}

	decision.WinnerID = winnerID
	decision.AppliedRule = rule

	return PriceLine{
		Start:         seg.Start,
		End:           seg.End,
		PricePerHour:  pricePerHour,
		Hours:         seg.DurationHours,
		Subtotal:      pricePerHour.Mul(decimal.NewFromFloat(seg.DurationHours)),
		RatesheetID:   winnerID,
		RatesheetName: winnerName,
		AppliedRule:   rule,
	}, decision, nil
}

// matchSegment narrows layers to those applying to the segment, splitting
// surge multipliers out. Non-applying layers are recorded as rejected
// candidates with the reason they failed to match.
func matchSegment(layers []PolicyLayer, seg Segment, decision *SegmentDecision) (matched, surges []matchedLayer) {
	for i := range layers {
		layer := &layers[i]

		if !layer.EffectiveDuring(seg.Start, seg.End) {
			continue
		}

		ok, err := layer.Recurrence.MatchesDate(seg.LocalDate, layer.EffectiveFrom)
		if err != nil {
			// Malformed recurrence excludes the layer for this segment,
			// logged, not fatal.
			decision.Candidates = append(decision.Candidates, Candidate{
				LayerID:   layer.ID,
				LayerName: layer.Name,
				Level:     layer.Scope.Level,
				Priority:  layer.Priority,
				Rejected:  true,
				Reason:    RejectedBadRecurrence,
				Detail:    err.Error(),
			})
			continue
		}
		if !ok {
			decision.Candidates = append(decision.Candidates, Candidate{
				LayerID:   layer.ID,
				LayerName: layer.Name,
				Level:     layer.Scope.Level,
				Priority:  layer.Priority,
				Rejected:  true,
				Reason:    RejectedNotRecurring,
			})
			continue
		}

		window := layer.WindowFor(seg.LocalTime)
		if window == nil {
			decision.Candidates = append(decision.Candidates, Candidate{
				LayerID:   layer.ID,
				LayerName: layer.Name,
				Level:     layer.Scope.Level,
				Priority:  layer.Priority,
				Rejected:  true,
				Reason:    RejectedNoWindow,
			})
			continue
		}

		m := matchedLayer{layer: layer, window: window}
		if layer.IsSurge() {
			decision.Candidates = append(decision.Candidates, Candidate{
				LayerID:   layer.ID,
				LayerName: layer.Name,
				Level:     layer.Scope.Level,
				Priority:  layer.Priority,
				Value:     window.Value,
				Rejected:  true,
				Reason:    RejectedSurgeMultiplier,
			})
			surges = append(surges, m)
		} else {
			decision.Candidates = append(decision.Candidates, Candidate{
				LayerID:   layer.ID,
				LayerName: layer.Name,
				Level:     layer.Scope.Level,
				Priority:  layer.Priority,
				Value:     window.Value,
			})
			matched = append(matched, m)
		}
	}
	return matched, surges
}

// pickWinner applies the level-then-priority ordering and the top
// candidate's tie-break strategy, marking losers in the decision.
func pickWinner(matched []matchedLayer, decision *SegmentDecision) matchedLayer {
	if len(matched) == 1 {
		return matched[0]
	}

	sortByLevelThenPriority(matched)
	top := matched[0]

	var winner matchedLayer
	switch top.layer.TieBreak {
	case TieBreakHighestValue:
		winner = pickByValue(matched, true)
	case TieBreakLowestValue:
		winner = pickByValue(matched, false)
	default: // TieBreakPriority
		winner = top
	}

	markLosers(matched, winner, top.layer.TieBreak, decision)
	return winner
}

func sortByLevelThenPriority(matched []matchedLayer) {
	sort.SliceStable(matched, func(i, j int) bool {
		ri, rj := matched[i].layer.Scope.Level.Rank(), matched[j].layer.Scope.Level.Rank()
		if ri != rj {
			return ri > rj
		}
		return matched[i].layer.Priority > matched[j].layer.Priority
	})
}

// pickByValue picks among ALL matching candidates by window value, not
// just the top-level ones.
func pickByValue(matched []matchedLayer, highest bool) matchedLayer {
	best := matched[0]
	for _, m := range matched[1:] {
		if highest && m.window.Value.GreaterThan(best.window.Value) {
			best = m
		}
		if !highest && m.window.Value.LessThan(best.window.Value) {
			best = m
		}
	}
	return best
}

func markLosers(matched []matchedLayer, winner matchedLayer, strategy TieBreak, decision *SegmentDecision) {
	winnerRank := winner.layer.Scope.Level.Rank()
	for _, m := range matched {
		if m.layer.ID == winner.layer.ID {
			continue
		}
		reason := RejectedLowerPriority
		switch {
		case strategy == TieBreakHighestValue || strategy == TieBreakLowestValue:
			reason = RejectedByValue
		case m.layer.Scope.Level.Rank() < winnerRank:
			reason = RejectedLowerLevel
		}
		for i := range decision.Candidates {
			if decision.Candidates[i].LayerID == m.layer.ID && !decision.Candidates[i].Rejected {
				decision.Candidates[i].Rejected = true
				decision.Candidates[i].Reason = reason
			}
		}
	}
}

// topSurge returns the highest (level, priority) surge layer.
func topSurge(surges []matchedLayer) matchedLayer {
	sortByLevelThenPriority(surges)
	return surges[0]
}
