/*
calculator.go - The pure surge multiplier formula

PURPOSE:
  Maps demand/supply/historical parameters and tunable coefficients to a
  clamped price multiplier. Pure function: no clock, no storage.

FORMULA:
  pressure   = currentDemand / currentSupply
  normalized = pressure / (historicalAvgPressure / 10)
  rawFactor  = 1 + alpha * ln(normalized)
  multiplier = clamp(rawFactor, minMultiplier, maxMultiplier)

  The /10 reconciles the two pressure metrics' differing normalization
  bases: demand snapshots normalize supply per 100 capacity units, surge
  configs per 10.
*/
package surge

import (
	"math"

	"github.com/warp/rate-engine/engine"
)

// Multiplier computes the clamped surge multiplier. Returns
// ErrInvalidSurgeParameters-wrapped detail when supply or the historical
// baseline would make the formula undefined, or when the coefficient
// bands are violated.
func Multiplier(ds DemandSupplyParams, p SurgeParams) (float64, error) {
	if ds.CurrentSupply <= 0 {
		return 0, &engine.InvalidSurgeParametersError{Field: "currentSupply", Detail: "must be positive"}
	}
	if ds.HistoricalAvgPressure <= 0 {
		return 0, &engine.InvalidSurgeParametersError{Field: "historicalAvgPressure", Detail: "must be positive"}
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}

	pressure := ds.CurrentDemand / ds.CurrentSupply
	normalized := pressure / (ds.HistoricalAvgPressure / 10)
	if normalized <= 0 {
		// ln undefined; zero demand clamps to the floor.
		return p.MinMultiplier, nil
	}

	rawFactor := 1 + p.Alpha*math.Log(normalized)
	return clamp(rawFactor, p.MinMultiplier, p.MaxMultiplier), nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
