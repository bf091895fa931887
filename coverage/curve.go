package coverage

import "math"

// BoostCurve maps a company's relative coverage (its rolling chunk count
// divided by the median over all companies) to a retrieval boost factor.
// Curves must be non-increasing in relative.
type BoostCurve interface {
	Boost(relative float64) float64
}

// LinearCurve rises linearly from 1.0 at the median to 1+MaxBoost for a
// company with no coverage.
type LinearCurve struct {
	MaxBoost float64
}

// Boost implements BoostCurve.
func (c LinearCurve) Boost(relative float64) float64 {
	if relative >= 1 {
		return 1
	}
	if relative < 0 {
		relative = 0
	}
	return 1 + c.MaxBoost*(1-relative)
}

// Tier is one step of a TieredCurve.
type Tier struct {
	Below float64 // upper bound on relative coverage, exclusive
	Boost float64
}

// TieredCurve returns the boost of the first tier whose bound lies above
// the relative coverage, or 1.0 when none does. Tiers must be sorted by
// ascending Below.
type TieredCurve struct {
	Tiers []Tier
}

// DefaultTiers boosts companies under half the median by 25% and those
// under the median by 12%.
func DefaultTiers() TieredCurve {
	return TieredCurve{Tiers: []Tier{
		{Below: 0.5, Boost: 1.25},
		{Below: 1.0, Boost: 1.12},
	}}
}

// Boost implements BoostCurve.
func (c TieredCurve) Boost(relative float64) float64 {
	for _, t := range c.Tiers {
		if relative < t.Below {
			return t.Boost
		}
	}
	return 1
}

// clamped guarantees the invariants every curve must satisfy: the boost is
// never below 1.0, is exactly 1.0 at or above the median, and is rounded
// to four decimals so re-runs store identical metadata.
type clamped struct {
	curve BoostCurve
}

func (c clamped) Boost(relative float64) float64 {
	if math.IsNaN(relative) || relative >= 1 {
		return 1
	}
	b := c.curve.Boost(relative)
	if math.IsNaN(b) || b < 1 {
		return 1
	}
	return math.Round(b*1e4) / 1e4
}
