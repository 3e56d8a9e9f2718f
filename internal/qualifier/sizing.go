package qualifier

import "github.com/quantfall/crossarb/internal/config"

// Blend weights for the heuristic and Kelly size estimates.
const (
	heuristicWeight = 0.7
	kellyWeight     = 0.3
)

// Kelly returns the Kelly fraction (b·p − q)/b for decimal odds b and win
// probability p. A negative result means the edge does not justify a bet.
func Kelly(b, p float64) float64 {
	if b <= 0 {
		return -1
	}
	q := 1 - p
	return (b*p - q) / b
}

// SizeInput carries the per-opportunity inputs to position sizing.
type SizeInput struct {
	NetSpreadPct      float64
	Quality           float64
	VolatilityPct     float64
	RemainingDailyUSD float64
}

// ComputeSize determines the position size in USD for one opportunity.
//
// The heuristic size scales the base size with spread magnitude, stretches or
// shrinks it by quality, and halves it under high volatility. When Kelly
// sizing is enabled the final size blends heuristic and fractional-Kelly
// estimates 70/30; a negative Kelly floors the Kelly term at the minimum
// size rather than zeroing the whole trade.
//
// Clamps apply in a fixed order: max size, capital fraction, remaining daily
// budget. The minimum is applied last, as an admission check: a clamped size
// below the minimum returns ok=false instead of being bumped back up over a
// cap it just respected.
func ComputeSize(in SizeInput, cfg config.Sizing) (sizeUSD float64, ok bool) {
	heuristic := cfg.BaseSizeUSD * (in.NetSpreadPct / cfg.ReferenceSpreadPct)
	heuristic *= qualityMultiplier(in.Quality)
	if in.VolatilityPct > cfg.HighVolatilityPct {
		heuristic *= cfg.HighVolFactor
	}

	size := heuristic
	if cfg.KellyEnabled {
		kellySize := cfg.MinSizeUSD
		if k := Kelly(in.NetSpreadPct/100, cfg.KellyConfidence); k > 0 {
			kellySize = k * cfg.KellyFraction * cfg.AvailableCapitalUSD
		}
		size = heuristicWeight*heuristic + kellyWeight*kellySize
	}

	if size > cfg.MaxSizeUSD {
		size = cfg.MaxSizeUSD
	}
	if limit := cfg.AvailableCapitalUSD * cfg.MaxCapitalFraction; size > limit {
		size = limit
	}
	if size > in.RemainingDailyUSD {
		size = in.RemainingDailyUSD
	}
	if size < cfg.MinSizeUSD {
		return 0, false
	}
	return size, true
}

// qualityMultiplier shrinks low-quality sizes and modestly grows high-quality
// ones, capped at 1.25x.
func qualityMultiplier(quality float64) float64 {
	switch {
	case quality < 60:
		return 0.6
	case quality <= 80:
		return 1.0
	default:
		return 1.25
	}
}
