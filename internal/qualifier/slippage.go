package qualifier

import "github.com/quantfall/crossarb/internal/config"

// sizeWalkdown is the sequence of size fractions tried when a full-size
// proposal fails the slippage check and resizing is enabled. Descending, so
// the first viable fraction is the largest.
var sizeWalkdown = [...]float64{0.8, 0.6, 0.4, 0.2}

// EstimateSlippage estimates execution-price degradation in percent for an
// order of sizeUSD against the assumed book depth of the asset's liquidity
// tier. Linear impact: size/depth × impact factor.
func EstimateSlippage(sizeUSD float64, tier int, cfg config.Slippage) float64 {
	if tier < 1 || tier > len(cfg.TierDepthUSD) {
		tier = len(cfg.TierDepthUSD)
	}
	depth := cfg.TierDepthUSD[tier-1]
	if depth <= 0 {
		return 0
	}
	return sizeUSD / depth * cfg.ImpactPct
}
