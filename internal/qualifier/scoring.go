package qualifier

import (
	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
)

// tierScore maps a venue or asset tier (1 = best) onto a 0-100 component.
// Unknown tiers score like the bottom tier.
func tierScore(tier int) float64 {
	switch tier {
	case 1:
		return 100
	case 2:
		return 70
	default:
		return 40
	}
}

// clamp01 bounds x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Score computes the quality score for a spread record: a weighted sum of
// spread magnitude, venue trust tier, asset liquidity tier, and volatility.
// It is a pure function of the record and the static tier tables, so equal
// inputs always produce equal scores.
func Score(rec domain.SpreadRecord, venueTiers map[string]int, cfg config.Scoring) domain.QualityScore {
	var s domain.QualityScore

	s.Spread = clamp01(rec.NetSpreadPct/cfg.FullScoreSpreadPct) * 100

	buyTier := tierScore(venueTiers[rec.BuyVenue])
	sellTier := tierScore(venueTiers[rec.SellVenue])
	s.Venue = (buyTier + sellTier) / 2

	s.Liquidity = tierScore(assetTier(rec.Asset, cfg))

	vol := cfg.AssetVolatilityPct[rec.Asset]
	s.Volatility = clamp01(1-vol/cfg.MaxVolatilityPct) * 100

	s.Total = s.Spread*cfg.SpreadWeight +
		s.Venue*cfg.VenueWeight +
		s.Liquidity*cfg.LiquidityWeight +
		s.Volatility*cfg.VolatilityWeight
	return s
}

// assetTier resolves the liquidity tier for an asset, defaulting to the
// thinnest tier for unlisted assets.
func assetTier(asset string, cfg config.Scoring) int {
	if t, ok := cfg.AssetTiers[asset]; ok {
		return t
	}
	return 3
}
