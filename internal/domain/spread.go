package domain

import "time"

// FeeBreakdown records the taker fees applied to each leg of a cross-venue
// round trip, in basis points.
type FeeBreakdown struct {
	BuyFeeBps  float64
	SellFeeBps float64
}

// TotalBps returns the round-trip fee load in basis points.
func (f FeeBreakdown) TotalBps() float64 {
	return f.BuyFeeBps + f.SellFeeBps
}

// SpreadRecord is the per-cycle result of crossing the best ask against the
// best bid for one asset across all responding venues. BuyVenue and SellVenue
// are always distinct: a single venue cannot hold both the best bid and the
// best ask when the pair is crossed, because its own bid sits below its ask.
type SpreadRecord struct {
	Asset          string
	BuyVenue       string
	SellVenue      string
	BuyPrice       float64 // best ask across venues
	SellPrice      float64 // best bid across venues
	GrossSpreadPct float64
	NetSpreadPct   float64
	Fees           FeeBreakdown
	ObservedAt     time.Time
}

// NewSpreadRecord derives the gross and net spread for a buy at buyPrice and a
// sell at sellPrice. Net spread is gross minus the round-trip fees expressed
// in percent (bps / 100).
func NewSpreadRecord(asset, buyVenue, sellVenue string, buyPrice, sellPrice float64, fees FeeBreakdown, observedAt time.Time) SpreadRecord {
	gross := (sellPrice - buyPrice) / buyPrice * 100
	return SpreadRecord{
		Asset:          asset,
		BuyVenue:       buyVenue,
		SellVenue:      sellVenue,
		BuyPrice:       buyPrice,
		SellPrice:      sellPrice,
		GrossSpreadPct: gross,
		NetSpreadPct:   gross - fees.TotalBps()/100,
		Fees:           fees,
		ObservedAt:     observedAt,
	}
}
