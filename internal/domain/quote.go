package domain

import "time"

// PriceQuote is a single top-of-book observation for one asset on one venue.
// Quotes are ephemeral: they live for one aggregation cycle and are discarded
// after the spread table has been derived.
type PriceQuote struct {
	Venue      string
	Asset      string
	Bid        float64
	Ask        float64
	ObservedAt time.Time
}

// Crossed reports whether the quote is internally crossed (bid at or above
// ask), which indicates a venue-side glitch and makes the quote unusable.
func (q PriceQuote) Crossed() bool {
	return q.Bid >= q.Ask
}

// Mid returns the quote midpoint, or 0 when either side is missing.
func (q PriceQuote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}
