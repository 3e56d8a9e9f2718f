package domain

import "context"

// VenueClient is the trading interface one exchange exposes to the engine.
type VenueClient interface {
	// Name returns the venue identifier used in quotes, fees, and proposals.
	Name() string
	// FetchQuotes returns top-of-book quotes for the given assets. Assets the
	// venue does not list are simply absent from the result; that is not an
	// error.
	FetchQuotes(ctx context.Context, assets []string) ([]PriceQuote, error)
	// PlaceMarketOrder submits a market order and returns the fill. Failures
	// are reported as *VenueError.
	PlaceMarketOrder(ctx context.Context, asset string, side OrderSide, qty float64) (OrderFill, error)
}

// BatchQuoter is an optional capability: venues implementing it can serve all
// requested assets in a single API call. The aggregator falls back to
// per-asset FetchQuotes calls for venues that do not implement it.
type BatchQuoter interface {
	BatchQuotes(ctx context.Context, assets []string) ([]PriceQuote, error)
}

// VenueFees holds one venue's fee schedule in basis points.
type VenueFees struct {
	MakerBps float64
	TakerBps float64
}

// FeeTable resolves per-venue fees. Implementations are read-only from the
// engine's point of view; reloading is the provider's concern.
type FeeTable interface {
	Fees(venue string) VenueFees
}

// QuoteSink receives quotes from streaming producers (websocket feeds). The
// aggregator's quote store implements it.
type QuoteSink interface {
	Put(q PriceQuote)
}
