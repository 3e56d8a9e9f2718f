package venue

import (
	"context"

	"github.com/quantfall/crossarb/internal/domain"
)

// Paper pairs a live client's market data with simulated order fills. Quotes
// come from the real venue and are mirrored into the simulator so paper fills
// land at the prices the engine actually saw.
type Paper struct {
	live domain.VenueClient
	sim  *Simulator
}

var _ domain.VenueClient = (*Paper)(nil)

// NewPaper wraps a live client for paper trading.
func NewPaper(live domain.VenueClient, sim *Simulator) *Paper {
	return &Paper{live: live, sim: sim}
}

// Name returns the wrapped venue's identifier.
func (p *Paper) Name() string { return p.live.Name() }

// FetchQuotes proxies to the live venue and feeds the simulator's book.
func (p *Paper) FetchQuotes(ctx context.Context, assets []string) ([]domain.PriceQuote, error) {
	quotes, err := p.live.FetchQuotes(ctx, assets)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		p.sim.SetQuote(q.Asset, q.Bid, q.Ask)
	}
	return quotes, nil
}

// PlaceMarketOrder fills against the simulator, never the live venue.
func (p *Paper) PlaceMarketOrder(ctx context.Context, asset string, side domain.OrderSide, qty float64) (domain.OrderFill, error) {
	return p.sim.PlaceMarketOrder(ctx, asset, side, qty)
}
