package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfall/crossarb/internal/domain"
)

// Simulator is an in-memory venue for paper trading and tests. Quotes are set
// by the caller (or a feed), market orders fill instantly at the quoted side
// plus configured slippage, and failures can be scripted per operation.
type Simulator struct {
	name        string
	takerBps    float64
	slippageBps float64
	latency     time.Duration

	mu       sync.Mutex
	quotes   map[string]domain.PriceQuote
	failures map[string][]error
	fills    []domain.OrderFill
	newID    func() string
}

var _ domain.VenueClient = (*Simulator)(nil)

// NewSimulator creates a simulator venue charging takerBps on every fill.
func NewSimulator(name string, takerBps float64) *Simulator {
	return &Simulator{
		name:     name,
		takerBps: takerBps,
		quotes:   make(map[string]domain.PriceQuote),
		failures: make(map[string][]error),
		newID:    func() string { return uuid.New().String() },
	}
}

// SetSlippage configures fill-price degradation in basis points against the
// order's side.
func (s *Simulator) SetSlippage(bps float64) { s.slippageBps = bps }

// SetLatency adds a fixed delay to every order. The delay respects context
// cancellation.
func (s *Simulator) SetLatency(d time.Duration) { s.latency = d }

// SetQuote publishes a top-of-book quote for an asset.
func (s *Simulator) SetQuote(asset string, bid, ask float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[asset] = domain.PriceQuote{
		Venue:      s.name,
		Asset:      asset,
		Bid:        bid,
		Ask:        ask,
		ObservedAt: time.Now(),
	}
}

// FailNext scripts an error for the next call of the given operation. Ops:
// "quotes", "buy", "sell". Repeated calls queue further failures.
func (s *Simulator) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Fills returns a copy of every fill the simulator has produced.
func (s *Simulator) Fills() []domain.OrderFill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OrderFill, len(s.fills))
	copy(out, s.fills)
	return out
}

func (s *Simulator) popFailure(op string) error {
	q := s.failures[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	s.failures[op] = q[1:]
	return err
}

// Name returns the venue identifier.
func (s *Simulator) Name() string { return s.name }

// FetchQuotes returns the quotes set for the requested assets; unset assets
// are absent from the result.
func (s *Simulator) FetchQuotes(ctx context.Context, assets []string) ([]domain.PriceQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.popFailure("quotes"); err != nil {
		return nil, &domain.VenueError{Venue: s.name, Op: "fetch_quotes", Retryable: true, Err: err}
	}
	out := make([]domain.PriceQuote, 0, len(assets))
	for _, asset := range assets {
		if q, ok := s.quotes[asset]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// PlaceMarketOrder fills at the quoted side adjusted by slippage: buys at the
// ask, sells at the bid.
func (s *Simulator) PlaceMarketOrder(ctx context.Context, asset string, side domain.OrderSide, qty float64) (domain.OrderFill, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return domain.OrderFill{}, &domain.VenueError{Venue: s.name, Op: string(side), Retryable: true, Err: ctx.Err()}
		case <-time.After(s.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.OrderFill{}, &domain.VenueError{Venue: s.name, Op: string(side), Retryable: true, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.popFailure(string(side)); err != nil {
		return domain.OrderFill{}, &domain.VenueError{Venue: s.name, Op: string(side), Retryable: true, Err: err}
	}
	q, ok := s.quotes[asset]
	if !ok {
		return domain.OrderFill{}, &domain.VenueError{Venue: s.name, Op: string(side), Err: fmt.Errorf("no market for %s", asset)}
	}

	var price float64
	switch side {
	case domain.OrderSideBuy:
		price = q.Ask * (1 + s.slippageBps/10_000)
	case domain.OrderSideSell:
		price = q.Bid * (1 - s.slippageBps/10_000)
	default:
		return domain.OrderFill{}, &domain.VenueError{Venue: s.name, Op: string(side), Err: fmt.Errorf("unknown side %q", side)}
	}

	fill := domain.OrderFill{
		OrderID:   s.newID(),
		Venue:     s.name,
		Asset:     asset,
		Side:      side,
		FilledQty: qty,
		AvgPrice:  price,
		FeeUSD:    qty * price * s.takerBps / 10_000,
		PlacedAt:  time.Now(),
	}
	s.fills = append(s.fills, fill)
	return fill, nil
}
