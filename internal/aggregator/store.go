package aggregator

import (
	"sync"
	"time"

	"github.com/quantfall/crossarb/internal/domain"
)

// QuoteStore holds the latest quote per (asset, venue). Two producers write
// into it — the per-cycle poller and the websocket feeds — and the aggregator
// reads a fresh snapshot each cycle. Keying by (asset, venue) with a
// freshest-wins rule makes the result independent of arrival order.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]map[string]domain.PriceQuote // asset -> venue -> quote
	maxAge time.Duration
	now    func() time.Time
}

// NewQuoteStore creates a store that considers quotes older than maxAge
// stale. A maxAge of 0 disables staleness filtering.
func NewQuoteStore(maxAge time.Duration) *QuoteStore {
	return &QuoteStore{
		quotes: make(map[string]map[string]domain.PriceQuote),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Put records a quote, keeping only the freshest observation per asset+venue.
// Unusable quotes are dropped here rather than at the producers: both the
// cycle poller and the websocket feeds write through this path, and a crossed
// quote entering the store would let one venue hold both sides of the cross.
func (s *QuoteStore) Put(q domain.PriceQuote) {
	if q.Asset == "" || q.Venue == "" {
		return
	}
	if q.Bid <= 0 || q.Ask <= 0 || q.Crossed() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byVenue, ok := s.quotes[q.Asset]
	if !ok {
		byVenue = make(map[string]domain.PriceQuote)
		s.quotes[q.Asset] = byVenue
	}
	if prev, ok := byVenue[q.Venue]; ok && prev.ObservedAt.After(q.ObservedAt) {
		return
	}
	byVenue[q.Venue] = q
}

// Fresh returns the non-stale quotes for an asset, one per venue.
func (s *QuoteStore) Fresh(asset string) []domain.PriceQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byVenue := s.quotes[asset]
	if len(byVenue) == 0 {
		return nil
	}
	cutoff := time.Time{}
	if s.maxAge > 0 {
		cutoff = s.now().Add(-s.maxAge)
	}
	out := make([]domain.PriceQuote, 0, len(byVenue))
	for _, q := range byVenue {
		if !cutoff.IsZero() && q.ObservedAt.Before(cutoff) {
			continue
		}
		out = append(out, q)
	}
	return out
}

var _ domain.QuoteSink = (*QuoteStore)(nil)
