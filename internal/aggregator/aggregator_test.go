package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/crossarb/internal/domain"
)

type stubVenue struct {
	name   string
	quotes map[string]domain.PriceQuote
	err    error
}

func (s *stubVenue) Name() string { return s.name }

func (s *stubVenue) FetchQuotes(_ context.Context, assets []string) ([]domain.PriceQuote, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.PriceQuote
	for _, a := range assets {
		if q, ok := s.quotes[a]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *stubVenue) PlaceMarketOrder(context.Context, string, domain.OrderSide, float64) (domain.OrderFill, error) {
	return domain.OrderFill{}, errors.New("not a trading stub")
}

type stubFees struct {
	taker map[string]float64
}

func (s stubFees) Fees(venue string) domain.VenueFees {
	return domain.VenueFees{TakerBps: s.taker[venue]}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quote(venue, asset string, bid, ask float64) domain.PriceQuote {
	return domain.PriceQuote{Venue: venue, Asset: asset, Bid: bid, Ask: ask, ObservedAt: time.Now()}
}

func newTestAggregator(fees domain.FeeTable, venues ...domain.VenueClient) *Aggregator {
	return New(venues, fees, NewQuoteStore(time.Minute), nil, testLogger())
}

func TestAggregateDerivesCross(t *testing.T) {
	// alpha asks 50,000, beta bids 50,100: buy alpha, sell beta.
	alpha := &stubVenue{name: "alpha", quotes: map[string]domain.PriceQuote{
		"BTC": quote("alpha", "BTC", 49_950, 50_000),
	}}
	beta := &stubVenue{name: "beta", quotes: map[string]domain.PriceQuote{
		"BTC": quote("beta", "BTC", 50_100, 50_150),
	}}
	fees := stubFees{taker: map[string]float64{"alpha": 10, "beta": 10}}

	agg := newTestAggregator(fees, alpha, beta)
	recs := agg.Aggregate(context.Background(), []string{"BTC"})

	rec := recs["BTC"]
	require.NotNil(t, rec)
	assert.Equal(t, "alpha", rec.BuyVenue)
	assert.Equal(t, "beta", rec.SellVenue)
	assert.Equal(t, 50_000.0, rec.BuyPrice)
	assert.Equal(t, 50_100.0, rec.SellPrice)
	assert.InDelta(t, 0.2, rec.GrossSpreadPct, 1e-9)
	assert.InDelta(t, 0.0, rec.NetSpreadPct, 1e-9)
	assert.Equal(t, 20.0, rec.Fees.TotalBps())
}

func TestAggregateNilWhenFewerThanTwoVenues(t *testing.T) {
	alpha := &stubVenue{name: "alpha", quotes: map[string]domain.PriceQuote{
		"BTC": quote("alpha", "BTC", 49_950, 50_000),
	}}
	agg := newTestAggregator(stubFees{}, alpha)

	recs := agg.Aggregate(context.Background(), []string{"BTC"})
	assert.Nil(t, recs["BTC"])
}

func TestAggregateNilWhenNoTradableCross(t *testing.T) {
	// Best bid (100) below best ask (101): nothing to trade.
	alpha := &stubVenue{name: "alpha", quotes: map[string]domain.PriceQuote{
		"ETH": quote("alpha", "ETH", 99, 101),
	}}
	beta := &stubVenue{name: "beta", quotes: map[string]domain.PriceQuote{
		"ETH": quote("beta", "ETH", 100, 102),
	}}
	agg := newTestAggregator(stubFees{}, alpha, beta)

	recs := agg.Aggregate(context.Background(), []string{"ETH"})
	assert.Nil(t, recs["ETH"])
}

func TestAggregateExcludesFailingVenue(t *testing.T) {
	alpha := &stubVenue{name: "alpha", quotes: map[string]domain.PriceQuote{
		"BTC": quote("alpha", "BTC", 49_950, 50_000),
	}}
	beta := &stubVenue{name: "beta", quotes: map[string]domain.PriceQuote{
		"BTC": quote("beta", "BTC", 50_100, 50_150),
	}}
	gamma := &stubVenue{name: "gamma", err: errors.New("connection refused")}

	agg := newTestAggregator(stubFees{}, alpha, beta, gamma)
	recs := agg.Aggregate(context.Background(), []string{"BTC"})

	// The two healthy venues still produce a cross.
	require.NotNil(t, recs["BTC"])
	assert.Equal(t, "alpha", recs["BTC"].BuyVenue)

	health := agg.Health()
	assert.NotZero(t, health["gamma"].ConsecutiveFailures)
	assert.Zero(t, health["alpha"].ConsecutiveFailures)
}

func TestAggregateSkipsCrossedQuotes(t *testing.T) {
	alpha := &stubVenue{name: "alpha", quotes: map[string]domain.PriceQuote{
		"BTC": quote("alpha", "BTC", 50_000, 49_000), // glitched book
	}}
	beta := &stubVenue{name: "beta", quotes: map[string]domain.PriceQuote{
		"BTC": quote("beta", "BTC", 50_100, 50_150),
	}}
	agg := newTestAggregator(stubFees{}, alpha, beta)

	recs := agg.Aggregate(context.Background(), []string{"BTC"})
	assert.Nil(t, recs["BTC"])
}

func TestAggregateUnlistedAssetAbsent(t *testing.T) {
	alpha := &stubVenue{name: "alpha", quotes: map[string]domain.PriceQuote{
		"BTC": quote("alpha", "BTC", 49_950, 50_000),
	}}
	beta := &stubVenue{name: "beta", quotes: map[string]domain.PriceQuote{
		"BTC": quote("beta", "BTC", 50_100, 50_150),
	}}
	agg := newTestAggregator(stubFees{}, alpha, beta)

	recs := agg.Aggregate(context.Background(), []string{"BTC", "DOGE"})
	assert.NotNil(t, recs["BTC"])
	assert.Nil(t, recs["DOGE"])
}

func TestStreamedCrossedQuoteCannotFakeASpread(t *testing.T) {
	// Streamed quotes bypass the poller and land in the store directly. A
	// glitched crossed frame (bid above ask) must not let one venue hold both
	// sides of the cross.
	store := NewQuoteStore(time.Minute)
	store.Put(quote("beta", "BTC", 100, 100.2))
	store.Put(domain.PriceQuote{
		Venue: "alpha", Asset: "BTC", Bid: 101, Ask: 100, ObservedAt: time.Now(),
	})

	agg := New(nil, stubFees{}, store, nil, testLogger())
	recs := agg.Aggregate(context.Background(), []string{"BTC"})

	rec := recs["BTC"]
	if rec != nil {
		assert.NotEqual(t, rec.BuyVenue, rec.SellVenue)
	}
	assert.Nil(t, rec)
}

func TestQuoteStoreDropsUnusableQuotes(t *testing.T) {
	store := NewQuoteStore(time.Minute)

	store.Put(quote("alpha", "BTC", 101, 100))  // crossed
	store.Put(quote("alpha", "BTC", 0, 100))    // no bid
	store.Put(quote("alpha", "BTC", 100, 0))    // no ask
	store.Put(quote("alpha", "BTC", 100, 100))  // bid == ask is crossed too
	assert.Empty(t, store.Fresh("BTC"))

	store.Put(quote("alpha", "BTC", 100, 100.5))
	assert.Len(t, store.Fresh("BTC"), 1)
}

func TestQuoteStoreFreshestWins(t *testing.T) {
	store := NewQuoteStore(time.Minute)
	now := time.Now()

	newer := domain.PriceQuote{Venue: "alpha", Asset: "BTC", Bid: 101, Ask: 102, ObservedAt: now}
	older := domain.PriceQuote{Venue: "alpha", Asset: "BTC", Bid: 99, Ask: 100, ObservedAt: now.Add(-time.Second)}

	store.Put(newer)
	store.Put(older) // arrives late, must not clobber

	fresh := store.Fresh("BTC")
	require.Len(t, fresh, 1)
	assert.Equal(t, 101.0, fresh[0].Bid)
}

func TestQuoteStoreDropsStaleQuotes(t *testing.T) {
	store := NewQuoteStore(time.Second)
	store.Put(domain.PriceQuote{
		Venue: "alpha", Asset: "BTC", Bid: 100, Ask: 101,
		ObservedAt: time.Now().Add(-time.Minute),
	})
	assert.Empty(t, store.Fresh("BTC"))
}
