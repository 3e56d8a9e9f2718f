package venue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, batch bool) domain.VenueClient {
	t.Helper()
	c, err := New("testex", config.VenueConfig{
		BaseURL:         baseURL,
		APIKey:          "key",
		APISecret:       "secret",
		BatchQuotes:     batch,
		RateLimitPerSec: 1000,
	}, testLogger())
	require.NoError(t, err)
	return c
}

func TestClientPlaceMarketOrderSignsRequest(t *testing.T) {
	var gotKey, gotSig, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/order", r.URL.Path)
		gotKey = r.Header.Get("X-ARB-API-KEY")
		gotSig = r.Header.Get("X-ARB-SIGNATURE")
		gotTS = r.Header.Get("X-ARB-TIMESTAMP")
		w.Write([]byte(`{"order_id":"o1","filled_qty":"0.5","avg_price":"30000","fee_usd":"15","ts":1700000000000}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	fill, err := c.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideBuy, 0.5)
	require.NoError(t, err)

	assert.Equal(t, "key", gotKey)
	assert.NotEmpty(t, gotSig)
	assert.NotEmpty(t, gotTS)
	assert.Equal(t, "o1", fill.OrderID)
	assert.Equal(t, "testex", fill.Venue)
	assert.InDelta(t, 0.5, fill.FilledQty, 1e-9)
	assert.InDelta(t, 30000.0, fill.AvgPrice, 1e-9)
	assert.InDelta(t, 15.0, fill.FeeUSD, 1e-9)
}

func TestClientErrorClassification(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"code":"ERR","message":"nope"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)

	_, err := c.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideBuy, 1)
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))

	status = http.StatusInternalServerError
	_, err = c.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideBuy, 1)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))

	status = http.StatusTooManyRequests
	_, err = c.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideBuy, 1)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestClientBatchQuotesFiltersAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/ticker/all", r.URL.Path)
		w.Write([]byte(`[
			{"symbol":"BTC","bid":"29990","ask":"30010","ts":1700000000000},
			{"symbol":"ETH","bid":"1999","ask":"2001","ts":1700000000000},
			{"symbol":"XRP","bid":"0.5","ask":"0.51","ts":1700000000000}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	bq, ok := c.(domain.BatchQuoter)
	require.True(t, ok)

	quotes, err := bq.BatchQuotes(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTC", quotes[0].Asset)
	assert.InDelta(t, 29990.0, quotes[0].Bid, 1e-9)
}

func TestClientWithoutBatchHidesCapability(t *testing.T) {
	c := newTestClient(t, "http://localhost:0", false)
	_, ok := c.(domain.BatchQuoter)
	assert.False(t, ok)
}

func TestSimulatorFillsWithFeesAndSlippage(t *testing.T) {
	sim := NewSimulator("sim", 10) // 10 bps taker
	sim.SetQuote("BTC", 29990, 30010)

	buy, err := sim.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideBuy, 1)
	require.NoError(t, err)
	assert.InDelta(t, 30010.0, buy.AvgPrice, 1e-9)
	assert.InDelta(t, 30010.0*0.001, buy.FeeUSD, 1e-6)

	sell, err := sim.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideSell, 1)
	require.NoError(t, err)
	assert.InDelta(t, 29990.0, sell.AvgPrice, 1e-9)

	assert.Len(t, sim.Fills(), 2)
}

func TestSimulatorScriptedFailures(t *testing.T) {
	sim := NewSimulator("sim", 0)
	sim.SetQuote("BTC", 100, 101)
	sim.FailNext("sell", errors.New("maintenance window"))

	_, err := sim.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideSell, 1)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))

	// Failure queue drained; next call succeeds.
	_, err = sim.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideSell, 1)
	require.NoError(t, err)

	_, err = sim.PlaceMarketOrder(context.Background(), "ETH", domain.OrderSideBuy, 1)
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
}

func TestFeeTable(t *testing.T) {
	ft := NewFeeTable(map[string]config.VenueConfig{
		"alpha": {TakerFeeBps: 10, MakerFeeBps: 5},
	})
	assert.InDelta(t, 10.0, ft.Fees("alpha").TakerBps, 1e-9)
	assert.Zero(t, ft.Fees("unknown").TakerBps)
}
