package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
	"github.com/quantfall/crossarb/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCfg() config.ExecutorConfig {
	return config.ExecutorConfig{
		SellRetryAttempts: 3,
		SellRetryDelay:    config.Duration{Duration: time.Millisecond},
	}
}

func testProposal() domain.TradeProposal {
	return domain.TradeProposal{
		ID:        "t1",
		Asset:     "BTC",
		BuyVenue:  "alpha",
		SellVenue: "beta",
		BuyPrice:  100,
		SellPrice: 102,
		SizeUSD:   200,
		Status:    domain.ProposalAdmitted,
	}
}

func twoVenues() (*venue.Simulator, *venue.Simulator, map[string]domain.VenueClient) {
	alpha := venue.NewSimulator("alpha", 10)
	beta := venue.NewSimulator("beta", 10)
	alpha.SetQuote("BTC", 99, 100)
	beta.SetQuote("BTC", 102, 103)
	return alpha, beta, map[string]domain.VenueClient{"alpha": alpha, "beta": beta}
}

func TestExecuteBothLegsFill(t *testing.T) {
	alpha, beta, venues := twoVenues()
	e := New(venues, testCfg(), false, testLogger())

	res := e.Execute(context.Background(), testProposal())
	require.NoError(t, res.Err)
	assert.True(t, res.Succeeded())
	assert.False(t, res.StrandedAsset)

	require.Len(t, alpha.Fills(), 1)
	require.Len(t, beta.Fills(), 1)
	buy, sell := alpha.Fills()[0], beta.Fills()[0]
	assert.Equal(t, domain.OrderSideBuy, buy.Side)
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	// Sell quantity equals the bought quantity, not the proposal's notional.
	assert.InDelta(t, buy.FilledQty, sell.FilledQty, 1e-9)

	want := sell.Notional() - buy.Notional() - buy.FeeUSD - sell.FeeUSD
	assert.InDelta(t, want, res.ActualProfitUSD, 1e-9)
	assert.Greater(t, res.ActualProfitUSD, 0.0)
}

func TestExecuteBuyFailureIsCleanFailure(t *testing.T) {
	alpha, beta, venues := twoVenues()
	alpha.FailNext("buy", errors.New("insufficient balance"))
	e := New(venues, testCfg(), false, testLogger())

	res := e.Execute(context.Background(), testProposal())
	require.Error(t, res.Err)
	assert.False(t, res.StrandedAsset)
	assert.Nil(t, res.BuyOrder)
	assert.Empty(t, beta.Fills()) // sell leg never attempted
}

func TestExecuteSellExhaustionStrandsPosition(t *testing.T) {
	alpha, beta, venues := twoVenues()
	for i := 0; i < 3; i++ {
		beta.FailNext("sell", errors.New("matching engine down"))
	}
	e := New(venues, testCfg(), false, testLogger())

	res := e.Execute(context.Background(), testProposal())
	require.Error(t, res.Err)
	assert.True(t, res.StrandedAsset)
	require.NotNil(t, res.BuyOrder)
	assert.Nil(t, res.SellOrder)

	// Exactly one buy, zero sell fills: the buy is never retried or reversed.
	assert.Len(t, alpha.Fills(), 1)
	assert.Empty(t, beta.Fills())
	assert.Contains(t, res.Err.Error(), "sell attempt 3")
}

func TestExecuteSellRecoversOnRetry(t *testing.T) {
	_, beta, venues := twoVenues()
	beta.FailNext("sell", errors.New("timeout"))
	e := New(venues, testCfg(), false, testLogger())

	res := e.Execute(context.Background(), testProposal())
	require.NoError(t, res.Err)
	assert.True(t, res.Succeeded())
	assert.Len(t, beta.Fills(), 1)
}

func TestExecuteCancelledContextStopsRetries(t *testing.T) {
	_, beta, venues := twoVenues()
	beta.FailNext("sell", errors.New("timeout"))
	cfg := testCfg()
	cfg.SellRetryDelay = config.Duration{Duration: 100 * time.Millisecond}
	e := New(venues, cfg, false, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := e.Execute(ctx, testProposal())
	require.Error(t, res.Err)
	assert.True(t, res.StrandedAsset)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Empty(t, beta.Fills())
}

func TestExecuteUnknownVenue(t *testing.T) {
	_, _, venues := twoVenues()
	e := New(venues, testCfg(), false, testLogger())

	p := testProposal()
	p.SellVenue = "ghost"
	res := e.Execute(context.Background(), p)
	require.ErrorIs(t, res.Err, domain.ErrUnknownVenue)
	assert.Nil(t, res.BuyOrder)
}

func TestExecuteDryRunFlagPropagates(t *testing.T) {
	_, _, venues := twoVenues()
	e := New(venues, testCfg(), true, testLogger())

	res := e.Execute(context.Background(), testProposal())
	require.NoError(t, res.Err)
	assert.True(t, res.DryRun)
}
