// Package executor performs the two-leg buy/sell round trip for one admitted
// proposal. The buy is placed exactly once; only the sell leg is retried, and
// when every sell attempt fails the result reports a stranded position.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
)

// Executor executes proposals against a set of venue clients. The same logic
// runs in live and dry-run mode; only the venue implementations differ.
type Executor struct {
	venues map[string]domain.VenueClient
	cfg    config.ExecutorConfig
	dryRun bool
	logger *slog.Logger
}

// New creates an Executor over the given venues, keyed by venue name.
func New(venues map[string]domain.VenueClient, cfg config.ExecutorConfig, dryRun bool, logger *slog.Logger) *Executor {
	return &Executor{
		venues: venues,
		cfg:    cfg,
		dryRun: dryRun,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Execute places a market buy on the proposal's buy venue and, on success, a
// market sell of the filled quantity on the sell venue. A failed sell is
// retried on the same venue for the same quantity up to the configured number
// of attempts with a fixed delay; the buy is never retried and never
// auto-reversed. When ctx is cancelled no further legs or retries are issued.
func (e *Executor) Execute(ctx context.Context, p domain.TradeProposal) domain.ExecutionResult {
	res := domain.ExecutionResult{
		TradeID:   p.ID,
		Asset:     p.Asset,
		BuyVenue:  p.BuyVenue,
		SellVenue: p.SellVenue,
		SizeUSD:   p.SizeUSD,
		DryRun:    e.dryRun,
		StartedAt: time.Now(),
	}

	buyVenue, ok := e.venues[p.BuyVenue]
	if !ok {
		res.Err = fmt.Errorf("executor: buy venue %s: %w", p.BuyVenue, domain.ErrUnknownVenue)
		res.CompletedAt = time.Now()
		return res
	}
	sellVenue, ok := e.venues[p.SellVenue]
	if !ok {
		res.Err = fmt.Errorf("executor: sell venue %s: %w", p.SellVenue, domain.ErrUnknownVenue)
		res.CompletedAt = time.Now()
		return res
	}

	log := e.logger.With(
		slog.String("trade_id", p.ID),
		slog.String("asset", p.Asset),
		slog.String("buy_venue", p.BuyVenue),
		slog.String("sell_venue", p.SellVenue),
	)

	// Leg 1: buy. Exactly one attempt; a failure here leaves no position.
	buy, err := buyVenue.PlaceMarketOrder(ctx, p.Asset, domain.OrderSideBuy, p.Quantity())
	if err != nil {
		log.Warn("buy leg failed", slog.String("error", err.Error()))
		res.Err = fmt.Errorf("executor: buy leg: %w", err)
		res.CompletedAt = time.Now()
		return res
	}
	res.BuyOrder = &buy
	log.Info("buy leg filled",
		slog.Float64("qty", buy.FilledQty),
		slog.Float64("avg_price", buy.AvgPrice),
	)

	// Leg 2: sell the bought quantity. Same venue, same quantity, bounded
	// retries with a fixed delay.
	var sellErrs []error
	for attempt := 1; attempt <= e.cfg.SellRetryAttempts; attempt++ {
		if ctx.Err() != nil {
			sellErrs = append(sellErrs, fmt.Errorf("executor: sell attempt %d not issued: %w", attempt, ctx.Err()))
			break
		}
		sell, err := sellVenue.PlaceMarketOrder(ctx, p.Asset, domain.OrderSideSell, buy.FilledQty)
		if err == nil {
			res.SellOrder = &sell
			break
		}
		sellErrs = append(sellErrs, fmt.Errorf("executor: sell attempt %d: %w", attempt, err))
		log.Warn("sell leg failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < e.cfg.SellRetryAttempts {
			select {
			case <-ctx.Done():
			case <-time.After(e.cfg.SellRetryDelay.Duration):
			}
		}
	}

	res.CompletedAt = time.Now()
	if res.SellOrder == nil {
		// Bought but could not sell: capital now sits on the buy venue with
		// no safe automated remedy. Fatal for this trade, not the process.
		res.StrandedAsset = true
		res.Err = errors.Join(sellErrs...)
		log.Error("position stranded after exhausting sell attempts",
			slog.Float64("qty", buy.FilledQty),
			slog.String("errors", res.Err.Error()),
		)
		return res
	}

	res.ActualProfitUSD = res.SellOrder.Notional() - res.BuyOrder.Notional() -
		res.BuyOrder.FeeUSD - res.SellOrder.FeeUSD
	log.Info("trade completed",
		slog.Float64("profit_usd", res.ActualProfitUSD),
		slog.Bool("dry_run", res.DryRun),
	)
	return res
}
