// Package aggregator fans quote fetches out across venues each cycle and
// derives the per-asset cross-venue spread table.
package aggregator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfall/crossarb/internal/domain"
)

// Aggregator batches per-venue quote fetches and computes the best-bid /
// best-ask cross per asset, net of venue fees.
type Aggregator struct {
	venues []domain.VenueClient
	fees   domain.FeeTable
	store  *QuoteStore
	health *HealthRecorder
	prices domain.PriceCache // optional write-through for dashboards
	logger *slog.Logger
}

// New creates an Aggregator over the given venues. store may be shared with
// streaming feeds; prices may be nil.
func New(venues []domain.VenueClient, fees domain.FeeTable, store *QuoteStore, prices domain.PriceCache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		venues: venues,
		fees:   fees,
		store:  store,
		health: NewHealthRecorder(),
		prices: prices,
		logger: logger.With(slog.String("component", "aggregator")),
	}
}

// Health exposes the per-venue fetch health for external monitoring.
func (a *Aggregator) Health() map[string]VenueHealth {
	return a.health.Snapshot()
}

// Aggregate polls every venue in parallel for the given assets and returns
// one SpreadRecord per asset, or nil for assets where no tradable cross
// exists this cycle (fewer than two venues quoting, or best bid at or below
// best ask). A venue that errors is excluded from this cycle only; its
// absence is silent as far as spread derivation is concerned.
func (a *Aggregator) Aggregate(ctx context.Context, assets []string) map[string]*domain.SpreadRecord {
	var g errgroup.Group
	for _, v := range a.venues {
		v := v
		g.Go(func() error {
			a.fetchVenue(ctx, v, assets)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*domain.SpreadRecord, len(assets))
	for _, asset := range assets {
		out[asset] = a.cross(ctx, asset)
	}
	return out
}

// fetchVenue pulls quotes from one venue — a single batched call when the
// venue supports it, per-asset calls otherwise — and folds them into the
// quote store.
func (a *Aggregator) fetchVenue(ctx context.Context, v domain.VenueClient, assets []string) {
	var (
		quotes []domain.PriceQuote
		err    error
	)
	if bq, ok := v.(domain.BatchQuoter); ok {
		quotes, err = bq.BatchQuotes(ctx, assets)
	} else {
		for _, asset := range assets {
			var qs []domain.PriceQuote
			qs, err = v.FetchQuotes(ctx, []string{asset})
			if err != nil {
				break
			}
			quotes = append(quotes, qs...)
		}
	}
	if err != nil {
		a.health.RecordFailure(v.Name(), err)
		a.logger.Warn("venue excluded from cycle",
			slog.String("venue", v.Name()),
			slog.String("error", err.Error()),
		)
		return
	}
	a.health.RecordSuccess(v.Name())
	for _, q := range quotes {
		a.store.Put(q) // the store drops crossed and one-sided quotes
	}
}

// cross derives the spread record for one asset from the fresh quotes in the
// store, or nil when no tradable cross exists.
func (a *Aggregator) cross(ctx context.Context, asset string) *domain.SpreadRecord {
	quotes := a.store.Fresh(asset)
	if len(quotes) < 2 {
		return nil
	}

	var bestBid, bestAsk domain.PriceQuote
	for _, q := range quotes {
		if bestBid.Venue == "" || q.Bid > bestBid.Bid {
			bestBid = q
		}
		if bestAsk.Venue == "" || q.Ask < bestAsk.Ask {
			bestAsk = q
		}
	}

	if a.prices != nil {
		mid := (bestBid.Bid + bestAsk.Ask) / 2
		if err := a.prices.SetPrice(ctx, asset, mid, time.Now()); err != nil {
			a.logger.Debug("price cache write failed", slog.String("error", err.Error()))
		}
	}

	if bestBid.Bid <= bestAsk.Ask {
		return nil
	}
	// With only uncrossed quotes in the store a venue's own bid sits below
	// its ask, so it cannot hold both sides of the cross. Guard anyway: a
	// same-venue record is never a tradable opportunity.
	if bestBid.Venue == bestAsk.Venue {
		a.logger.Warn("same venue on both sides of cross, dropping",
			slog.String("asset", asset),
			slog.String("venue", bestBid.Venue),
		)
		return nil
	}
	fees := domain.FeeBreakdown{
		BuyFeeBps:  a.fees.Fees(bestAsk.Venue).TakerBps,
		SellFeeBps: a.fees.Fees(bestBid.Venue).TakerBps,
	}
	rec := domain.NewSpreadRecord(asset, bestAsk.Venue, bestBid.Venue, bestAsk.Ask, bestBid.Bid, fees, time.Now())
	a.logger.Debug("spread derived",
		slog.String("asset", asset),
		slog.String("buy_venue", rec.BuyVenue),
		slog.String("sell_venue", rec.SellVenue),
		slog.Float64("gross_pct", rec.GrossSpreadPct),
		slog.Float64("net_pct", rec.NetSpreadPct),
	)
	return &rec
}
