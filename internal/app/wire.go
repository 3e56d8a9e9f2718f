package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantfall/crossarb/internal/aggregator"
	s3blob "github.com/quantfall/crossarb/internal/blob/s3"
	"github.com/quantfall/crossarb/internal/cache/redis"
	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
	"github.com/quantfall/crossarb/internal/feed"
	"github.com/quantfall/crossarb/internal/notify"
	"github.com/quantfall/crossarb/internal/qualifier"
	"github.com/quantfall/crossarb/internal/risk"
	"github.com/quantfall/crossarb/internal/store/postgres"
	"github.com/quantfall/crossarb/internal/venue"
)

// quoteMaxAge bounds how old a stored quote may be and still participate in a
// cross. Slightly above the default cycle interval so REST-only venues are
// never starved between polls.
const quoteMaxAge = 10 * time.Second

// Dependencies bundles everything the operating modes need. Constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	RiskCaps   *config.RiskProvider
	Tracker    *risk.Tracker
	Venues     map[string]domain.VenueClient
	FeeTable   domain.FeeTable
	QuoteStore *aggregator.QuoteStore
	Aggregator *aggregator.Aggregator
	Qualifier  *qualifier.Qualifier
	Feeds      []*feed.TickerFeed

	ResultStore domain.ResultStore
	AuditStore  domain.AuditStore
	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus
	Archiver    domain.Archiver
	Notifier    *notify.Notifier
}

// Wire constructs every concrete dependency from the configuration.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		RiskCaps: config.NewRiskProvider(cfg.Risk),
	}
	deps.Tracker = risk.NewTracker(deps.RiskCaps, logger)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.ResultStore = postgres.NewResultStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		if deps.ResultStore == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3 archiving requires postgres to be enabled")
		}
		s3Client, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, deps.ResultStore, deps.AuditStore, logger)
	}

	// --- Venues ---
	deps.Venues = make(map[string]domain.VenueClient, len(cfg.Venues))
	venueTiers := make(map[string]int, len(cfg.Venues))
	deps.FeeTable = venue.NewFeeTable(cfg.Venues)
	deps.QuoteStore = aggregator.NewQuoteStore(quoteMaxAge)

	mode := strings.ToLower(cfg.Mode)
	for name, vc := range cfg.Venues {
		venueTiers[name] = vc.Tier

		switch mode {
		case "live":
			client, err := venue.New(name, vc, logger)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: venue %s: %w", name, err)
			}
			deps.Venues[name] = client
		case "paper":
			sim := venue.NewSimulator(name, vc.TakerFeeBps)
			if vc.BaseURL != "" {
				client, err := venue.New(name, vc, logger)
				if err != nil {
					cleanup()
					return nil, nil, fmt.Errorf("wire: venue %s: %w", name, err)
				}
				deps.Venues[name] = venue.NewPaper(client, sim)
			} else {
				deps.Venues[name] = sim
			}
		default: // scan: quotes only, orders never placed
			client, err := venue.New(name, vc, logger)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: venue %s: %w", name, err)
			}
			deps.Venues[name] = client
		}

		if vc.Stream && vc.WsURL != "" {
			deps.Feeds = append(deps.Feeds, feed.NewTickerFeed(name, vc.WsURL, cfg.Assets, deps.QuoteStore, logger))
		}
	}

	venueList := make([]domain.VenueClient, 0, len(deps.Venues))
	for _, v := range deps.Venues {
		venueList = append(venueList, v)
	}
	deps.Aggregator = aggregator.New(venueList, deps.FeeTable, deps.QuoteStore, deps.PriceCache, logger)
	deps.Qualifier = qualifier.New(cfg.Qualifier, venueTiers, deps.RiskCaps, deps.Tracker, deps.AuditStore, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
