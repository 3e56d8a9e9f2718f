// Package app owns the application lifecycle: it wires the engine's
// dependencies (venues, stores, caches, blob storage, notifications), starts
// the goroutines for the configured operating mode, and tears everything down
// in reverse order on shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quantfall/crossarb/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that run in reverse order on shutdown.
type App struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	closers    []func()
}

// New creates an App from the given configuration and logger. configPath is
// re-read on SIGHUP to hot-reload the risk caps.
func New(cfg *config.Config, configPath string, logger *slog.Logger) *App {
	return &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the configured mode, and blocks until
// the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting engine",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// SIGHUP tightens (or loosens) the risk caps without a restart.
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)
	go a.watchRiskCaps(ctx, sighup, deps.RiskCaps)

	switch strings.ToLower(a.cfg.Mode) {
	case "live":
		return a.runEngine(ctx, deps, false)
	case "paper":
		return a.runEngine(ctx, deps, true)
	case "scan":
		return a.runScan(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// watchRiskCaps re-reads the [risk] table from the config file whenever a
// signal arrives. A failed reload keeps the caps currently in effect.
func (a *App) watchRiskCaps(ctx context.Context, sigs <-chan os.Signal, caps *config.RiskProvider) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if err := caps.Reload(a.configPath); err != nil {
				a.logger.Error("risk caps reload failed",
					slog.String("path", a.configPath),
					slog.String("error", err.Error()),
				)
				continue
			}
			cur := caps.Current()
			a.logger.Info("risk caps reloaded",
				slog.Float64("daily_volume_cap_usd", cur.DailyVolumeCapUSD),
				slog.Float64("daily_loss_cap_usd", cur.DailyLossCapUSD),
				slog.Int("max_consecutive_losses", cur.MaxConsecutiveLosses),
			)
		}
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
