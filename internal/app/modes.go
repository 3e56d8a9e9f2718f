package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfall/crossarb/internal/domain"
	"github.com/quantfall/crossarb/internal/executor"
	"github.com/quantfall/crossarb/internal/scheduler"
)

const (
	executionChannel = "crossarb:executions"
	executionStream  = "crossarb:executions:stream"
	approvalChannel  = "crossarb:approvals"
	archiveInterval  = 6 * time.Hour
	persistTimeout   = 5 * time.Second
)

// approvalCommand is an operator decision received over the signal bus.
type approvalCommand struct {
	ID     string `json:"id"`
	Action string `json:"action"` // approve | reject
}

// executionEvent is the JSON shape published to the execution channel and
// stream after each terminal result.
type executionEvent struct {
	TradeID     string    `json:"trade_id"`
	Asset       string    `json:"asset"`
	BuyVenue    string    `json:"buy_venue"`
	SellVenue   string    `json:"sell_venue"`
	SizeUSD     float64   `json:"size_usd"`
	ProfitUSD   float64   `json:"profit_usd"`
	Stranded    bool      `json:"stranded"`
	DryRun      bool      `json:"dry_run"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// runEngine is the main trading loop shared by live and paper modes. It starts
// the websocket feeds, the scheduler, and the periodic aggregate-qualify cycle,
// and blocks until the context is cancelled.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, dryRun bool) error {
	exec := executor.New(deps.Venues, a.cfg.Executor, dryRun, a.logger)
	sched := scheduler.New(
		a.cfg.Scheduler.MaxConcurrent,
		a.cfg.Scheduler.QueueCapacity,
		a.cfg.Scheduler.MaxRetries,
		a.cfg.Scheduler.PriorityDecay,
		a.cfg.Scheduler.ExecutionTimeout.Duration,
		exec,
		a.logger,
		scheduler.WithResultHandler(func(res domain.ExecutionResult) {
			a.handleResult(deps, res)
		}),
		scheduler.WithCancelHandler(func(p domain.TradeProposal) {
			deps.Tracker.ReleaseVolume(p.SizeUSD)
		}),
	)
	sched.Start(ctx)

	// The kill switch drains the queue and signals in-flight executions the
	// moment the tracker trips it.
	deps.Tracker.OnEmergencyStop(func(reason string) {
		queued, active := sched.EmergencyStop()
		a.logger.Error("emergency stop engaged",
			slog.String("reason", reason),
			slog.Int("queued_canceled", queued),
			slog.Int("active_signaled", active),
		)
		nctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := deps.Notifier.EmergencyStopped(nctx, reason, queued, active); err != nil {
			a.logger.Warn("emergency stop notification failed", slog.String("error", err.Error()))
		}
		if deps.AuditStore != nil {
			if err := deps.AuditStore.Log(nctx, "emergency_stop", map[string]any{
				"reason":          reason,
				"queued_canceled": queued,
				"active_signaled": active,
			}); err != nil {
				a.logger.Warn("audit log failed", slog.String("error", err.Error()))
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	for _, f := range deps.Feeds {
		f := f
		g.Go(func() error {
			defer f.Close()
			return f.Run(gctx)
		})
	}

	if deps.SignalBus != nil {
		g.Go(func() error {
			return a.runApprovalListener(gctx, deps, sched)
		})
	}

	if deps.Archiver != nil && a.cfg.S3.RetainDays > 0 {
		g.Go(func() error {
			return a.runArchiveLoop(gctx, deps)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.CycleInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				a.runCycle(gctx, deps, sched)
			}
		}
	})

	err := g.Wait()
	sched.Wait()

	st := sched.GetStatus()
	a.logger.Info("engine stopped",
		slog.Int("completed", st.Completed),
		slog.Int("failed", st.Failed),
		slog.Int("canceled", st.Canceled),
		slog.Int("retried", st.Retried),
	)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("app: engine: %w", err)
	}
	return nil
}

// runCycle performs one aggregate-qualify-schedule pass over all configured
// assets.
func (a *App) runCycle(ctx context.Context, deps *Dependencies, sched *scheduler.Scheduler) {
	records := deps.Aggregator.Aggregate(ctx, a.cfg.Assets)
	for asset, rec := range records {
		if rec == nil {
			continue
		}
		p := deps.Qualifier.Qualify(ctx, *rec)
		switch p.Status {
		case domain.ProposalAdmitted:
			if err := sched.Enqueue(p); err != nil {
				// The qualifier reserved daily volume for this proposal;
				// give it back since the trade will never run.
				deps.Tracker.ReleaseVolume(p.SizeUSD)
				a.logger.Warn("enqueue rejected",
					slog.String("asset", asset),
					slog.String("id", p.ID),
					slog.String("error", err.Error()),
				)
			}
		case domain.ProposalProposed:
			nctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			if err := deps.Notifier.ApprovalPending(nctx, p); err != nil {
				a.logger.Warn("approval notification failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// runApprovalListener consumes operator decisions from the signal bus and
// feeds approved proposals to the scheduler.
func (a *App) runApprovalListener(ctx context.Context, deps *Dependencies, sched *scheduler.Scheduler) error {
	msgs, err := deps.SignalBus.Subscribe(ctx, approvalChannel)
	if err != nil {
		return fmt.Errorf("app: subscribe approvals: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			var cmd approvalCommand
			if err := json.Unmarshal(raw, &cmd); err != nil {
				a.logger.Warn("malformed approval command", slog.String("error", err.Error()))
				continue
			}
			switch cmd.Action {
			case "approve":
				p, err := deps.Qualifier.Approve(cmd.ID)
				if err != nil {
					a.logger.Warn("approve failed", slog.String("id", cmd.ID), slog.String("error", err.Error()))
					continue
				}
				if err := sched.Enqueue(p); err != nil {
					deps.Tracker.ReleaseVolume(p.SizeUSD)
					a.logger.Warn("enqueue after approval rejected",
						slog.String("id", p.ID),
						slog.String("error", err.Error()),
					)
				}
			case "reject":
				if err := deps.Qualifier.Reject(ctx, cmd.ID, domain.RejectOperator); err != nil {
					a.logger.Warn("reject failed", slog.String("id", cmd.ID), slog.String("error", err.Error()))
				}
			default:
				a.logger.Warn("unknown approval action", slog.String("action", cmd.Action))
			}
		}
	}
}

// runArchiveLoop periodically moves aged execution results into object storage.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.RetainDays)
			if err := deps.Archiver.ArchiveBefore(ctx, cutoff); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// handleResult processes one terminal execution result: risk accounting,
// persistence, event fan-out, and operator alerts. Runs on a scheduler
// goroutine, so persistence uses its own bounded context rather than the
// (possibly already cancelled) engine context.
func (a *App) handleResult(deps *Dependencies, res domain.ExecutionResult) {
	deps.Tracker.Apply(res)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if deps.ResultStore != nil {
		if err := deps.ResultStore.Create(ctx, res); err != nil {
			a.logger.Error("persist result failed",
				slog.String("trade_id", res.TradeID),
				slog.String("error", err.Error()),
			)
		}
	}

	if deps.SignalBus != nil {
		ev := executionEvent{
			TradeID:     res.TradeID,
			Asset:       res.Asset,
			BuyVenue:    res.BuyVenue,
			SellVenue:   res.SellVenue,
			SizeUSD:     res.SizeUSD,
			ProfitUSD:   res.ActualProfitUSD,
			Stranded:    res.StrandedAsset,
			DryRun:      res.DryRun,
			CompletedAt: res.CompletedAt,
		}
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := deps.SignalBus.Publish(ctx, executionChannel, payload); err != nil {
				a.logger.Warn("publish execution event failed", slog.String("error", err.Error()))
			}
			if err := deps.SignalBus.StreamAppend(ctx, executionStream, payload); err != nil {
				a.logger.Warn("append execution stream failed", slog.String("error", err.Error()))
			}
		}
	}

	switch {
	case res.StrandedAsset:
		if err := deps.Notifier.StrandedPosition(ctx, res); err != nil {
			a.logger.Error("stranded alert failed", slog.String("error", err.Error()))
		}
		if deps.AuditStore != nil {
			if err := deps.AuditStore.Log(ctx, "stranded_position", map[string]any{
				"trade_id":  res.TradeID,
				"asset":     res.Asset,
				"buy_venue": res.BuyVenue,
				"size_usd":  res.SizeUSD,
			}); err != nil {
				a.logger.Warn("audit log failed", slog.String("error", err.Error()))
			}
		}
	case res.Succeeded():
		if err := deps.Notifier.TradeCompleted(ctx, res); err != nil {
			a.logger.Warn("completion notification failed", slog.String("error", err.Error()))
		}
	}
}

// runScan aggregates and qualifies without ever executing. Reserved volume is
// released immediately so repeated scans do not exhaust the daily budget.
func (a *App) runScan(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.CycleInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			records := deps.Aggregator.Aggregate(ctx, a.cfg.Assets)
			for asset, rec := range records {
				if rec == nil {
					continue
				}
				p := deps.Qualifier.Qualify(ctx, *rec)
				switch p.Status {
				case domain.ProposalRejected:
					continue
				case domain.ProposalProposed:
					// Scan mode has no operator loop; drop the pending
					// approval so its reservation is freed.
					_ = deps.Qualifier.Reject(ctx, p.ID, domain.RejectOperator)
				default:
					deps.Tracker.ReleaseVolume(p.SizeUSD)
				}
				a.logger.Info("opportunity",
					slog.String("asset", asset),
					slog.String("buy_venue", p.BuyVenue),
					slog.String("sell_venue", p.SellVenue),
					slog.Float64("net_spread_pct", p.NetSpreadPct),
					slog.Float64("quality", p.Quality.Total),
					slog.Float64("size_usd", p.SizeUSD),
					slog.Float64("expected_profit_usd", p.ExpectedProfitUSD),
				)
			}
		}
	}
}
