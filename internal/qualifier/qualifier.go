// Package qualifier turns raw spread records into sized, scored trade
// proposals, or rejects them with exactly one recorded reason. Every step is
// deterministic given identical inputs.
package qualifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
	"github.com/quantfall/crossarb/internal/risk"
)

// Qualifier runs the admission pipeline: spread floor, quality score,
// position sizing, slippage check, safety-cap gate, approval policy.
type Qualifier struct {
	cfg        config.QualifierConfig
	venueTiers map[string]int
	riskCaps   *config.RiskProvider
	tracker    *risk.Tracker
	approvals  *Approvals
	audit      domain.AuditStore // optional
	logger     *slog.Logger
	newID      func() string
	now        func() time.Time
}

// New creates a Qualifier. venueTiers maps venue name → trust tier (1 best);
// audit may be nil.
func New(cfg config.QualifierConfig, venueTiers map[string]int, riskCaps *config.RiskProvider, tracker *risk.Tracker, audit domain.AuditStore, logger *slog.Logger) *Qualifier {
	q := &Qualifier{
		cfg:        cfg,
		venueTiers: venueTiers,
		riskCaps:   riskCaps,
		tracker:    tracker,
		audit:      audit,
		logger:     logger.With(slog.String("component", "qualifier")),
		newID:      func() string { return uuid.New().String() },
		now:        time.Now,
	}
	q.approvals = NewApprovals(tracker.ReleaseVolume)
	return q
}

// Qualify evaluates one spread record. The returned proposal is admitted,
// rejected with a single reason, or left proposed pending manual approval.
// Evaluations of independent records may run concurrently; the safety-cap
// gate reserves daily volume atomically so parallel passes cannot jointly
// over-admit past the cap.
func (q *Qualifier) Qualify(ctx context.Context, rec domain.SpreadRecord) domain.TradeProposal {
	p := domain.TradeProposal{
		ID:           q.newID(),
		Asset:        rec.Asset,
		BuyVenue:     rec.BuyVenue,
		SellVenue:    rec.SellVenue,
		BuyPrice:     rec.BuyPrice,
		SellPrice:    rec.SellPrice,
		NetSpreadPct: rec.NetSpreadPct,
		Fees:         rec.Fees,
		CreatedAt:    q.now(),
	}

	// 1. Spread floor.
	if rec.NetSpreadPct < q.cfg.MinNetSpreadPct {
		return q.reject(ctx, p, domain.RejectSpreadBelowFloor)
	}

	// 2. Quality score.
	p.Quality = Score(rec, q.venueTiers, q.cfg.Scoring)
	if p.Quality.Total < q.cfg.Scoring.MinQuality {
		return q.reject(ctx, p, domain.RejectQualityBelowFloor)
	}

	// 3. Position sizing.
	vol := q.cfg.Scoring.AssetVolatilityPct[rec.Asset]
	in := SizeInput{
		NetSpreadPct:      rec.NetSpreadPct,
		Quality:           p.Quality.Total,
		VolatilityPct:     vol,
		RemainingDailyUSD: q.tracker.RemainingDailyBudget(),
	}
	size, ok := ComputeSize(in, q.cfg.Sizing)
	if !ok {
		return q.reject(ctx, p, domain.RejectSizeBelowMinimum)
	}

	// 4. Slippage check, with optional walk-down to a smaller viable size.
	tier := assetTier(rec.Asset, q.cfg.Scoring)
	slip := EstimateSlippage(size, tier, q.cfg.Slippage)
	if rec.NetSpreadPct-slip < q.cfg.MinNetSpreadPct {
		size, slip, ok = q.resize(rec.NetSpreadPct, size, tier)
		if !ok {
			return q.reject(ctx, p, domain.RejectSlippageTooHigh)
		}
	}
	p.SizeUSD = size
	p.ExpectedProfitUSD = size * (rec.NetSpreadPct - slip) / 100
	p.RiskScore = riskScore(vol, size, q.cfg.Sizing.MaxSizeUSD)
	p.Priority = priority(rec.NetSpreadPct, p.Quality.Total, p.ExpectedProfitUSD)

	// 5. Safety-cap gate, against a consistent snapshot plus an atomic
	// volume reservation.
	snap := q.tracker.Snapshot()
	caps := q.riskCaps.Current()
	switch {
	case snap.EmergencyStop:
		return q.reject(ctx, p, domain.RejectEmergencyStop)
	case snap.ConsecutiveLosses >= caps.MaxConsecutiveLosses:
		return q.reject(ctx, p, domain.RejectConsecutiveLosses)
	case snap.DailyProfitUSD <= -caps.DailyLossCapUSD:
		return q.reject(ctx, p, domain.RejectDailyLossCap)
	}
	if !q.tracker.ReserveVolume(size) {
		return q.reject(ctx, p, domain.RejectDailyVolumeCap)
	}

	// 6. Approval policy.
	if size > q.cfg.ApprovalThresholdUSD {
		p.Status = domain.ProposalProposed
		q.approvals.Add(p)
		q.logger.Info("proposal pending approval",
			slog.String("id", p.ID),
			slog.String("asset", p.Asset),
			slog.Float64("size_usd", p.SizeUSD),
		)
		return p
	}

	p.Status = domain.ProposalAdmitted
	q.logger.Info("proposal admitted",
		slog.String("id", p.ID),
		slog.String("asset", p.Asset),
		slog.String("buy_venue", p.BuyVenue),
		slog.String("sell_venue", p.SellVenue),
		slog.Float64("size_usd", p.SizeUSD),
		slog.Float64("net_spread_pct", p.NetSpreadPct),
		slog.Float64("quality", p.Quality.Total),
	)
	return p
}

// resize walks the size down through fixed fractions and returns the largest
// one that passes the slippage check and still meets the minimum size.
func (q *Qualifier) resize(netSpreadPct, size float64, tier int) (float64, float64, bool) {
	if !q.cfg.ResizeOnSlippage {
		return 0, 0, false
	}
	for _, f := range sizeWalkdown {
		reduced := size * f
		if reduced < q.cfg.Sizing.MinSizeUSD {
			return 0, 0, false
		}
		slip := EstimateSlippage(reduced, tier, q.cfg.Slippage)
		if netSpreadPct-slip >= q.cfg.MinNetSpreadPct {
			return reduced, slip, true
		}
	}
	return 0, 0, false
}

// reject finalizes a proposal with its single rejection reason and records it
// to the audit log when one is configured.
func (q *Qualifier) reject(ctx context.Context, p domain.TradeProposal, reason domain.RejectReason) domain.TradeProposal {
	p.Status = domain.ProposalRejected
	p.RejectReason = reason
	q.logger.Debug("proposal rejected",
		slog.String("asset", p.Asset),
		slog.String("reason", string(reason)),
		slog.Float64("net_spread_pct", p.NetSpreadPct),
	)
	if q.audit != nil {
		if err := q.audit.Log(ctx, "proposal_rejected", map[string]any{
			"asset":          p.Asset,
			"buy_venue":      p.BuyVenue,
			"sell_venue":     p.SellVenue,
			"net_spread_pct": p.NetSpreadPct,
			"reason":         string(reason),
		}); err != nil {
			q.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	return p
}

// GetPendingApprovals returns proposals waiting on operator action.
func (q *Qualifier) GetPendingApprovals() []domain.TradeProposal {
	return q.approvals.List()
}

// Approve admits a pending proposal; the caller is responsible for handing it
// to the scheduler.
func (q *Qualifier) Approve(id string) (domain.TradeProposal, error) {
	return q.approvals.Approve(id)
}

// Reject discards a pending proposal and frees its reserved volume budget.
func (q *Qualifier) Reject(ctx context.Context, id string, reason domain.RejectReason) error {
	p, err := q.approvals.Reject(id, reason)
	if err != nil {
		return err
	}
	if q.audit != nil {
		if err := q.audit.Log(ctx, "approval_rejected", map[string]any{
			"id":     p.ID,
			"asset":  p.Asset,
			"reason": string(reason),
		}); err != nil {
			q.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// priority orders admitted proposals in the scheduler's queue. Wider net
// spreads dominate; quality and expected profit break near-ties.
func priority(netSpreadPct, quality, expectedProfitUSD float64) float64 {
	return netSpreadPct*40 + quality*0.4 + expectedProfitUSD*0.2
}

// riskScore is a coarse 0-100 riskiness indicator carried on the proposal for
// downstream consumers; it does not gate admission.
func riskScore(volatilityPct, sizeUSD, maxSizeUSD float64) float64 {
	s := volatilityPct*10 + sizeUSD/maxSizeUSD*50
	if s > 100 {
		s = 100
	}
	return s
}
