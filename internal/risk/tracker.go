// Package risk owns the shared risk counters. A single mutex-guarded Tracker
// is the only writer; every other component reads point-in-time snapshots or
// reserves budget through atomic helpers.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
)

// StopFunc is invoked at most once when a safety cap trips. It must not call
// back into the Tracker.
type StopFunc func(reason string)

// Tracker accumulates execution results into the shared risk state. Daily
// counters roll over at UTC midnight; the high-water mark and emergency-stop
// flag persist for the process lifetime.
type Tracker struct {
	mu       sync.Mutex
	caps     *config.RiskProvider
	logger   *slog.Logger
	onStop   StopFunc
	stopSent bool

	day               time.Time
	dailyVolumeUSD    float64
	reservedUSD       float64
	dailyProfitUSD    float64
	cumProfitUSD      float64
	highWaterMarkUSD  float64
	consecutiveLosses int
	emergencyStop     bool
	completed         int
	stranded          int
	now               func() time.Time
}

// NewTracker creates a Tracker reading caps from the given provider.
func NewTracker(caps *config.RiskProvider, logger *slog.Logger) *Tracker {
	return &Tracker{
		caps:   caps,
		logger: logger.With(slog.String("component", "risk_tracker")),
		day:    time.Now().UTC().Truncate(24 * time.Hour),
		now:    time.Now,
	}
}

// OnEmergencyStop registers the callback fired when a cap trips. Must be
// called before results start flowing.
func (t *Tracker) OnEmergencyStop(fn StopFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStop = fn
}

// Apply folds one execution result into the risk state. It is the single
// write path; concurrent executor goroutines serialize here, so no update is
// ever lost.
func (t *Tracker) Apply(res domain.ExecutionResult) {
	t.mu.Lock()
	t.rolloverLocked()

	// The qualifier reserved this trade's budget; the reservation converts to
	// real volume (or evaporates on a buy that never happened).
	if t.reservedUSD >= res.SizeUSD {
		t.reservedUSD -= res.SizeUSD
	} else {
		t.reservedUSD = 0
	}
	if res.BuyOrder != nil {
		t.dailyVolumeUSD += res.BuyOrder.Notional()
	}

	if res.Succeeded() {
		t.completed++
		t.dailyProfitUSD += res.ActualProfitUSD
		t.cumProfitUSD += res.ActualProfitUSD
		if res.ActualProfitUSD < 0 {
			t.consecutiveLosses++
		} else {
			t.consecutiveLosses = 0
		}
	} else {
		if res.StrandedAsset {
			t.stranded++
		}
		t.consecutiveLosses++
	}

	if t.cumProfitUSD > t.highWaterMarkUSD {
		t.highWaterMarkUSD = t.cumProfitUSD
	}

	caps := t.caps.Current()
	var stopReason string
	switch {
	case t.emergencyStop:
		// already stopped
	case t.dailyProfitUSD <= -caps.DailyLossCapUSD:
		stopReason = "daily loss cap breached"
	case t.consecutiveLosses >= caps.MaxConsecutiveLosses:
		stopReason = "consecutive loss cap breached"
	}
	var fire StopFunc
	if stopReason != "" {
		t.emergencyStop = true
		if !t.stopSent && t.onStop != nil {
			t.stopSent = true
			fire = t.onStop
		}
		t.logger.Error("risk cap tripped, engaging emergency stop",
			slog.String("reason", stopReason),
			slog.Float64("daily_profit_usd", t.dailyProfitUSD),
			slog.Int("consecutive_losses", t.consecutiveLosses),
		)
	}
	t.mu.Unlock()

	if fire != nil {
		fire(stopReason)
	}
}

// ReserveVolume atomically checks and reserves sizeUSD against the remaining
// daily-volume budget. It returns false when the reservation would push the
// day over the cap. Concurrent qualifications cannot jointly over-admit:
// the check and the reservation happen under one lock.
func (t *Tracker) ReserveVolume(sizeUSD float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	caps := t.caps.Current()
	if t.dailyVolumeUSD+t.reservedUSD+sizeUSD > caps.DailyVolumeCapUSD {
		return false
	}
	t.reservedUSD += sizeUSD
	return true
}

// ReleaseVolume returns a reservation that will never execute (proposal
// rejected downstream, trade canceled before its buy leg).
func (t *Tracker) ReleaseVolume(sizeUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reservedUSD >= sizeUSD {
		t.reservedUSD -= sizeUSD
	} else {
		t.reservedUSD = 0
	}
}

// RemainingDailyBudget returns the unreserved daily-volume budget in USD.
func (t *Tracker) RemainingDailyBudget() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	rem := t.caps.Current().DailyVolumeCapUSD - t.dailyVolumeUSD - t.reservedUSD
	if rem < 0 {
		return 0
	}
	return rem
}

// SetEmergencyStop forces the stop flag, e.g. from an operator command.
func (t *Tracker) SetEmergencyStop(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emergencyStop = v
	if !v {
		t.stopSent = false
	}
}

// Snapshot returns a consistent copy of the risk state.
func (t *Tracker) Snapshot() domain.RiskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	dd := 0.0
	if t.highWaterMarkUSD > 0 {
		dd = (t.highWaterMarkUSD - t.cumProfitUSD) / t.highWaterMarkUSD * 100
	}
	return domain.RiskState{
		DailyVolumeUSD:     t.dailyVolumeUSD,
		DailyProfitUSD:     t.dailyProfitUSD,
		ConsecutiveLosses:  t.consecutiveLosses,
		EmergencyStop:      t.emergencyStop,
		HighWaterMarkUSD:   t.highWaterMarkUSD,
		CurrentDrawdownPct: dd,
		TradesCompleted:    t.completed,
		TradesStranded:     t.stranded,
		Day:                t.day,
	}
}

// rolloverLocked resets the daily counters when the UTC day has changed.
// The emergency-stop flag and high-water mark survive rollover.
func (t *Tracker) rolloverLocked() {
	today := t.now().UTC().Truncate(24 * time.Hour)
	if today.Equal(t.day) {
		return
	}
	t.logger.Info("daily risk counters rolled over",
		slog.Time("previous_day", t.day),
		slog.Float64("volume_usd", t.dailyVolumeUSD),
		slog.Float64("profit_usd", t.dailyProfitUSD),
	)
	t.day = today
	t.dailyVolumeUSD = 0
	t.dailyProfitUSD = 0
	t.reservedUSD = 0
	t.consecutiveLosses = 0
}
