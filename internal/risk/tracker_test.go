package risk

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/crossarb/internal/config"
	"github.com/quantfall/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(caps config.RiskConfig) *Tracker {
	return NewTracker(config.NewRiskProvider(caps), testLogger())
}

func defaultCaps() config.RiskConfig {
	return config.RiskConfig{
		DailyVolumeCapUSD:    1_000,
		DailyLossCapUSD:      100,
		MaxConsecutiveLosses: 3,
	}
}

func winResult(profit float64, sizeUSD float64) domain.ExecutionResult {
	return domain.ExecutionResult{
		SizeUSD:         sizeUSD,
		BuyOrder:        &domain.OrderFill{FilledQty: 1, AvgPrice: sizeUSD},
		SellOrder:       &domain.OrderFill{FilledQty: 1, AvgPrice: sizeUSD + profit},
		ActualProfitUSD: profit,
	}
}

func TestApplyConvertsReservationToVolume(t *testing.T) {
	tr := newTestTracker(defaultCaps())

	require.True(t, tr.ReserveVolume(100))
	assert.InDelta(t, 900, tr.RemainingDailyBudget(), 1e-9)

	tr.Apply(winResult(1, 100))

	snap := tr.Snapshot()
	assert.InDelta(t, 100, snap.DailyVolumeUSD, 1e-9)
	assert.InDelta(t, 1, snap.DailyProfitUSD, 1e-9)
	assert.Equal(t, 1, snap.TradesCompleted)
	// Reservation consumed, volume recorded: budget unchanged overall.
	assert.InDelta(t, 900, tr.RemainingDailyBudget(), 1e-9)
}

func TestReserveVolumeRejectsOverCap(t *testing.T) {
	tr := newTestTracker(defaultCaps())

	require.True(t, tr.ReserveVolume(600))
	require.True(t, tr.ReserveVolume(400))
	assert.False(t, tr.ReserveVolume(1))

	tr.ReleaseVolume(400)
	assert.True(t, tr.ReserveVolume(400))
}

func TestConcurrentReservationsNeverOverAdmit(t *testing.T) {
	tr := newTestTracker(config.RiskConfig{
		DailyVolumeCapUSD:    1_000,
		DailyLossCapUSD:      100,
		MaxConsecutiveLosses: 3,
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted float64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.ReserveVolume(100) {
				mu.Lock()
				granted += 100
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.InDelta(t, 1_000, granted, 1e-9)
	assert.Zero(t, tr.RemainingDailyBudget())
}

func TestConsecutiveLossesTripStopOnce(t *testing.T) {
	tr := newTestTracker(defaultCaps())

	var fired []string
	tr.OnEmergencyStop(func(reason string) { fired = append(fired, reason) })

	for i := 0; i < 3; i++ {
		tr.Apply(winResult(-5, 100))
	}
	snap := tr.Snapshot()
	assert.True(t, snap.EmergencyStop)
	assert.Equal(t, 3, snap.ConsecutiveLosses)
	require.Len(t, fired, 1)
	assert.Contains(t, fired[0], "consecutive loss")

	// Further losses do not re-fire the callback.
	tr.Apply(winResult(-5, 100))
	assert.Len(t, fired, 1)
}

func TestDailyLossCapTripsStop(t *testing.T) {
	tr := newTestTracker(defaultCaps())

	var reason string
	tr.OnEmergencyStop(func(r string) { reason = r })

	tr.Apply(winResult(-120, 500))

	assert.True(t, tr.Snapshot().EmergencyStop)
	assert.Contains(t, reason, "daily loss")
}

func TestWinResetsConsecutiveLosses(t *testing.T) {
	tr := newTestTracker(defaultCaps())

	tr.Apply(winResult(-5, 100))
	tr.Apply(winResult(-5, 100))
	tr.Apply(winResult(10, 100))

	snap := tr.Snapshot()
	assert.Zero(t, snap.ConsecutiveLosses)
	assert.False(t, snap.EmergencyStop)
}

func TestStrandedCountsAsLoss(t *testing.T) {
	tr := newTestTracker(defaultCaps())

	tr.Apply(domain.ExecutionResult{
		SizeUSD:       100,
		BuyOrder:      &domain.OrderFill{FilledQty: 1, AvgPrice: 100},
		StrandedAsset: true,
	})

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.TradesStranded)
	assert.Equal(t, 1, snap.ConsecutiveLosses)
	assert.InDelta(t, 100, snap.DailyVolumeUSD, 1e-9)
}

func TestRolloverResetsDailyCountersOnly(t *testing.T) {
	tr := newTestTracker(defaultCaps())

	day := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return day }
	tr.day = day.Truncate(24 * time.Hour)

	tr.Apply(winResult(50, 400))
	tr.SetEmergencyStop(true)

	before := tr.Snapshot()
	require.InDelta(t, 400, before.DailyVolumeUSD, 1e-9)
	require.InDelta(t, 50, before.HighWaterMarkUSD, 1e-9)

	tr.now = func() time.Time { return day.Add(24 * time.Hour) }

	after := tr.Snapshot()
	assert.Zero(t, after.DailyVolumeUSD)
	assert.Zero(t, after.DailyProfitUSD)
	assert.Zero(t, after.ConsecutiveLosses)
	// High-water mark and the stop flag survive the day boundary.
	assert.InDelta(t, 50, after.HighWaterMarkUSD, 1e-9)
	assert.True(t, after.EmergencyStop)
}

func TestDrawdownPct(t *testing.T) {
	tr := newTestTracker(config.RiskConfig{
		DailyVolumeCapUSD:    100_000,
		DailyLossCapUSD:      10_000,
		MaxConsecutiveLosses: 100,
	})

	tr.Apply(winResult(100, 500))
	tr.Apply(winResult(-25, 500))

	snap := tr.Snapshot()
	assert.InDelta(t, 100, snap.HighWaterMarkUSD, 1e-9)
	assert.InDelta(t, 25, snap.CurrentDrawdownPct, 1e-9)
}
