package domain

import "time"

// RiskState is a point-in-time snapshot of the shared risk counters. The risk
// tracker owns the mutable state; everyone else reads snapshots.
type RiskState struct {
	DailyVolumeUSD     float64
	DailyProfitUSD     float64
	ConsecutiveLosses  int
	EmergencyStop      bool
	HighWaterMarkUSD   float64
	CurrentDrawdownPct float64
	TradesCompleted    int
	TradesStranded     int
	Day                time.Time // UTC midnight of the trading day the counters cover
}
