package domain

import "time"

// ExecutionResult is the terminal record of one scheduled trade. Exactly one
// is produced per execution attempt that ran to completion (success, failure,
// or stranded); it feeds the risk tracker, the audit store, and the execution
// event bus.
type ExecutionResult struct {
	TradeID         string
	Asset           string
	BuyVenue        string
	SellVenue       string
	SizeUSD         float64
	BuyOrder        *OrderFill
	SellOrder       *OrderFill
	ActualProfitUSD float64
	// StrandedAsset is set when the buy filled but every sell attempt failed.
	// The bought quantity sits on the buy venue with no automated remedy; the
	// result must reach an alerting channel.
	StrandedAsset bool
	DryRun        bool
	Err           error
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Succeeded reports whether both legs filled.
func (r ExecutionResult) Succeeded() bool {
	return r.Err == nil && !r.StrandedAsset && r.BuyOrder != nil && r.SellOrder != nil
}

// Loss reports whether the trade completed with a negative realized profit.
// Stranded and failed trades are not losses in the P&L sense until unwound,
// but they do count against the consecutive-loss safety cap.
func (r ExecutionResult) Loss() bool {
	if r.StrandedAsset || r.Err != nil {
		return true
	}
	return r.ActualProfitUSD < 0
}
