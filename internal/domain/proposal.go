package domain

import "time"

// ProposalStatus tracks a trade proposal through admission control.
type ProposalStatus string

const (
	// ProposalProposed means the proposal passed every gate but exceeds the
	// auto-admit size threshold and is waiting for manual approval.
	ProposalProposed ProposalStatus = "proposed"
	// ProposalAdmitted means the proposal may be handed to the scheduler.
	ProposalAdmitted ProposalStatus = "admitted"
	// ProposalRejected means an admission rule failed; RejectReason says which.
	ProposalRejected ProposalStatus = "rejected"
)

// RejectReason identifies the single admission rule that rejected a proposal.
type RejectReason string

const (
	RejectSpreadBelowFloor  RejectReason = "spread_below_floor"
	RejectQualityBelowFloor RejectReason = "quality_below_floor"
	RejectSlippageTooHigh   RejectReason = "slippage_too_high"
	RejectSizeBelowMinimum  RejectReason = "size_below_minimum"
	RejectEmergencyStop     RejectReason = "emergency_stop"
	RejectDailyVolumeCap    RejectReason = "daily_volume_cap"
	RejectDailyLossCap      RejectReason = "daily_loss_cap"
	RejectConsecutiveLosses RejectReason = "consecutive_losses"
	RejectOperator          RejectReason = "operator_rejected"
)

// QualityScore decomposes the 0-100 opportunity quality into its weighted
// components. Total is the weighted sum, not the sum of the raw components.
type QualityScore struct {
	Spread     float64 // 0-100 before the 40% weight
	Venue      float64 // 0-100 before the 30% weight
	Liquidity  float64 // 0-100 before the 20% weight
	Volatility float64 // 0-100 before the 10% weight
	Total      float64
}

// TradeProposal is a sized, scored candidate trade produced by the qualifier.
// Once admitted the proposal is immutable except for status transitions made
// by the scheduler.
type TradeProposal struct {
	ID                string
	Asset             string
	BuyVenue          string
	SellVenue         string
	BuyPrice          float64
	SellPrice         float64
	NetSpreadPct      float64
	Fees              FeeBreakdown
	SizeUSD           float64
	ExpectedProfitUSD float64
	Quality           QualityScore
	RiskScore         float64
	Priority          float64
	Status            ProposalStatus
	RejectReason      RejectReason
	CreatedAt         time.Time
}

// Quantity returns the base-asset quantity implied by SizeUSD at the buy price.
func (p TradeProposal) Quantity() float64 {
	if p.BuyPrice <= 0 {
		return 0
	}
	return p.SizeUSD / p.BuyPrice
}

// VenuePairKey returns an order-independent key for the venue pair, used by
// the scheduler's conflict detection.
func (p TradeProposal) VenuePairKey() string {
	if p.BuyVenue < p.SellVenue {
		return p.BuyVenue + "|" + p.SellVenue
	}
	return p.SellVenue + "|" + p.BuyVenue
}
