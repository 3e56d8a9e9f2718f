package domain

import "time"

// OrderSide indicates whether a leg buys or sells the base asset.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// TradeState tracks a scheduled trade through the scheduler's state machine:
// queued → executing → {completed | retrying → executing | failed}, plus
// queued → canceled on emergency stop or queue overflow.
type TradeState string

const (
	TradeQueued    TradeState = "queued"
	TradeExecuting TradeState = "executing"
	TradeRetrying  TradeState = "retrying"
	TradeCompleted TradeState = "completed"
	TradeFailed    TradeState = "failed"
	TradeCanceled  TradeState = "canceled"
)

// Terminal reports whether the state is final.
func (s TradeState) Terminal() bool {
	switch s {
	case TradeCompleted, TradeFailed, TradeCanceled:
		return true
	default:
		return false
	}
}

// ScheduledTrade wraps an admitted proposal while it is owned by the
// scheduler. The scheduler is the only writer; external callers see copies.
type ScheduledTrade struct {
	Proposal    TradeProposal
	Priority    float64 // decays on retry; starts at Proposal.Priority
	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Retries     int
	State       TradeState
}

// OrderFill is the venue's answer to a market order: what actually filled, at
// what average price, and what it cost.
type OrderFill struct {
	OrderID   string
	Venue     string
	Asset     string
	Side      OrderSide
	FilledQty float64
	AvgPrice  float64
	FeeUSD    float64
	PlacedAt  time.Time
}

// Notional returns the filled notional in USD.
func (f OrderFill) Notional() float64 {
	return f.FilledQty * f.AvgPrice
}
