// Package notify delivers operator alerts over multiple channels. Events can
// be filtered by type so operators receive only the alerts they care about;
// stranded positions and emergency stops should never be filtered out in a
// live deployment.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfall/crossarb/internal/domain"
)

// Event types emitted by the engine.
const (
	EventStranded        = "stranded_position"
	EventEmergencyStop   = "emergency_stop"
	EventTradeCompleted  = "trade_completed"
	EventApprovalPending = "approval_pending"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches notifications to one or more Senders, filtered by an
// allowed-event set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// listed in events are forwarded; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// StrandedPosition alerts that a trade bought but could not sell. This is the
// loudest alert the engine produces: the position needs a human.
func (n *Notifier) StrandedPosition(ctx context.Context, res domain.ExecutionResult) error {
	qty := 0.0
	if res.BuyOrder != nil {
		qty = res.BuyOrder.FilledQty
	}
	msg := fmt.Sprintf(
		"trade %s: bought %.6f %s on %s but every sell attempt on %s failed.\nPosition requires manual intervention.\nLast error: %v",
		res.TradeID, qty, res.Asset, res.BuyVenue, res.SellVenue, res.Err,
	)
	return n.Notify(ctx, EventStranded, "STRANDED POSITION", msg)
}

// EmergencyStopped alerts that the kill switch engaged.
func (n *Notifier) EmergencyStopped(ctx context.Context, reason string, queuedCanceled, activeSignaled int) error {
	msg := fmt.Sprintf(
		"trading halted: %s\nqueued trades canceled: %d\nin-flight executions signalled: %d",
		reason, queuedCanceled, activeSignaled,
	)
	return n.Notify(ctx, EventEmergencyStop, "EMERGENCY STOP", msg)
}

// TradeCompleted reports a finished round trip.
func (n *Notifier) TradeCompleted(ctx context.Context, res domain.ExecutionResult) error {
	msg := fmt.Sprintf(
		"%s: buy %s / sell %s, size $%.2f, profit $%.2f",
		res.Asset, res.BuyVenue, res.SellVenue, res.SizeUSD, res.ActualProfitUSD,
	)
	return n.Notify(ctx, EventTradeCompleted, "Trade completed", msg)
}

// ApprovalPending asks the operator to act on an oversized proposal.
func (n *Notifier) ApprovalPending(ctx context.Context, p domain.TradeProposal) error {
	msg := fmt.Sprintf(
		"proposal %s: %s buy %s / sell %s, size $%.2f exceeds the auto-admit threshold and awaits approval",
		p.ID, p.Asset, p.BuyVenue, p.SellVenue, p.SizeUSD,
	)
	return n.Notify(ctx, EventApprovalPending, "Approval required", msg)
}

// dispatch fans the notification out to every sender. A single sender failure
// does not prevent delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
