package qualifier

import (
	"sync"

	"github.com/quantfall/crossarb/internal/domain"
)

// Approvals holds proposals whose size exceeds the auto-admit threshold until
// an operator approves or rejects them. The daily-volume reservation made at
// qualification time stays held while a proposal is pending; Reject releases
// it through the onRelease callback.
type Approvals struct {
	mu        sync.Mutex
	pending   map[string]domain.TradeProposal
	onRelease func(sizeUSD float64)
}

// NewApprovals creates an empty approval queue. onRelease is invoked with the
// proposal size whenever a pending proposal is rejected.
func NewApprovals(onRelease func(sizeUSD float64)) *Approvals {
	return &Approvals{
		pending:   make(map[string]domain.TradeProposal),
		onRelease: onRelease,
	}
}

// Add parks a proposal awaiting operator action.
func (a *Approvals) Add(p domain.TradeProposal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[p.ID] = p
}

// List returns a copy of all pending proposals.
func (a *Approvals) List() []domain.TradeProposal {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.TradeProposal, 0, len(a.pending))
	for _, p := range a.pending {
		out = append(out, p)
	}
	return out
}

// Approve admits a pending proposal and returns it for scheduling.
func (a *Approvals) Approve(id string) (domain.TradeProposal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[id]
	if !ok {
		return domain.TradeProposal{}, domain.ErrNotPending
	}
	delete(a.pending, id)
	p.Status = domain.ProposalAdmitted
	return p, nil
}

// Reject discards a pending proposal and releases its volume reservation.
func (a *Approvals) Reject(id string, reason domain.RejectReason) (domain.TradeProposal, error) {
	a.mu.Lock()
	p, ok := a.pending[id]
	if !ok {
		a.mu.Unlock()
		return domain.TradeProposal{}, domain.ErrNotPending
	}
	delete(a.pending, id)
	p.Status = domain.ProposalRejected
	p.RejectReason = reason
	a.mu.Unlock()

	if a.onRelease != nil {
		a.onRelease(p.SizeUSD)
	}
	return p, nil
}
