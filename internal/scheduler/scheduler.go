// Package scheduler runs admitted proposals through a bounded pool of
// concurrent executions. A priority queue feeds free slots, conflicting trades
// (same asset, or same venue pair in either direction) never execute
// concurrently, and failed attempts re-queue with decayed priority up to a
// retry limit.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quantfall/crossarb/internal/domain"
)

// TradeExecutor is the execution backend; satisfied by *executor.Executor.
type TradeExecutor interface {
	Execute(ctx context.Context, p domain.TradeProposal) domain.ExecutionResult
}

// Status is a point-in-time snapshot of the scheduler for operators and tests.
type Status struct {
	QueueDepth     int
	Active         []string // trade IDs currently executing
	Completed      int
	Failed         int
	Canceled       int
	Retried        int
	MaxObservedRun int
	Stopped        bool
}

// entry is the scheduler's mutable record for one trade. attempt increments on
// every launch; a completion carrying a stale attempt number is a late result
// from a timed-out run and is discarded.
type entry struct {
	trade   domain.ScheduledTrade
	attempt int
	cancel  context.CancelFunc
}

// Scheduler owns the queue, the in-flight registry, and all trade state
// transitions. All fields behind mu; execution runs on per-trade goroutines.
type Scheduler struct {
	maxConcurrent int
	queueCapacity int
	maxRetries    int
	priorityDecay float64
	execTimeout   time.Duration

	exec     TradeExecutor
	onResult func(domain.ExecutionResult) // terminal outcomes only
	onCancel func(p domain.TradeProposal) // queued trades dropped by stop
	logger   *slog.Logger

	mu       sync.Mutex
	baseCtx  context.Context
	queue    []*entry
	inflight map[string]*entry
	stopped  bool
	wg       sync.WaitGroup

	completed int
	failed    int
	canceled  int
	retried   int
	maxRun    int
}

// Option configures optional scheduler callbacks.
type Option func(*Scheduler)

// WithResultHandler registers the sink for terminal execution results.
func WithResultHandler(fn func(domain.ExecutionResult)) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

// WithCancelHandler registers a callback invoked for every queued trade the
// emergency stop cancels, so reserved budgets can be released.
func WithCancelHandler(fn func(p domain.TradeProposal)) Option {
	return func(s *Scheduler) { s.onCancel = fn }
}

// New creates a Scheduler. Start must be called before Enqueue.
func New(maxConcurrent, queueCapacity, maxRetries int, priorityDecay float64, execTimeout time.Duration, exec TradeExecutor, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		maxConcurrent: maxConcurrent,
		queueCapacity: queueCapacity,
		maxRetries:    maxRetries,
		priorityDecay: priorityDecay,
		execTimeout:   execTimeout,
		exec:          exec,
		logger:        logger.With(slog.String("component", "scheduler")),
		inflight:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the scheduler to its base context. Execution contexts derive
// from ctx, so cancelling it aborts all in-flight work.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// Wait blocks until every launched execution goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Enqueue accepts an admitted proposal into the queue and immediately
// dispatches it if a slot is free and no in-flight trade conflicts with it.
// It fails with ErrQueueFull when the queue is at capacity, ErrConflict when
// the proposal touches the same asset or venue pair as an executing trade,
// and ErrStopped after an emergency stop.
func (s *Scheduler) Enqueue(p domain.TradeProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseCtx == nil || s.stopped {
		return domain.ErrStopped
	}
	if len(s.queue) >= s.queueCapacity {
		return fmt.Errorf("scheduler: queue at capacity %d: %w", s.queueCapacity, domain.ErrQueueFull)
	}
	if other := s.conflictLocked(p); other != nil {
		return fmt.Errorf("scheduler: conflicts with executing trade %s: %w", other.trade.Proposal.ID, domain.ErrConflict)
	}

	en := &entry{
		trade: domain.ScheduledTrade{
			Proposal: p,
			Priority: p.Priority,
			QueuedAt: time.Now(),
			State:    domain.TradeQueued,
		},
	}
	s.insertLocked(en)
	s.logger.Info("trade queued",
		slog.String("trade_id", p.ID),
		slog.String("asset", p.Asset),
		slog.Float64("priority", en.trade.Priority),
		slog.Int("queue_depth", len(s.queue)),
	)
	s.dispatchLocked()
	return nil
}

// conflictLocked returns an in-flight entry that shares the asset or the
// unordered venue pair with p, or nil. Queued trades are not consulted: two
// same-asset trades may wait in the queue together as long as they never
// overlap in execution.
func (s *Scheduler) conflictLocked(p domain.TradeProposal) *entry {
	key := p.VenuePairKey()
	for _, en := range s.inflight {
		q := en.trade.Proposal
		if q.Asset == p.Asset || q.VenuePairKey() == key {
			return en
		}
	}
	return nil
}

// insertLocked places en into the queue ordered by descending priority, ties
// broken by earlier queue time.
func (s *Scheduler) insertLocked(en *entry) {
	i := sort.Search(len(s.queue), func(i int) bool {
		if s.queue[i].trade.Priority != en.trade.Priority {
			return s.queue[i].trade.Priority < en.trade.Priority
		}
		return s.queue[i].trade.QueuedAt.After(en.trade.QueuedAt)
	})
	s.queue = append(s.queue, nil)
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = en
}

// dispatchLocked launches queued trades into free slots, highest priority
// first, skipping any trade that conflicts with work already in flight.
func (s *Scheduler) dispatchLocked() {
	for len(s.inflight) < s.maxConcurrent && !s.stopped {
		idx := -1
		for i, en := range s.queue {
			if s.conflictLocked(en.trade.Proposal) == nil {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		en := s.queue[idx]
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)

		now := time.Now()
		en.trade.State = domain.TradeExecuting
		en.trade.StartedAt = &now
		en.attempt++
		s.inflight[en.trade.Proposal.ID] = en
		if n := len(s.inflight); n > s.maxRun {
			s.maxRun = n
		}

		ctx, cancel := context.WithTimeout(s.baseCtx, s.execTimeout)
		en.cancel = cancel
		s.wg.Add(1)
		go s.run(ctx, cancel, en, en.attempt)
	}
}

// run executes one attempt off the scheduler's lock. The executor honors its
// context, but a misbehaving venue client could block past the deadline; the
// timeout branch settles the trade immediately and the eventual late result is
// discarded by the attempt check in settle.
func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, en *entry, attempt int) {
	defer s.wg.Done()
	defer cancel()

	p := en.trade.Proposal
	resCh := make(chan domain.ExecutionResult, 1)
	go func() { resCh <- s.exec.Execute(ctx, p) }()

	select {
	case res := <-resCh:
		s.settle(en, attempt, res)
	case <-ctx.Done():
		s.settle(en, attempt, domain.ExecutionResult{
			TradeID:     p.ID,
			Asset:       p.Asset,
			BuyVenue:    p.BuyVenue,
			SellVenue:   p.SellVenue,
			SizeUSD:     p.SizeUSD,
			Err:         fmt.Errorf("scheduler: execution attempt %d: %w", attempt, ctx.Err()),
			CompletedAt: time.Now(),
		})
		go func() {
			res := <-resCh
			s.logger.Warn("discarding late execution result",
				slog.String("trade_id", res.TradeID),
				slog.Int("attempt", attempt),
			)
		}()
	}
}

// settle applies one attempt's outcome: complete, re-queue with decayed
// priority, or fail terminally. Results from superseded attempts are dropped.
func (s *Scheduler) settle(en *entry, attempt int, res domain.ExecutionResult) {
	s.mu.Lock()

	if en.attempt != attempt || en.trade.State != domain.TradeExecuting {
		s.mu.Unlock()
		return
	}
	delete(s.inflight, en.trade.Proposal.ID)
	en.cancel = nil
	now := time.Now()

	var terminal bool
	switch {
	case res.Succeeded():
		en.trade.State = domain.TradeCompleted
		en.trade.CompletedAt = &now
		s.completed++
		terminal = true

	case res.StrandedAsset:
		// A stranded position must never be retried: the capital is already
		// deployed and a second buy would double the exposure.
		en.trade.State = domain.TradeFailed
		en.trade.CompletedAt = &now
		s.failed++
		terminal = true

	case en.trade.Retries < s.maxRetries && !s.stopped:
		en.trade.Retries++
		en.trade.Priority *= s.priorityDecay
		en.trade.State = domain.TradeQueued
		en.trade.StartedAt = nil
		s.retried++
		s.insertLocked(en)
		s.logger.Warn("trade re-queued after failed attempt",
			slog.String("trade_id", en.trade.Proposal.ID),
			slog.Int("retry", en.trade.Retries),
			slog.Float64("priority", en.trade.Priority),
			slog.String("error", res.Err.Error()),
		)

	default:
		en.trade.State = domain.TradeFailed
		en.trade.CompletedAt = &now
		s.failed++
		terminal = true
	}

	s.dispatchLocked()
	onResult := s.onResult
	s.mu.Unlock()

	if terminal && onResult != nil {
		onResult(res)
	}
}

// EmergencyStop halts the scheduler: every queued trade is canceled, every
// in-flight execution has its context cancelled, and future Enqueue calls fail
// with ErrStopped. Returns the number of queued trades canceled and in-flight
// executions signalled. Idempotent.
func (s *Scheduler) EmergencyStop() (queuedCanceled, activeSignaled int) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, 0
	}
	s.stopped = true

	now := time.Now()
	dropped := s.queue
	s.queue = nil
	for _, en := range dropped {
		en.trade.State = domain.TradeCanceled
		en.trade.CompletedAt = &now
	}
	s.canceled += len(dropped)
	queuedCanceled = len(dropped)

	cancels := make([]context.CancelFunc, 0, len(s.inflight))
	for _, en := range s.inflight {
		if en.cancel != nil {
			cancels = append(cancels, en.cancel)
		}
	}
	activeSignaled = len(s.inflight)
	onCancel := s.onCancel
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if onCancel != nil {
		for _, en := range dropped {
			onCancel(en.trade.Proposal)
		}
	}
	s.logger.Error("emergency stop engaged",
		slog.Int("queued_canceled", queuedCanceled),
		slog.Int("active_signaled", activeSignaled),
	)
	return queuedCanceled, activeSignaled
}

// GetStatus returns a snapshot of queue depth, in-flight trades, and lifetime
// counters.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := make([]string, 0, len(s.inflight))
	for id := range s.inflight {
		active = append(active, id)
	}
	sort.Strings(active)
	return Status{
		QueueDepth:     len(s.queue),
		Active:         active,
		Completed:      s.completed,
		Failed:         s.failed,
		Canceled:       s.canceled,
		Retried:        s.retried,
		MaxObservedRun: s.maxRun,
		Stopped:        s.stopped,
	}
}
