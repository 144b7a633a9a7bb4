package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/queue"
)

// RunResult reports why a pass stopped.
type RunResult string

const (
	// Drained means a poll found no claimable work.
	Drained RunResult = "drained"
	// BudgetExceeded means the pass stopped with work possibly remaining.
	BudgetExceeded RunResult = "budget_exceeded"
)

// Budget bounds one inline pass. Zero fields are unlimited.
type Budget struct {
	MaxExecutionTime   time.Duration
	MaxExecutionMargin time.Duration
	MaxItemCount       int
	// ProcessCeiling is the hosting process's own execution limit, measured
	// from process start.
	ProcessCeiling time.Duration
}

// Inline drains a bounded amount of work inside a process that exists for
// some other reason, such as serving an HTTP request.
type Inline struct {
	poller Poller
	budget Budget
	opts   options

	running sync.Mutex

	mu      sync.Mutex
	start   time.Time
	handled int
}

func NewInline(p Poller, b Budget, opts ...Option) *Inline {
	return &Inline{poller: p, budget: b, opts: buildOptions("scheduler.inline", opts)}
}

func (s *Inline) Name() string { return "inline" }

// Run performs a single pass.
func (s *Inline) Run(ctx context.Context) error {
	_, err := s.RunQueue(ctx)
	return err
}

// Handled returns the number of items processed in the current or last pass.
func (s *Inline) Handled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled
}

// CanContinue reports whether the current pass may start another item.
func (s *Inline) CanContinue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canContinueLocked()
}

func (s *Inline) canContinueLocked() bool {
	now := s.opts.now()
	if s.budget.MaxExecutionTime > 0 && now.Sub(s.start) >= s.budget.MaxExecutionTime {
		return false
	}
	if s.budget.ProcessCeiling > 0 && now.Sub(s.opts.processStart) > s.budget.ProcessCeiling-s.budget.MaxExecutionMargin {
		return false
	}
	if s.budget.MaxItemCount > 0 && s.handled >= s.budget.MaxItemCount {
		return false
	}
	return true
}

// RunQueue polls until the store is empty or the budget is spent. Only one
// pass runs at a time per Inline; a call that finds a pass in progress
// returns BudgetExceeded immediately. A cancelled context stops the pass
// before the next item and is returned alongside BudgetExceeded.
func (s *Inline) RunQueue(ctx context.Context) (RunResult, error) {
	if !s.running.TryLock() {
		return BudgetExceeded, nil
	}
	defer s.running.Unlock()

	s.mu.Lock()
	s.start = s.opts.now()
	s.handled = 0
	s.mu.Unlock()

	if s.opts.triggers != nil {
		if _, err := s.opts.triggers.FireDue(ctx); err != nil {
			s.opts.logger.Error("firing triggers failed", "error", err)
		}
	}

	result, err := s.drain(ctx)
	s.opts.metrics.SchedulerPass(s.Name(), string(result))
	s.opts.hub.Publish(events.TypePass, map[string]any{
		"strategy": s.Name(),
		"result":   result,
		"handled":  s.Handled(),
	})
	return result, err
}

func (s *Inline) drain(ctx context.Context) (RunResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return BudgetExceeded, err
		}
		if !s.CanContinue() {
			s.opts.logger.Debug("inline budget exhausted", "handled", s.Handled())
			return BudgetExceeded, nil
		}

		res, err := s.poller.Poll(ctx)
		if err != nil {
			return BudgetExceeded, fmt.Errorf("inline poll: %w", err)
		}
		if res.Status == queue.PollEmpty {
			return Drained, nil
		}

		s.mu.Lock()
		s.handled++
		s.mu.Unlock()
	}
}
