package scheduler

import (
	"context"

	"github.com/mattjoyce/spool/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/spool/internal/scheduler Poller,TriggerRunner

// Poller processes at most one work item per call. *queue.Manager satisfies it.
type Poller interface {
	Poll(ctx context.Context) (queue.PollResult, error)
}

// TriggerRunner fires every timed trigger that is due and reports how many
// fired. *trigger.Runner satisfies it.
type TriggerRunner interface {
	FireDue(ctx context.Context) (int, error)
}

// StaleRecoverer releases claims abandoned by crashed pollers.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context) (int, error)
}

// Strategy is one way of driving the queue. Deployments pick one.
type Strategy interface {
	Name() string
	Run(ctx context.Context) error
}
