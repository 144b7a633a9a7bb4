package scheduler

import (
	"context"
	"time"

	"github.com/mattjoyce/spool/internal/queue"
)

// Background is a dedicated long-running poller.
type Background struct {
	poller   Poller
	interval time.Duration
	opts     options
}

// NewBackground returns a poller that waits interval after an empty poll.
func NewBackground(p Poller, interval time.Duration, opts ...Option) *Background {
	if interval <= 0 {
		interval = time.Second
	}
	return &Background{poller: p, interval: interval, opts: buildOptions("scheduler.background", opts)}
}

func (b *Background) Name() string { return "background" }

// Run polls until ctx is cancelled, then returns nil. After a processed item
// it polls again immediately. After an empty poll, a release, or a storage
// error it waits one interval, so a permanently failing item cannot spin
// the loop.
func (b *Background) Run(ctx context.Context) error {
	b.opts.logger.Info("background poller starting", "interval", b.interval)
	defer b.opts.logger.Info("background poller stopped")

	b.housekeeping(ctx)
	lastHousekeeping := b.opts.now()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			return nil
		}
		if b.opts.now().Sub(lastHousekeeping) >= b.interval {
			b.housekeeping(ctx)
			lastHousekeeping = b.opts.now()
		}

		res, err := b.poller.Poll(ctx)
		if err != nil {
			b.opts.logger.Error("poll failed", "error", err)
		}
		if err == nil && res.Processed() {
			b.opts.metrics.SchedulerPass(b.Name(), string(res.Status))
			if res.Status != queue.PollReleased {
				continue
			}
		}

		timer.Reset(b.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (b *Background) housekeeping(ctx context.Context) {
	if b.opts.recoverer != nil {
		if _, err := b.opts.recoverer.RecoverStale(ctx); err != nil {
			b.opts.logger.Error("stale claim recovery failed", "error", err)
		}
	}
	if b.opts.triggers != nil {
		if _, err := b.opts.triggers.FireDue(ctx); err != nil {
			b.opts.logger.Error("firing triggers failed", "error", err)
		}
	}
}
