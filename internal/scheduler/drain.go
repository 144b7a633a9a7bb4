package scheduler

import (
	"context"
	"fmt"

	"github.com/mattjoyce/spool/internal/queue"
)

// DrainResult summarises a Drain call.
type DrainResult struct {
	Processed int
	ByStatus  map[queue.PollStatus]int
	// Remaining is true when Drain stopped with work left in the store.
	Remaining bool
}

// Drain polls until the store is empty. An item released twice in the same
// drain stops it with Remaining set, since another poll would only retry
// the same failure. maxItems > 0 caps the number of items processed.
func Drain(ctx context.Context, p Poller, maxItems int) (DrainResult, error) {
	out := DrainResult{ByStatus: map[queue.PollStatus]int{}}
	released := map[string]struct{}{}

	for {
		if err := ctx.Err(); err != nil {
			out.Remaining = true
			return out, err
		}
		if maxItems > 0 && out.Processed >= maxItems {
			out.Remaining = true
			return out, nil
		}

		res, err := p.Poll(ctx)
		if err != nil {
			out.Remaining = true
			return out, fmt.Errorf("drain: %w", err)
		}
		if res.Status == queue.PollEmpty {
			return out, nil
		}

		out.Processed++
		out.ByStatus[res.Status]++
		if res.Status == queue.PollReleased {
			if _, seen := released[res.ItemID]; seen {
				out.Remaining = true
				return out, nil
			}
			released[res.ItemID] = struct{}{}
		}
	}
}
