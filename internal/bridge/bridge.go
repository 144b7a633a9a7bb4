// Package bridge routes queued work items into hook dispatch, so a module
// registers one handler per name and receives both synchronous hook calls
// and asynchronous queue deliveries through it.
package bridge

import (
	"context"
	"fmt"

	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/queue"
)

// Args keys set on every bridged dispatch in addition to the payload.
const (
	ArgItemID   = "_item_id"
	ArgAttempts = "_attempts"
)

// Bridge adapts a hook.Dispatcher to queue.Resolver.
type Bridge struct {
	dispatcher *hook.Dispatcher
}

func New(d *hook.Dispatcher) *Bridge {
	return &Bridge{dispatcher: d}
}

// Resolve succeeds iff at least one hook handler is registered under the
// transport name.
func (b *Bridge) Resolve(transport string) (queue.Handler, bool) {
	if !b.dispatcher.Registry().Has(transport) {
		return nil, false
	}
	return b, true
}

// HandleMessage dispatches msg.Transport with the decoded payload as args.
func (b *Bridge) HandleMessage(ctx context.Context, msg queue.Message) error {
	args := hook.NewArgs(msg.Payload)
	args.Set(ArgItemID, msg.ID)
	args.Set(ArgAttempts, msg.Attempts)

	if _, err := b.dispatcher.Dispatch(ctx, msg.Transport, args); err != nil {
		return fmt.Errorf("dispatch %q: %w", msg.Transport, err)
	}
	return nil
}
