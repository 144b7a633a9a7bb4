package hook

import (
	"context"
	"errors"
	"fmt"
)

// Outcome is what a handler tells the dispatcher to do next.
type Outcome int

const (
	// Continue runs the remaining handlers.
	Continue Outcome = iota
	// Stop skips the remaining handlers.
	Stop
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ParseOutcome maps a wire string to an Outcome. Empty means Continue.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "", "continue":
		return Continue, nil
	case "stop":
		return Stop, nil
	default:
		return Continue, fmt.Errorf("unknown outcome %q", s)
	}
}

// Handler is logic registered against an event name.
type Handler interface {
	Handle(ctx context.Context, args *Args) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args *Args) (Outcome, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, args *Args) (Outcome, error) {
	return f(ctx, args)
}

// Registration is one handler bound to one event.
type Registration struct {
	Event   string
	Owner   string
	Handler Handler
	// Order is the registry-wide sequence number assigned at registration.
	Order int
}

var (
	// ErrFrozen is returned by Register after Freeze.
	ErrFrozen = errors.New("hook registry is frozen")
	// ErrUnclaimed is returned by DispatchClaim when no handler claimed the event.
	ErrUnclaimed = errors.New("no handler claimed the event")
)

// HandlerError wraps an error returned by a handler with the event and owner
// it came from. errors.Is and errors.As see through it.
type HandlerError struct {
	Event string
	Owner string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("hook %q handler %q: %v", e.Event, e.Owner, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
