package hook

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/spool/internal/log"
)

const tracerName = "github.com/mattjoyce/spool/internal/hook"

// Dispatcher runs handlers from a frozen Registry.
type Dispatcher struct {
	registry *Registry
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer overrides the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher freezes registry and returns a dispatcher over it.
func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	registry.Freeze()
	d := &Dispatcher{
		registry: registry,
		tracer:   otel.Tracer(tracerName),
		logger:   log.WithComponent("hook"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch invokes event's handlers in registration order. A Stop outcome ends
// the dispatch and is returned; otherwise Continue is returned, including when
// no handler is registered. The first handler error aborts the dispatch and is
// returned wrapped in a *HandlerError. Panics are not recovered.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, args *Args) (Outcome, error) {
	if args == nil {
		args = NewArgs(nil)
	}
	args.Event = event

	regs := d.registry.handlers(event)
	ctx, span := d.tracer.Start(ctx, "hook.dispatch", trace.WithAttributes(
		attribute.String("hook.event", event),
		attribute.Int("hook.handlers", len(regs)),
	))
	defer span.End()

	for i, reg := range regs {
		outcome, err := reg.Handler.Handle(ctx, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.logger.Debug("handler failed", "event", event, "owner", reg.Owner, "error", err)
			return Continue, &HandlerError{Event: event, Owner: reg.Owner, Err: err}
		}
		if outcome == Stop {
			span.SetAttributes(attribute.Int("hook.stopped_at", i), attribute.String("hook.stopped_by", reg.Owner))
			return Stop, nil
		}
	}
	return Continue, nil
}

// DispatchClaim dispatches event and returns the claimed result. It returns
// ErrUnclaimed when no handler called args.Claim.
func (d *Dispatcher) DispatchClaim(ctx context.Context, event string, args *Args) (any, error) {
	if args == nil {
		args = NewArgs(nil)
	}
	if _, err := d.Dispatch(ctx, event, args); err != nil {
		return nil, err
	}
	if !args.Claimed() {
		return nil, ErrUnclaimed
	}
	return args.Result(), nil
}
