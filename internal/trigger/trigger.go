// Package trigger fires named periodic hooks such as "trigger.hourly".
//
// Each trigger fires at most once per interval across every process sharing
// the state database: the last run time is advanced with a compare-and-swap
// and only the caller whose swap succeeds dispatches the hook.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/metrics"
)

// HookPrefix is prepended to a trigger name to form its hook name.
const HookPrefix = "trigger."

// Trigger is a named interval.
type Trigger struct {
	Name     string
	Interval time.Duration
}

// Hook returns the hook name dispatched when t fires.
func (t Trigger) Hook() string {
	return HookPrefix + t.Name
}

// FromConfig converts configured triggers.
func FromConfig(cfgs []config.TriggerConfig) ([]Trigger, error) {
	out := make([]Trigger, 0, len(cfgs))
	for _, c := range cfgs {
		d, err := config.ParseInterval(c.Every)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", c.Name, err)
		}
		out = append(out, Trigger{Name: c.Name, Interval: d})
	}
	return out, nil
}

// Runner checks triggers and dispatches the due ones.
type Runner struct {
	store      *Store
	dispatcher *hook.Dispatcher
	triggers   []Trigger

	metrics *metrics.Metrics
	hub     *events.Hub
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

func WithEvents(h *events.Hub) Option { return func(r *Runner) { r.hub = h } }

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func NewRunner(store *Store, d *hook.Dispatcher, triggers []Trigger, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		dispatcher: d,
		triggers:   triggers,
		logger:     log.WithComponent("trigger"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Triggers returns the configured triggers.
func (r *Runner) Triggers() []Trigger {
	return r.triggers
}

// FireDue fires every due trigger and returns how many fired. Errors from
// individual triggers are joined; one failing trigger does not stop the rest.
func (r *Runner) FireDue(ctx context.Context) (int, error) {
	fired := 0
	var errs []error
	for _, t := range r.triggers {
		ok, err := r.fire(ctx, t)
		if ok {
			fired++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return fired, errors.Join(errs...)
}

// fire reports whether t fired. A dispatch error is returned after the fire
// has been recorded; the trigger does not fire again before its next interval.
func (r *Runner) fire(ctx context.Context, t Trigger) (bool, error) {
	last, err := r.store.LastRun(ctx, t.Name)
	if err != nil {
		return false, err
	}
	now := r.now().UTC()
	if last != nil && now.Sub(*last) < t.Interval {
		return false, nil
	}

	won, err := r.store.CompareAndSwap(ctx, t.Name, last, now)
	if err != nil {
		return false, err
	}
	if !won {
		r.logger.Debug("trigger claimed by another caller", "trigger", t.Name)
		return false, nil
	}

	values := map[string]any{"name": t.Name, "fired_at": now}
	if last != nil {
		values["last_run"] = *last
	} else {
		values["last_run"] = nil
	}

	r.metrics.TriggerFired(t.Name)
	r.hub.Publish(events.TypeTriggerFired, map[string]any{"name": t.Name, "fired_at": now})
	r.logger.Info("trigger fired", "trigger", t.Name, "hook", t.Hook())

	if _, err := r.dispatcher.Dispatch(ctx, t.Hook(), hook.NewArgs(values)); err != nil {
		return true, fmt.Errorf("trigger %q: %w", t.Name, err)
	}
	return true, nil
}
