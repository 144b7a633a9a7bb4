package scheduler

import (
	"log/slog"
	"time"

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/metrics"
)

type options struct {
	triggers  TriggerRunner
	recoverer StaleRecoverer
	metrics   *metrics.Metrics
	hub       *events.Hub
	logger    *slog.Logger
	now       func() time.Time
	// processStart is when the hosting process started, for ProcessCeiling.
	processStart time.Time
}

// Option configures a strategy.
type Option func(*options)

func WithTriggers(t TriggerRunner) Option { return func(o *options) { o.triggers = t } }

func WithStaleRecovery(r StaleRecoverer) Option { return func(o *options) { o.recoverer = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

func WithEvents(h *events.Hub) Option { return func(o *options) { o.hub = h } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithProcessStart sets the hosting process start time. Defaults to the
// time the strategy was constructed.
func WithProcessStart(t time.Time) Option { return func(o *options) { o.processStart = t } }

func buildOptions(component string, opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", component)
	if o.processStart.IsZero() {
		o.processStart = o.now()
	}
	return o
}
