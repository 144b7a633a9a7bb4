package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattjoyce/spool/internal/bridge"
	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/metrics"
	"github.com/mattjoyce/spool/internal/plugin"
	"github.com/mattjoyce/spool/internal/queue"
	"github.com/mattjoyce/spool/internal/scheduler"
	"github.com/mattjoyce/spool/internal/storage"
	"github.com/mattjoyce/spool/internal/tracing"
	"github.com/mattjoyce/spool/internal/trigger"
)

// runtime is the wired object graph shared by serve and the queue commands.
type runtime struct {
	cfg        *config.Config
	db         *sql.DB
	catalog    *plugin.Catalog
	dispatcher *hook.Dispatcher
	manager    *queue.Manager
	triggers   *trigger.Runner
	metrics    *metrics.Metrics
	hub        *events.Hub
	logger     *slog.Logger
	shutdown   tracing.ShutdownFunc
}

// loadConfig loads the config and installs the logger it names.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel)
	return cfg, nil
}

// discoverPlugins scans cfg.PluginsDir. A missing directory is only an error
// when an enabled plugin is not a built-in module.
func discoverPlugins(cfg *config.Config, logger *slog.Logger) (*plugin.Catalog, error) {
	if _, err := os.Stat(cfg.PluginsDir); os.IsNotExist(err) {
		builtins := map[string]bool{}
		for _, m := range plugin.Builtins() {
			builtins[m.Name()] = true
		}
		for _, p := range cfg.Plugins {
			if p.IsEnabled() && !builtins[p.Name] {
				return nil, fmt.Errorf("plugin %s: plugins dir %s does not exist", p.Name, cfg.PluginsDir)
			}
		}
		return nil, nil
	}
	return plugin.Discover(cfg.PluginsDir, logger)
}

func newRuntime(ctx context.Context, cfg *config.Config) (rt *runtime, err error) {
	logger := log.WithComponent("main")

	// Installed first: the dispatcher and the manager take their tracers
	// from the global provider.
	shutdown, err := tracing.Setup(cfg.Tracing, cfg.Service.Name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = shutdown(context.WithoutCancel(ctx))
		}
	}()

	catalog, err := discoverPlugins(cfg, log.WithComponent("plugin"))
	if err != nil {
		return nil, err
	}

	registry := hook.NewRegistry()
	if err := plugin.Install(registry, cfg.Plugins, plugin.Builtins(), catalog, log.WithComponent("plugin")); err != nil {
		return nil, fmt.Errorf("install plugins: %w", err)
	}
	// NewDispatcher freezes the registry.
	dispatcher := hook.NewDispatcher(registry)

	triggers, err := trigger.FromConfig(cfg.Triggers)
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state database %s: %w", cfg.State.Path, err)
	}

	m := metrics.New()
	hub := events.NewHub(256)
	manager := queue.NewManager(queue.NewSQLiteStore(db), bridge.New(dispatcher), queue.Config{
		IgnoredTransports: cfg.Queue.IgnoredTransports,
		DeadLetterAfter:   cfg.Queue.DeadLetterAfter,
		StaleClaimAfter:   cfg.Queue.StaleClaimAfter,
	}, queue.WithMetrics(m), queue.WithEvents(hub))

	runner := trigger.NewRunner(trigger.NewStore(db), dispatcher, triggers,
		trigger.WithMetrics(m), trigger.WithEvents(hub))

	logger.Debug("runtime ready",
		"state", cfg.State.Path,
		"hooks", registry.Events(),
		"triggers", len(triggers),
	)
	return &runtime{
		cfg:        cfg,
		db:         db,
		catalog:    catalog,
		dispatcher: dispatcher,
		manager:    manager,
		triggers:   runner,
		metrics:    m,
		hub:        hub,
		logger:     logger,
		shutdown:   shutdown,
	}, nil
}

// schedulerOptions wires the runtime's collaborators into a strategy.
func (r *runtime) schedulerOptions() []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithTriggers(r.triggers),
		scheduler.WithStaleRecovery(r.manager),
		scheduler.WithMetrics(r.metrics),
		scheduler.WithEvents(r.hub),
	}
}

func (r *runtime) budget() scheduler.Budget {
	s := r.cfg.Scheduler
	return scheduler.Budget{
		MaxExecutionTime:   s.MaxExecutionTime,
		MaxExecutionMargin: s.MaxExecutionMargin,
		MaxItemCount:       s.MaxItemCount,
		ProcessCeiling:     s.ProcessCeiling,
	}
}

// traceFlushTimeout bounds the final span export on Close.
const traceFlushTimeout = 5 * time.Second

func (r *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), traceFlushTimeout)
	defer cancel()
	if err := r.shutdown(ctx); err != nil {
		r.logger.Warn("flushing traces failed", "error", err)
	}
	return r.db.Close()
}
