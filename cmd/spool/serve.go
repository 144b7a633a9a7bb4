package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/spool/internal/api"
	"github.com/mattjoyce/spool/internal/lock"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/scheduler"
	"github.com/mattjoyce/spool/internal/webhook"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := configFlag(fs)
	strategy := fs.String("strategy", "", "Override scheduler.strategy (background|inline)")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if *strategy != "" {
		cfg.Scheduler.Strategy = *strategy
	}
	logger := log.WithComponent("main")
	logger.Info("spool starting", "version", version, "config", *configPath, "strategy", cfg.Scheduler.Strategy)

	if cfg.Scheduler.Strategy == "inline" && !(cfg.API.Enabled && cfg.API.DrainOnRequest) {
		logger.Error("inline strategy needs api.enabled and api.drain_on_request; nothing else would drive the queue")
		return exitError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitError
	}
	defer rt.Close()

	inline := scheduler.NewInline(rt.manager, rt.budget(), rt.schedulerOptions()...)

	errCh := make(chan error, 2)
	if cfg.Scheduler.Strategy == "background" {
		lockPath := lock.PathFor(cfg.State.Path)
		workerLock, err := lock.Acquire(lockPath)
		if err != nil {
			logger.Error("failed to acquire worker lock (another worker may be running)", "path", lockPath, "error", err)
			return exitError
		}
		defer workerLock.Release()
		logger.Info("acquired worker lock", "path", lockPath)

		strat, err := scheduler.New(scheduler.Settings{
			Strategy:     cfg.Scheduler.Strategy,
			PollInterval: cfg.Queue.PollInterval,
			Budget:       rt.budget(),
		}, rt.manager, rt.schedulerOptions()...)
		if err != nil {
			logger.Error("failed to build scheduler", "error", err)
			return exitError
		}
		go func() {
			if err := strat.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("scheduler: %w", err)
			}
		}()
	}

	if cfg.API.Enabled {
		endpoints, err := webhook.FromConfig(cfg.API.Webhooks)
		if err != nil {
			logger.Error("invalid webhook config", "error", err)
			return exitError
		}
		server := api.New(api.Config{
			Listen:         cfg.API.Listen,
			APIKey:         cfg.API.Auth.APIKey,
			DrainOnRequest: cfg.API.DrainOnRequest,
			Webhooks:       webhook.NewHandler(endpoints, rt.manager, log.WithComponent("webhook")),
		}, rt.manager, inline, rt.hub, rt.metrics, log.WithComponent("api"))
		go func() {
			if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
	}

	logger.Info("spool running (press Ctrl+C to stop)")
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return exitError
	}
	logger.Info("spool stopped")
	return exitOK
}
