package plugin

import (
	"fmt"
	"log/slog"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/hook"
)

// Module is a plugin compiled into the binary.
type Module interface {
	Name() string
	// Hooks returns the handlers to register, keyed by event name.
	Hooks(config map[string]any) (map[string]hook.Handler, error)
}

// Install registers the hooks of every enabled plugin in confs, in list
// order, so earlier plugins run first for a shared event. A name found in
// builtins wins over an exec plugin of the same name.
func Install(reg *hook.Registry, confs []config.PluginConf, builtins []Module, catalog *Catalog, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	modules := make(map[string]Module, len(builtins))
	for _, m := range builtins {
		modules[m.Name()] = m
	}

	for _, conf := range confs {
		if !conf.IsEnabled() {
			logger.Debug("plugin disabled", "plugin", conf.Name)
			continue
		}

		if m, ok := modules[conf.Name]; ok {
			hooks, err := m.Hooks(conf.Config)
			if err != nil {
				return fmt.Errorf("plugin %s: %w", conf.Name, err)
			}
			if err := reg.RegisterAll(conf.Name, hooks); err != nil {
				return fmt.Errorf("plugin %s: %w", conf.Name, err)
			}
			logger.Info("registered built-in plugin", "plugin", conf.Name, "hooks", len(hooks))
			continue
		}

		p, ok := catalog.Get(conf.Name)
		if !ok {
			return fmt.Errorf("plugin %s: not found in %d built-in modules or plugins dir", conf.Name, len(modules))
		}
		handler := NewExecHandler(p, conf.Config, conf.Timeout)
		for _, event := range p.Hooks {
			if err := reg.Register(event, p.Name, handler); err != nil {
				return fmt.Errorf("plugin %s: %w", conf.Name, err)
			}
		}
		logger.Info("registered exec plugin", "plugin", p.Name, "hooks", p.Hooks)
	}
	return nil
}
