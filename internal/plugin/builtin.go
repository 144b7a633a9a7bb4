package plugin

import (
	"context"
	"fmt"

	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/log"
)

// Builtins returns the modules compiled into spool.
func Builtins() []Module {
	return []Module{LogModule{}}
}

// LogModule writes every dispatch of its configured hooks to the log and
// lets the remaining handlers run.
//
//	plugins:
//	  - name: log
//	    config: {hooks: [mail, trigger.hourly], level: info}
type LogModule struct{}

func (LogModule) Name() string { return "log" }

func (LogModule) Hooks(config map[string]any) (map[string]hook.Handler, error) {
	events, err := stringList(config["hooks"])
	if err != nil {
		return nil, fmt.Errorf("config.hooks: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("config.hooks: at least one hook is required")
	}
	level, _ := config["level"].(string)
	lvl := log.ParseLevel(level)
	logger := log.WithPlugin("log")

	h := hook.HandlerFunc(func(ctx context.Context, args *hook.Args) (hook.Outcome, error) {
		logger.Log(ctx, lvl, "hook dispatched", "hook", args.Event, "args", args.Snapshot())
		return hook.Continue, nil
	})
	out := make(map[string]hook.Handler, len(events))
	for _, e := range events {
		out[e] = h
	}
	return out, nil
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("item %d must be a non-empty string", i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a list of strings, got %T", v)
	}
}
