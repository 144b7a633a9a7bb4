package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/doctor"
	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/plugin"
	"github.com/mattjoyce/spool/internal/webhook"
)

func runConfigNoun(args []string) int {
	return runNoun("config", args, map[string]func([]string) int{
		"check": runConfigCheck,
		"lock":  runConfigLock,
	})
}

// runConfigCheck loads the config (which verifies checksums when present),
// registers every enabled plugin against a scratch registry and runs the
// doctor's wiring checks, without opening the state database.
func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := configFlag(fs)
	asJSON := fs.Bool("json", false, "Print the wiring report as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return exitError
	}
	log.Setup("ERROR")

	catalog, err := discoverPlugins(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return exitError
	}
	registry := hook.NewRegistry()
	if err := plugin.Install(registry, cfg.Plugins, plugin.Builtins(), catalog, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Plugin setup failed: %v\n", err)
		return exitError
	}

	endpoints, err := webhook.FromConfig(cfg.API.Webhooks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return exitError
	}

	report := doctor.New(cfg, registry, catalog).Validate()
	if *asJSON {
		out, err := doctor.FormatJSON(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to format report: %v\n", err)
			return exitError
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(report))
	}
	if !report.Valid {
		return exitError
	}
	if !*asJSON {
		fmt.Printf("Configuration OK: %d source files, %d hooks, %d triggers, %d webhooks\n",
			len(cfg.SourceFiles), len(registry.Events()), len(cfg.Triggers), len(endpoints))
	}
	return exitOK
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	out, err := config.Lock(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock configuration: %v\n", err)
		return exitError
	}
	fmt.Printf("Wrote %s\n", out)
	return exitOK
}
