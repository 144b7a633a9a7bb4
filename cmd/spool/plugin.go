package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/plugin"
)

func runPluginNoun(args []string) int {
	return runNoun("plugin", args, map[string]func([]string) int{
		"list": runPluginList,
	})
}

func runPluginList(args []string) int {
	fs := flag.NewFlagSet("plugin list", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	log.Setup("ERROR")

	enabled := map[string]bool{}
	for _, p := range cfg.Plugins {
		enabled[p.Name] = p.IsEnabled()
	}
	state := func(name string) string {
		on, listed := enabled[name]
		switch {
		case !listed:
			return "available"
		case on:
			return "enabled"
		default:
			return "disabled"
		}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tVERSION\tSTATE\tHOOKS")
	for _, m := range plugin.Builtins() {
		fmt.Fprintf(tw, "%s\tbuilt-in\t%s\t%s\t(from config)\n", m.Name(), version, state(m.Name()))
	}

	catalog, err := discoverPlugins(cfg, nil)
	if err != nil {
		_ = tw.Flush()
		fmt.Fprintf(os.Stderr, "Plugin discovery failed: %v\n", err)
		return exitError
	}
	for _, p := range catalog.All() {
		fmt.Fprintf(tw, "%s\texec\t%s\t%s\t%s\n", p.Name, p.Version, state(p.Name), strings.Join(p.Hooks, ","))
	}
	_ = tw.Flush()
	return exitOK
}
