package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
)

const version = "0.3.0"

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitWorkRemains = 2
)

// defaultConfigPath is used when neither --config nor SPOOL_CONFIG is set.
const defaultConfigPath = "config.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return exitError
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return runServe(rest)
	case "queue":
		return runQueueNoun(rest)
	case "config":
		return runConfigNoun(rest)
	case "plugin":
		return runPluginNoun(rest)
	case "watch":
		return runWatch(rest)
	case "version":
		fmt.Printf("spool version %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return exitError
	}
}

func printUsage(w *os.File) {
	fmt.Fprint(w, `spool - hook dispatch and persisted work queue

Usage:
  spool <command> [action] [flags]

Commands:
  serve                  Run the background worker and, if enabled, the API
  queue drain            Process queued work until empty (exit 2 if work remains)
  queue enqueue <t>      Enqueue a JSON payload (--payload) on transport t
  queue stats            Show queue depth per transport
  queue dead             List dead letters; --replay <id> requeues one
  config check           Validate configuration and checksums
  config lock            Write the .checksums manifest for the configuration
  plugin list            Show built-in modules and discovered exec plugins
  watch                  Live terminal monitor of a running API server
  version                Show version information

Every command accepts --config <file|dir> (default $SPOOL_CONFIG or ./config.yaml).
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

// configFlag registers --config on fs with the environment-aware default.
func configFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("SPOOL_CONFIG")
	if def == "" {
		def = defaultConfigPath
	}
	return fs.String("config", def, "Path to configuration file or directory")
}

// runNoun dispatches "<noun> <action> ..." to actions.
func runNoun(noun string, args []string, actions map[string]func([]string) int) int {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	slices.Sort(names)

	if len(args) < 1 || isHelpToken(args[0]) {
		w := os.Stdout
		code := exitOK
		if len(args) < 1 {
			w, code = os.Stderr, exitError
		}
		fmt.Fprintf(w, "Usage: spool %s <%s> [flags]\n", noun, strings.Join(names, "|"))
		return code
	}

	action, ok := actions[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, args[0])
		return exitError
	}
	return action(args[1:])
}
