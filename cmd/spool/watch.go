package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/tui/watch"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := configFlag(fs)
	url := fs.String("url", "", "API base URL (default from api.listen)")
	apiKey := fs.String("api-key", os.Getenv("SPOOL_API_KEY"), "Bearer token (default from api.auth.api_key)")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	if *url == "" || *apiKey == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return exitError
		}
		if *url == "" {
			*url = "http://" + cfg.API.Listen
		}
		if *apiKey == "" {
			*apiKey = cfg.API.Auth.APIKey
		}
	}

	p := tea.NewProgram(watch.New(strings.TrimRight(*url, "/"), *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		return exitError
	}
	return exitOK
}
