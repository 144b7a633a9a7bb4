// Package doctor cross-checks a loaded configuration against the hooks that
// were actually registered. config.Load catches malformed files; doctor
// catches wiring that loads fine but cannot work.
package doctor

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/plugin"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against registered hooks.
type Doctor struct {
	cfg      *config.Config
	registry *hook.Registry
	catalog  *plugin.Catalog
}

// New creates a Doctor. catalog may be nil when no plugins dir exists.
func New(cfg *config.Config, registry *hook.Registry, catalog *plugin.Catalog) *Doctor {
	return &Doctor{cfg: cfg, registry: registry, catalog: catalog}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{}

	d.validateStrategy(r)
	d.validateWebhooks(r)
	d.warnIgnoredTransports(r)
	d.warnIdleTriggers(r)
	d.warnUnusedPlugins(r)
	d.warnStaleClaimWindow(r)
	d.warnSuspiciousSchedule(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateStrategy rejects an inline strategy nothing would ever drive.
func (d *Doctor) validateStrategy(r *Result) {
	if d.cfg.Scheduler.Strategy != "inline" {
		return
	}
	if !d.cfg.API.Enabled || !d.cfg.API.DrainOnRequest {
		d.addError(r, "scheduler", "scheduler.strategy",
			"inline strategy needs api.enabled and api.drain_on_request; only `spool queue drain` would process work")
	}
}

// validateWebhooks checks every webhook feeds a transport with a handler.
// Items for an unhandled transport are discarded on first poll.
func (d *Doctor) validateWebhooks(r *Result) {
	for i, wh := range d.cfg.API.Webhooks {
		if !d.registry.Has(wh.Transport) {
			d.addError(r, "webhooks", fmt.Sprintf("api.webhooks[%d].transport", i),
				fmt.Sprintf("no plugin handles %q; webhook items would be discarded", wh.Transport))
		}
	}
}

func (d *Doctor) warnIgnoredTransports(r *Result) {
	for i, t := range d.cfg.Queue.IgnoredTransports {
		if d.registry.Has(t) {
			d.addWarning(r, "queue", fmt.Sprintf("queue.ignored_transports[%d]", i),
				fmt.Sprintf("%q has handlers here but this instance will never poll it", t))
		}
	}
}

func (d *Doctor) warnIdleTriggers(r *Result) {
	for i, t := range d.cfg.Triggers {
		if !d.registry.Has(t.Name) {
			d.addWarning(r, "triggers", fmt.Sprintf("triggers[%d]", i),
				fmt.Sprintf("trigger %q fires but no plugin handles it", t.Name))
		}
	}
}

// warnUnusedPlugins warns about discovered plugins not referenced in config.
func (d *Doctor) warnUnusedPlugins(r *Result) {
	for _, p := range d.catalog.All() {
		used := slices.ContainsFunc(d.cfg.Plugins, func(pc config.PluginConf) bool { return pc.Name == p.Name })
		if !used {
			d.addWarning(r, "unused", "",
				fmt.Sprintf("plugin %q discovered but not referenced in config", p.Name))
		}
	}
}

// warnStaleClaimWindow flags a recovery window shorter than a handler may
// legitimately run, which would hand live claims to a second poller.
func (d *Doctor) warnStaleClaimWindow(r *Result) {
	stale := d.cfg.Queue.StaleClaimAfter
	if stale <= 0 {
		return
	}
	var longest time.Duration
	for _, p := range d.cfg.Plugins {
		if p.IsEnabled() && p.Timeout > longest {
			longest = p.Timeout
		}
	}
	if stale <= longest {
		d.addWarning(r, "queue", "queue.stale_claim_after",
			fmt.Sprintf("%s is not longer than the slowest plugin timeout (%s); running items may be released", stale, longest))
	}
}

func (d *Doctor) warnSuspiciousSchedule(r *Result) {
	for i, t := range d.cfg.Triggers {
		interval, err := config.ParseInterval(t.Every)
		if err != nil {
			continue
		}
		if interval < time.Minute {
			d.addWarning(r, "triggers", fmt.Sprintf("triggers[%d].every", i),
				fmt.Sprintf("interval %q is very short (< 1m)", t.Every))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		return "Wiring valid.\n"
	case r.Valid:
		fmt.Fprintf(&b, "Wiring valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Wiring invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	write := func(level string, issues []Issue) {
		for _, i := range issues {
			if i.Field != "" {
				fmt.Fprintf(&b, "  %-5s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
			} else {
				fmt.Fprintf(&b, "  %-5s [%s] %s\n", level, i.Category, i.Message)
			}
		}
	}
	write("ERROR", r.Errors)
	write("WARN", r.Warnings)
	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
