package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a file, or from config.yaml inside a
// directory. Files named in include are merged in order: their triggers and
// plugins are appended to the root's. When a .checksums manifest sits next
// to the root file, every source file is verified against it.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourceFiles = []string{absPath}

	visited := map[string]bool{absPath: true}
	if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
		return nil, err
	}

	if err := VerifyChecksums(filepath.Dir(absPath), cfg.SourceFiles); err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// SourceFiles returns the root config and its includes without validating.
func SourceFiles(configPath string) ([]string, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourceFiles = []string{absPath}
	if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), map[string]bool{absPath: true}); err != nil {
		return nil, err
	}
	return cfg.SourceFiles, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(baseDir, includePath)
		}
		absPath, err := filepath.Abs(includePath)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}
		if visited[absPath] {
			return fmt.Errorf("include[%d]: %s is included more than once", i, absPath)
		}
		visited[absPath] = true

		part, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d]: %w", i, err)
		}
		cfg.SourceFiles = append(cfg.SourceFiles, absPath)
		cfg.Triggers = append(cfg.Triggers, part.Triggers...)
		cfg.Plugins = append(cfg.Plugins, part.Plugins...)

		if err := loadIncludes(cfg, part.Include, filepath.Dir(absPath), visited); err != nil {
			return err
		}
	}
	return nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = defaults.Queue.PollInterval
	}

	if cfg.Scheduler.Strategy == "" {
		cfg.Scheduler.Strategy = defaults.Scheduler.Strategy
	}
	if cfg.Scheduler.MaxExecutionTime == 0 {
		cfg.Scheduler.MaxExecutionTime = defaults.Scheduler.MaxExecutionTime
	}
	if cfg.Scheduler.MaxExecutionMargin == 0 {
		cfg.Scheduler.MaxExecutionMargin = defaults.Scheduler.MaxExecutionMargin
	}
	if cfg.Scheduler.MaxItemCount == 0 {
		cfg.Scheduler.MaxItemCount = defaults.Scheduler.MaxItemCount
	}

	if cfg.PluginsDir == "" {
		cfg.PluginsDir = defaults.PluginsDir
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = defaults.Tracing.Exporter
	}
	cfg.Tracing.Exporter = strings.ToLower(cfg.Tracing.Exporter)
	for i := range cfg.Plugins {
		if cfg.Plugins[i].Timeout == 0 {
			cfg.Plugins[i].Timeout = DefaultPluginTimeout
		}
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and rejected by validate where they matter.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if err := unresolved("state.path", cfg.State.Path); err != nil {
		return err
	}

	if cfg.Queue.PollInterval < 0 {
		return fmt.Errorf("queue.poll_interval must be positive")
	}
	if cfg.Queue.DeadLetterAfter < 0 {
		return fmt.Errorf("queue.dead_letter_after must be zero (disabled) or positive")
	}
	if cfg.Queue.StaleClaimAfter < 0 {
		return fmt.Errorf("queue.stale_claim_after must not be negative")
	}
	for i, t := range cfg.Queue.IgnoredTransports {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("queue.ignored_transports[%d] is empty", i)
		}
	}

	switch cfg.Scheduler.Strategy {
	case "background", "inline":
	default:
		return fmt.Errorf("scheduler.strategy must be one of: background, inline (got %q)", cfg.Scheduler.Strategy)
	}
	if cfg.Scheduler.MaxExecutionTime < 0 || cfg.Scheduler.MaxExecutionMargin < 0 || cfg.Scheduler.ProcessCeiling < 0 {
		return fmt.Errorf("scheduler durations must not be negative")
	}
	if cfg.Scheduler.MaxItemCount < 0 {
		return fmt.Errorf("scheduler.max_item_count must not be negative")
	}
	if cfg.Scheduler.ProcessCeiling > 0 && cfg.Scheduler.MaxExecutionMargin >= cfg.Scheduler.ProcessCeiling {
		return fmt.Errorf("scheduler.max_execution_margin must be less than scheduler.process_ceiling")
	}

	switch cfg.Tracing.Exporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("tracing.exporter must be one of: none, stdout (got %q)", cfg.Tracing.Exporter)
	}
	if err := unresolved("tracing.output", cfg.Tracing.Output); err != nil {
		return err
	}

	seenTriggers := map[string]bool{}
	for i, t := range cfg.Triggers {
		if t.Name == "" {
			return fmt.Errorf("triggers[%d].name is required", i)
		}
		if seenTriggers[t.Name] {
			return fmt.Errorf("trigger %q is defined more than once", t.Name)
		}
		seenTriggers[t.Name] = true
		if _, err := ParseInterval(t.Every); err != nil {
			return fmt.Errorf("trigger %q: %w", t.Name, err)
		}
	}

	seenPlugins := map[string]bool{}
	for i, p := range cfg.Plugins {
		if p.Name == "" {
			return fmt.Errorf("plugins[%d].name is required", i)
		}
		if seenPlugins[p.Name] {
			return fmt.Errorf("plugin %q is listed more than once", p.Name)
		}
		seenPlugins[p.Name] = true
		if !p.IsEnabled() {
			continue
		}
		if p.Timeout < 0 {
			return fmt.Errorf("plugin %q: timeout must be positive", p.Name)
		}
		if err := checkUnresolvedEnvVars(p.Config, p.Name); err != nil {
			return err
		}
	}

	if cfg.API.Enabled {
		if cfg.API.Auth.APIKey == "" {
			return fmt.Errorf("api.auth.api_key is required when the API is enabled")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
	}

	seenPaths := map[string]bool{}
	for i, wh := range cfg.API.Webhooks {
		field := fmt.Sprintf("api.webhooks[%d]", i)
		if !strings.HasPrefix(wh.Path, "/webhook/") || len(wh.Path) == len("/webhook/") {
			return fmt.Errorf("%s.path must start with /webhook/ (got %q)", field, wh.Path)
		}
		if seenPaths[wh.Path] {
			return fmt.Errorf("%s.path %q is defined more than once", field, wh.Path)
		}
		seenPaths[wh.Path] = true
		if wh.Transport == "" {
			return fmt.Errorf("%s.transport is required", field)
		}
		if wh.Secret == "" {
			return fmt.Errorf("%s.secret is required", field)
		}
		if err := unresolved(field+".secret", wh.Secret); err != nil {
			return err
		}
	}
	if len(cfg.API.Webhooks) > 0 && !cfg.API.Enabled {
		return fmt.Errorf("api.webhooks needs api.enabled")
	}
	return nil
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// checkUnresolvedEnvVars recursively checks for ${VAR} placeholders in config values.
func checkUnresolvedEnvVars(data map[string]any, pluginName string) error {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if err := unresolved(fmt.Sprintf("plugin %q: config.%s", pluginName, key), v); err != nil {
				return err
			}
		case map[string]any:
			if err := checkUnresolvedEnvVars(v, pluginName); err != nil {
				return err
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if err := unresolved(fmt.Sprintf("plugin %q: config.%s", pluginName, key), s); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
