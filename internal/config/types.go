package config

import "time"

// Config represents the complete spool configuration.
type Config struct {
	Service    ServiceConfig   `yaml:"service"`
	State      StateConfig     `yaml:"state"`
	Queue      QueueConfig     `yaml:"queue"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Triggers   []TriggerConfig `yaml:"triggers,omitempty"`
	PluginsDir string          `yaml:"plugins_dir"`
	// Plugins is ordered; list order is hook registration order.
	Plugins []PluginConf  `yaml:"plugins,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Include []string      `yaml:"include,omitempty"`

	// SourceFiles lists the absolute paths that were read, root first.
	SourceFiles []string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// QueueConfig is consumed by queue.Manager.
type QueueConfig struct {
	IgnoredTransports []string      `yaml:"ignored_transports,omitempty"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	// DeadLetterAfter is the attempt count after which a failing item is
	// moved to the dead letter table. Zero keeps retrying forever.
	DeadLetterAfter int           `yaml:"dead_letter_after"`
	StaleClaimAfter time.Duration `yaml:"stale_claim_after"`
}

// SchedulerConfig selects the scheduling strategy and its budget.
type SchedulerConfig struct {
	Strategy           string        `yaml:"strategy"` // background | inline
	MaxExecutionTime   time.Duration `yaml:"max_execution_time"`
	MaxExecutionMargin time.Duration `yaml:"max_execution_margin"`
	MaxItemCount       int           `yaml:"max_item_count"`
	ProcessCeiling     time.Duration `yaml:"process_ceiling"`
}

// TriggerConfig names a periodic hook.
type TriggerConfig struct {
	Name  string `yaml:"name"`
	Every string `yaml:"every"` // e.g. "hourly", "daily", "weekly", "15m", "2d"
}

// PluginConf enables and configures one plugin.
type PluginConf struct {
	Name    string         `yaml:"name"`
	Enabled *bool          `yaml:"enabled,omitempty"`
	Timeout time.Duration  `yaml:"timeout,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// IsEnabled defaults to true when enabled is omitted.
func (p PluginConf) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// DrainOnRequest runs an inline queue pass after each API request.
	DrainOnRequest bool            `yaml:"drain_on_request"`
	Auth           APIAuthConfig   `yaml:"auth"`
	Webhooks       []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig maps a signed inbound POST to a transport. Webhook routes
// are authenticated by HMAC signature instead of the API key.
type WebhookConfig struct {
	Path      string `yaml:"path"`
	Transport string `yaml:"transport"`
	Secret    string `yaml:"secret"`
	// SignatureHeader defaults to X-Spool-Signature-256.
	SignatureHeader string `yaml:"signature_header,omitempty"`
	// MaxBodySize accepts plain bytes or a KB/MB/GB suffix. Default 1MB.
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// TracingConfig selects where OpenTelemetry spans go.
type TracingConfig struct {
	Exporter string `yaml:"exporter"` // none | stdout
	// Output is a file that spans are appended to. Empty means stderr.
	Output string `yaml:"output,omitempty"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with the default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "spool",
			LogLevel: "info",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		Queue: QueueConfig{
			PollInterval: time.Second,
		},
		Scheduler: SchedulerConfig{
			Strategy:           "background",
			MaxExecutionTime:   10 * time.Second,
			MaxExecutionMargin: 2 * time.Second,
			MaxItemCount:       50,
		},
		PluginsDir: "./plugins",
		API: APIConfig{
			Listen: "127.0.0.1:8484",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}

// DefaultPluginTimeout bounds a single exec plugin invocation.
const DefaultPluginTimeout = 60 * time.Second
