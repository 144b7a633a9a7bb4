// Package protocol defines the JSON envelopes exchanged with exec plugins
// over stdin and stdout.
package protocol

import "time"

// Version is the only protocol version spoken by this build.
const Version = 1

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is written to the plugin's stdin, one per invocation.
type Request struct {
	Protocol     int            `json:"protocol"`
	InvocationID string         `json:"invocation_id"`
	Plugin       string         `json:"plugin"`
	Hook         string         `json:"hook"`
	Args         map[string]any `json:"args"`
	Config       map[string]any `json:"config,omitempty"`
	DeadlineAt   time.Time      `json:"deadline_at"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Status  string `json:"status"` // ok | error
	Outcome string `json:"outcome,omitempty"`
	// Args are merged into the dispatch arguments key by key.
	Args  map[string]any `json:"args,omitempty"`
	Claim *Claim         `json:"claim,omitempty"`
	Error string         `json:"error,omitempty"`
	Logs  []LogEntry     `json:"logs,omitempty"`
}

// Claim carries a definitive result for claim-style hooks.
type Claim struct {
	Result any `json:"result"`
}

// LogEntry is a log line emitted by a plugin.
type LogEntry struct {
	Level   string `json:"level"` // debug | info | warn | error
	Message string `json:"message"`
}
