package api

import "time"

// EnqueueResponse is returned by POST /enqueue/{transport}.
type EnqueueResponse struct {
	ItemID    string `json:"item_id"`
	Transport string `json:"transport"`
}

// DrainResponse is returned by POST /drain.
type DrainResponse struct {
	Result  string `json:"result"`
	Handled int    `json:"handled"`
}

// DeadLetterView is one dead letter as returned by GET /dead. Payload is
// nil when the stored bytes no longer decode.
type DeadLetterView struct {
	ID        string         `json:"id"`
	ItemID    string         `json:"item_id"`
	Transport string         `json:"transport"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	FailedAt  time.Time      `json:"failed_at"`
}

// DeadLettersResponse is returned by GET /dead.
type DeadLettersResponse struct {
	Items []DeadLetterView `json:"items"`
}

// ReplayResponse is returned by POST /dead/{id}/replay.
type ReplayResponse struct {
	ItemID string `json:"item_id"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	DeadLetters   int    `json:"dead_letters"`
}
