package queue

import (
	"context"
	"time"
)

// WorkItem is one persisted unit of deferred work. Payload is the encoded
// form produced by Encode and is never rewritten after insert.
type WorkItem struct {
	ID        string
	Transport string
	Payload   []byte
	CreatedAt time.Time
	ClaimedAt *time.Time
	Attempts  int
}

// Claimed reports whether a poller currently holds the item.
func (w WorkItem) Claimed() bool {
	return w.ClaimedAt != nil
}

// Message is a decoded WorkItem handed to a Handler.
type Message struct {
	ID        string
	Transport string
	Payload   map[string]any
	CreatedAt time.Time
	Attempts  int
}

// Handler consumes messages for one transport. A returned error releases the
// item for retry.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Resolver finds the Handler for a transport.
type Resolver interface {
	Resolve(transport string) (Handler, bool)
}

// Handlers is a static Resolver keyed by transport.
type Handlers map[string]Handler

func (h Handlers) Resolve(transport string) (Handler, bool) {
	handler, ok := h[transport]
	return handler, ok
}

// DeadLetter is a work item that exhausted its attempt budget.
type DeadLetter struct {
	ID        string
	ItemID    string
	Transport string
	Payload   []byte
	Attempts  int
	LastError string
	CreatedAt time.Time
	FailedAt  time.Time
}

// Stats summarises the store.
type Stats struct {
	Total       int            `json:"total"`
	Claimed     int            `json:"claimed"`
	DeadLetters int            `json:"dead_letters"`
	ByTransport map[string]int `json:"by_transport"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
}

// PollStatus is the outcome of one Poll.
type PollStatus string

const (
	PollEmpty        PollStatus = "empty"
	PollSucceeded    PollStatus = "succeeded"
	PollReleased     PollStatus = "released"
	PollDiscarded    PollStatus = "discarded"
	PollDeadLettered PollStatus = "dead_lettered"
)

// PollResult describes what Poll did. Err carries the reason for a discard,
// release or dead-letter; it is informational, not a failure of Poll.
type PollResult struct {
	Status    PollStatus
	ItemID    string
	Transport string
	Attempts  int
	Err       error
}

// Processed reports whether the poll consumed an item, whatever the outcome.
func (r PollResult) Processed() bool {
	return r.Status != PollEmpty
}
