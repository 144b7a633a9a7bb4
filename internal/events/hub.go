// Package events is an in-memory fan-out of queue lifecycle events with a
// ring buffer so late subscribers can catch up.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the queue, scheduler and trigger packages.
const (
	TypeEnqueued     = "item.enqueued"
	TypeSucceeded    = "item.succeeded"
	TypeReleased     = "item.released"
	TypeDiscarded    = "item.discarded"
	TypeDeadLettered = "item.dead_lettered"
	TypePass         = "scheduler.pass"
	TypeTriggerFired = "trigger.fired"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub fans events out to subscribers. A nil *Hub drops everything.
type Hub struct {
	nextID atomic.Int64

	mu   sync.Mutex
	ring []Event
	head int
	n    int

	subs    map[int]chan Event
	nextSub int
}

// NewHub returns a hub retaining the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish records an event. data is marshalled to JSON; unmarshalable data
// is replaced with an empty object.
func (h *Hub) Publish(eventType string, data any) {
	if h == nil {
		return
	}

	raw := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	// IDs are assigned under the lock so the ring and every subscriber see
	// them in increasing order.
	ev := Event{ID: h.nextID.Add(1), Type: eventType, At: time.Now().UTC(), Data: raw}
	h.push(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; it can resync via SnapshotSince
		}
	}
}

// Subscribe returns a channel of new events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 64)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// SnapshotSince returns retained events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.n)
	for i := range h.n {
		ev := h.ring[(h.head+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) push(ev Event) {
	if h.n < len(h.ring) {
		h.ring[(h.head+h.n)%len(h.ring)] = ev
		h.n++
		return
	}
	h.ring[h.head] = ev
	h.head = (h.head + 1) % len(h.ring)
}
