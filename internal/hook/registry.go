package hook

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Registry maps event names to ordered handler registrations.
type Registry struct {
	mu     sync.RWMutex
	byName map[string][]Registration
	seq    int
	frozen bool
}

// NewRegistry creates an empty, writable registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string][]Registration)}
}

// Register appends handler to event's list. It is not idempotent: registering
// the same handler twice makes it run twice.
func (r *Registry) Register(event, owner string, h Handler) error {
	if event == "" {
		return fmt.Errorf("register: event name is empty")
	}
	if h == nil {
		return fmt.Errorf("register %q: handler is nil", event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register %q for %q: %w", event, owner, ErrFrozen)
	}
	r.byName[event] = append(r.byName[event], Registration{
		Event:   event,
		Owner:   owner,
		Handler: h,
		Order:   r.seq,
	})
	r.seq++
	return nil
}

// RegisterAll registers every entry of hooks under owner, sorted by event
// name so the result does not depend on map iteration order.
func (r *Registry) RegisterAll(owner string, hooks map[string]Handler) error {
	events := make([]string, 0, len(hooks))
	for event := range hooks {
		events = append(events, event)
	}
	sort.Strings(events)
	for _, event := range events {
		if err := r.Register(event, owner, hooks[event]); err != nil {
			return err
		}
	}
	return nil
}

// Freeze makes the registry read-only. It is safe to call more than once.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Handlers returns a copy of event's registrations in registration order.
func (r *Registry) Handlers(event string) []Registration {
	return slices.Clone(r.handlers(event))
}

// Has reports whether at least one handler is registered for event.
func (r *Registry) Has(event string) bool {
	return len(r.handlers(event)) > 0
}

// Events returns every event name with at least one handler, sorted.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for event := range r.byName {
		out = append(out, event)
	}
	sort.Strings(out)
	return out
}

// handlers returns the internal slice. Once frozen the slice never changes,
// so callers can range over it without holding the lock.
func (r *Registry) handlers(event string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[event]
}
