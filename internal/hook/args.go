package hook

import "maps"

// Args is the mutable context threaded through every handler of one
// dispatch. Handlers see each other's writes in registration order.
type Args struct {
	Event  string
	Values map[string]any

	claimed bool
	owner   string
	result  any
}

// NewArgs returns Args holding values. The map is used as-is, not copied.
func NewArgs(values map[string]any) *Args {
	if values == nil {
		values = map[string]any{}
	}
	return &Args{Values: values}
}

// Get returns the value stored under key.
func (a *Args) Get(key string) (any, bool) {
	v, ok := a.Values[key]
	return v, ok
}

// String returns the value under key when it is a string.
func (a *Args) String(key string) string {
	s, _ := a.Values[key].(string)
	return s
}

// Set stores v under key.
func (a *Args) Set(key string, v any) {
	if a.Values == nil {
		a.Values = map[string]any{}
	}
	a.Values[key] = v
}

// Claim records a definitive result. A later claim overwrites an earlier one;
// handlers that want first-responder-wins return Stop after claiming.
func (a *Args) Claim(owner string, result any) {
	a.claimed = true
	a.owner = owner
	a.result = result
}

// Claimed reports whether any handler called Claim.
func (a *Args) Claimed() bool { return a.claimed }

// ClaimedBy returns the owner passed to the last Claim.
func (a *Args) ClaimedBy() string { return a.owner }

// Result returns the value passed to the last Claim.
func (a *Args) Result() any { return a.result }

// Snapshot returns a shallow copy of Values.
func (a *Args) Snapshot() map[string]any {
	return maps.Clone(a.Values)
}
