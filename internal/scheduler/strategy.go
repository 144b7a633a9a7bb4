package scheduler

import (
	"fmt"
	"time"
)

// Settings selects and tunes a strategy.
type Settings struct {
	Strategy     string
	PollInterval time.Duration
	Budget       Budget
}

// New builds the strategy named by s.Strategy ("background" or "inline").
func New(s Settings, p Poller, opts ...Option) (Strategy, error) {
	switch s.Strategy {
	case "", "background":
		return NewBackground(p, s.PollInterval, opts...), nil
	case "inline":
		return NewInline(p, s.Budget, opts...), nil
	default:
		return nil, fmt.Errorf("unknown scheduler strategy %q", s.Strategy)
	}
}
