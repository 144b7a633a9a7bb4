package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval converts a trigger interval to a duration. Accepted forms are
// "hourly", "daily", "weekly", Go durations ("15m", "2h"), and day or week
// counts ("3d", "2w").
func ParseInterval(interval string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(interval))
	switch s {
	case "hourly":
		return time.Hour, nil
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	case "":
		return 0, fmt.Errorf("interval is empty")
	}

	var d time.Duration
	switch {
	case strings.HasSuffix(s, "d") || strings.HasSuffix(s, "w"):
		unit := 24 * time.Hour
		if strings.HasSuffix(s, "w") {
			unit *= 7
		}
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", interval, err)
		}
		d = time.Duration(n) * unit
	default:
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", interval, err)
		}
	}

	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %q", interval)
	}
	return d, nil
}
