package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/spool/internal/queue"
)

// HealthState tracks the server from /healthz and /stats polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Connected     bool
	Stats         queue.Stats
}

func renderHeader(h HealthState, activity Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	status := theme.OK.Render("HEALTHY")
	switch {
	case !h.Connected:
		status = theme.Failed.Render("CONNECTING")
	case h.Status != "ok" && h.Status != "":
		status = theme.Failed.Render("DEGRADED")
	}

	title := " SPOOL WATCH"
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	oldest := "-"
	if h.Stats.Oldest != nil {
		oldest = formatDuration(now.Sub(*h.Stats.Oldest)) + " ago"
	}
	statsLine := fmt.Sprintf(" %s  up %s  queued %d  claimed %d  dead %d  oldest %s",
		status,
		formatDuration(time.Duration(h.UptimeSeconds)*time.Second),
		h.Stats.Total,
		h.Stats.Claimed,
		h.Stats.DeadLetters,
		oldest,
	)

	last := "never"
	if !activity.LastEvent().IsZero() {
		last = now.Sub(activity.LastEvent()).Round(time.Second).String() + " ago"
	}
	activityLine := fmt.Sprintf(" Last event: %s %s", last, activity.Render(theme))

	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine),
	)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
