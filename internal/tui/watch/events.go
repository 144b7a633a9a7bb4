package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/spool/internal/events"
)

const eventLogSize = 50

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	lines := []string{theme.Title.Render("EVENT STREAM")}
	if len(eventLog) == 0 {
		lines = append(lines, theme.Dim.Render("  Waiting for events..."))
	}
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, " "+formatEvent(e, theme))
	}
	return theme.Border.Width(width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func eventStyle(eventType string, theme Theme) lipgloss.Style {
	switch eventType {
	case events.TypeSucceeded:
		return theme.OK
	case events.TypeReleased:
		return theme.Warn
	case events.TypeDiscarded, events.TypeDeadLettered:
		return theme.Failed
	case events.TypePass, events.TypeTriggerFired:
		return theme.Highlight
	default:
		return theme.Neutral
	}
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))
	typeName := eventStyle(e.Type, theme).Render(fmt.Sprintf("%-20s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describe(e))
}

// describe pulls the interesting fields out of an event's data.
func describe(e events.Event) string {
	data := map[string]any{}
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if id, ok := data["id"].(string); ok {
		if len(id) > 10 {
			id = id[len(id)-10:]
		}
		parts = append(parts, "["+id+"]")
	}
	for _, key := range []string{"transport", "name", "strategy", "result"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if n, ok := data["handled"].(float64); ok {
		parts = append(parts, fmt.Sprintf("handled=%d", int(n)))
	}
	if errText, ok := data["error"].(string); ok {
		parts = append(parts, truncate(errText, 50))
	}

	if len(parts) == 0 {
		return truncate(string(e.Data), 60)
	}
	return strings.Join(parts, " ")
}
