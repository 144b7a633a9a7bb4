package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/queue"
)

// TransportState aggregates one transport's depth from /stats with the
// lifecycle counts seen on the event stream since the monitor started.
type TransportState struct {
	Name         string
	Depth        int
	Enqueued     int
	Succeeded    int
	Released     int
	Discarded    int
	DeadLettered int
	LastError    string
	LastSeen     time.Time
}

// Transports is keyed by transport name.
type Transports map[string]*TransportState

func (ts Transports) get(name string) *TransportState {
	t, ok := ts[name]
	if !ok {
		t = &TransportState{Name: name}
		ts[name] = t
	}
	return t
}

// ApplyStats replaces every depth with the counts in st.
func (ts Transports) ApplyStats(st queue.Stats) {
	for _, t := range ts {
		t.Depth = 0
	}
	for name, n := range st.ByTransport {
		ts.get(name).Depth = n
	}
}

// ApplyEvent counts an item.* event against its transport. Other events
// are ignored.
func (ts Transports) ApplyEvent(e events.Event) {
	var data struct {
		Transport string `json:"transport"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.Transport == "" {
		return
	}

	t := ts.get(data.Transport)
	switch e.Type {
	case events.TypeEnqueued:
		t.Enqueued++
	case events.TypeSucceeded:
		t.Succeeded++
	case events.TypeReleased:
		t.Released++
	case events.TypeDiscarded:
		t.Discarded++
	case events.TypeDeadLettered:
		t.DeadLettered++
	default:
		return
	}
	if data.Error != "" {
		t.LastError = data.Error
	}
	t.LastSeen = e.At
}

// Sorted returns the transports by name.
func (ts Transports) Sorted() []*TransportState {
	out := make([]*TransportState, 0, len(ts))
	for _, t := range ts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func newTransportTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Transport", Width: 24},
			{Title: "Depth", Width: 7},
			{Title: "In", Width: 6},
			{Title: "OK", Width: 6},
			{Title: "Retry", Width: 6},
			{Title: "Drop", Width: 6},
			{Title: "Dead", Width: 6},
			{Title: "Last error", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func transportRows(ts Transports) []table.Row {
	rows := make([]table.Row, 0, len(ts))
	for _, t := range ts.Sorted() {
		rows = append(rows, table.Row{
			t.Name,
			fmt.Sprint(t.Depth),
			fmt.Sprint(t.Enqueued),
			fmt.Sprint(t.Succeeded),
			fmt.Sprint(t.Released),
			fmt.Sprint(t.Discarded),
			fmt.Sprint(t.DeadLettered),
			truncate(t.LastError, 40),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
