package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/queue"
)

// pollInterval is how often /stats and /healthz are refreshed.
const pollInterval = 2 * time.Second

// Model is the bubbletea model behind `spool watch`.
type Model struct {
	client *Client

	width  int
	height int

	health     HealthState
	transports Transports
	eventLog   []events.Event
	activity   Activity
	table      table.Model
	theme      Theme

	hubEvents chan events.Event
	lastError string
	now       func() time.Time
}

// New creates a monitor for the API at baseURL.
func New(baseURL, apiKey string) *Model {
	return &Model{
		client:     &Client{BaseURL: baseURL, APIKey: apiKey},
		transports: Transports{},
		table:      newTransportTable(),
		theme:      NewDefaultTheme(),
		hubEvents:  make(chan events.Event, 100),
		now:        time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.client, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		fetchHealth(m.client),
		fetchStats(m.client),
		tick(),
		tea.EnterAltScreen,
	)
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))

	case tickMsg:
		m.activity.Decay(m.now())
		return m, tea.Batch(fetchStats(m.client), fetchHealth(m.client), tick())

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		m.activity.OnEvent(m.now())
		m.transports.ApplyEvent(e)
		m.table.SetRows(transportRows(m.transports))
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case statsMsg:
		m.health.Stats = queue.Stats(msg)
		m.transports.ApplyStats(m.health.Stats)
		m.table.SetRows(transportRows(m.transports))
		m.health.Connected = true
		m.lastError = ""
		return m, nil

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Connected = true
		return m, nil

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the shared channel.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribe(m.client, m.hubEvents)

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to spool..."
	}

	parts := []string{
		renderHeader(m.health, m.activity, m.theme, m.width, m.now()),
		m.theme.Border.Width(m.width - 4).Render(
			lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("TRANSPORTS"), m.table.View()),
		),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Failed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll transports"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
