package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/queue"
)

type eventMsg events.Event

type statsMsg queue.Stats

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// Client talks to a spool API server.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	// lastID resumes the event stream after a reconnect.
	lastID int64
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stats fetches GET /stats.
func (c *Client) Stats(ctx context.Context) (queue.Stats, error) {
	var st queue.Stats
	err := c.get(ctx, "/stats", &st)
	return st, err
}

// Health fetches GET /healthz.
func (c *Client) Health(ctx context.Context) (healthMsg, error) {
	var h healthMsg
	err := c.get(ctx, "/healthz", &h)
	return h, err
}

// Stream reads GET /events until the connection drops, sending each event
// to ch.
func (c *Client) Stream(ctx context.Context, ch chan<- events.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(c.lastID, 10))
	}

	// No timeout: the stream is long-lived.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /events: %s", resp.Status)
	}
	return parseSSE(resp.Body, func(ev events.Event) {
		c.lastID = ev.ID
		ch <- ev
	})
}

func parseSSE(r io.Reader, emit func(events.Event)) error {
	sc := bufio.NewScanner(r)
	var cur events.Event
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(cur.Data) > 0 {
				cur.At = time.Now()
				emit(cur)
			}
			cur = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[len("id: "):], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[len("event: "):]
		case strings.HasPrefix(line, "data: "):
			cur.Data = []byte(line[len("data: "):])
		}
	}
	return sc.Err()
}

func subscribe(c *Client, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		_ = c.Stream(context.Background(), ch)
		return sseDisconnectedMsg{}
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg { return eventMsg(<-ch) }
}

func fetchStats(c *Client) tea.Cmd {
	return func() tea.Msg {
		st, err := c.Stats(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return statsMsg(st)
	}
}

func fetchHealth(c *Client) tea.Cmd {
	return func() tea.Msg {
		h, err := c.Health(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return h
	}
}
