// Package tui renders a live dashboard of the mining session.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/shares"
)

// maxFeed is the number of recent events kept for display.
const maxFeed = 8

// Info is static run information shown in the header.
type Info struct {
	Endpoint   string
	Identity   string
	Evaluator  string
	Difficulty int
	SSID       string
	// Link and Address carry the outcome of link negotiation, which
	// completes before the dashboard starts.
	Link    string
	Address string
}

// Messages

type tickMsg time.Time

type eventMsg struct {
	e event.Event
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the dashboard state. It is updated only through Update.
type Model struct {
	info    Info
	acct    *shares.Accountant
	started time.Time
	now     time.Time
	width   int

	link      string
	address   string
	connected bool
	sessionID string
	banner    string
	drops     int
	lastDrop  string
	seed      string
	limit     uint64
	jobs      int
	lastShare *event.ShareSubmittedEvent
	snap      shares.Snapshot
	feed      []string
	quitting  bool
}

// NewModel creates a dashboard reading counters from acct.
func NewModel(info Info, acct *shares.Accountant) Model {
	now := time.Now()
	link := info.Link
	if link == "" {
		link = "pending"
	}
	return Model{
		info:    info,
		acct:    acct,
		started: now,
		now:     now,
		width:   80,
		link:    link,
		address: info.Address,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		m.snap = m.acct.Snapshot()
		return m, tick()

	case eventMsg:
		return m.applyEvent(msg.e), nil
	}
	return m, nil
}

func (m Model) applyEvent(e event.Event) Model {
	switch ev := e.(type) {
	case event.LinkOutcomeEvent:
		m.link = ev.Outcome
		m.address = ev.Address
		m = m.log(e, fmt.Sprintf("link %s after %d attempt(s)", ev.Outcome, ev.Attempts))
	case event.SessionConnectedEvent:
		m.connected = true
		m.sessionID = ev.SessionID
		m.banner = ev.Banner
		m = m.log(e, "connected to pool, banner "+ev.Banner)
	case event.SessionDroppedEvent:
		m.connected = false
		m.drops++
		m.lastDrop = ev.Err
		m = m.log(e, fmt.Sprintf("dropped in %s, retry in %s", ev.Phase, ev.Backoff.Round(time.Millisecond)))
	case event.JobReceivedEvent:
		m.jobs++
		m.seed = ev.Seed
		m.limit = ev.Limit
	case event.JobExhaustedEvent:
		m = m.log(e, fmt.Sprintf("no match for %s in %d nonces", ev.Seed, ev.Evaluated))
	case event.ShareSubmittedEvent:
		m.lastShare = &ev
		m.snap = m.acct.Snapshot()
		verdict := "accepted"
		if !ev.Accepted {
			verdict = "rejected"
			if ev.Reason != "" {
				verdict += " (" + ev.Reason + ")"
			}
		}
		m = m.log(e, fmt.Sprintf("share %s: %s nonce %d", verdict, ev.Seed, ev.Nonce))
	}
	return m
}

func (m Model) log(e event.Event, line string) Model {
	entry := e.Timestamp().Format("15:04:05") + "  " + line
	feed := append([]string(nil), m.feed...)
	feed = append(feed, entry)
	if len(feed) > maxFeed {
		feed = feed[len(feed)-maxFeed:]
	}
	m.feed = feed
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("poolminer"))
	b.WriteString(mutedText.Render(fmt.Sprintf("  %s  uptime %s", m.info.Endpoint, m.now.Sub(m.started).Round(time.Second))))
	b.WriteString("\n\n")

	rows := []string{
		row("network", m.info.SSID),
		row("link", m.linkStatus()),
		row("pool", m.poolStatus()),
		row("identity", m.info.Identity),
		row("proof", fmt.Sprintf("%s, difficulty %d", m.info.Evaluator, m.info.Difficulty)),
		row("job", m.jobStatus()),
		row("accepted", okStyle.Render(fmt.Sprint(m.snap.Accepted))),
		row("rejected", m.rejectedStatus()),
		row("last share", m.lastShareStatus()),
	}

	width := m.width - 4
	if width < 40 {
		width = 40
	}
	b.WriteString(panelStyle.Width(width).Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	if len(m.feed) > 0 {
		b.WriteString(panelStyle.Width(width).Render(strings.Join(m.feed, "\n")))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func (m Model) linkStatus() string {
	switch m.link {
	case "connected":
		s := okStyle.Render("connected")
		if m.address != "" {
			s += mutedText.Render(" " + m.address)
		}
		return s
	case "failed", "unknown":
		return errStyle.Render(m.link)
	default:
		return warnStyle.Render(m.link)
	}
}

func (m Model) poolStatus() string {
	if m.connected {
		return okStyle.Render("connected") + mutedText.Render(fmt.Sprintf(" session %s, banner %q", shortID(m.sessionID), m.banner))
	}
	if m.drops > 0 {
		return warnStyle.Render("reconnecting") + mutedText.Render(fmt.Sprintf(" %d drop(s), last: %s", m.drops, m.lastDrop))
	}
	return warnStyle.Render("connecting")
}

func (m Model) jobStatus() string {
	if m.seed == "" {
		return mutedText.Render("waiting")
	}
	return fmt.Sprintf("%s (%d nonces, %d job(s))", m.seed, m.limit, m.jobs)
}

func (m Model) rejectedStatus() string {
	if m.snap.Rejected == 0 {
		return "0"
	}
	return errStyle.Render(fmt.Sprint(m.snap.Rejected))
}

func (m Model) lastShareStatus() string {
	if m.lastShare == nil {
		return mutedText.Render("none yet")
	}
	return fmt.Sprintf("nonce %d in %s, %s ago",
		m.lastShare.Nonce,
		m.lastShare.Elapsed.Round(time.Millisecond),
		m.now.Sub(m.lastShare.Timestamp()).Round(time.Second),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
