// Package tui is the parent-facing terminal dashboard client.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yahdeeez/teenguard/internal/api"
	"github.com/yahdeeez/teenguard/internal/dashboard"
	"github.com/yahdeeez/teenguard/internal/domain"
)

// view identifies which screen is shown.
type view int

const (
	viewLogin view = iota
	viewTeens
	viewDashboard
)

// loginField tracks which login input has focus.
type loginField int

const (
	fieldEmail loginField = iota
	fieldPassword
)

// Model is the root bubbletea model for the dashboard client.
type Model struct {
	ctx    context.Context
	client *api.Client
	poller *dashboard.Poller
	events chan SnapshotEvent

	view view

	// Login form
	email      string
	password   string
	focus      loginField
	loggingIn  bool
	loginError string

	// Teen list
	teens        []domain.Teen
	teenIndex    int
	loadingTeens bool
	listError    string

	// Dashboard
	selected   *domain.Teen
	snapshot   *domain.DashboardSnapshot
	fetchError string

	width  int
	height int
}

// New creates the dashboard model. The poller's callbacks must be wired to
// push into events (see Wire).
func New(ctx context.Context, client *api.Client, poller *dashboard.Poller, events chan SnapshotEvent) Model {
	return Model{
		ctx:    ctx,
		client: client,
		poller: poller,
		events: events,
		view:   viewLogin,
	}
}

// Wire connects a poller's callbacks to an event channel for the TUI.
func Wire(poller *dashboard.Poller, events chan SnapshotEvent) {
	poller.OnSnapshot = func(teenID string, snap *domain.DashboardSnapshot) {
		events <- SnapshotEvent{TeenID: teenID, Snapshot: snap}
	}
	poller.OnError = func(teenID string, err error) {
		events <- SnapshotEvent{TeenID: teenID, Err: err}
	}
}

// Init starts listening for poller events.
func (m Model) Init() tea.Cmd {
	return m.listenCmd()
}

// listenCmd pulls the next poller event off the channel.
func (m Model) listenCmd() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{event: <-m.events}
	}
}

func (m Model) loginCmd() tea.Cmd {
	email, password := m.email, m.password
	return func() tea.Msg {
		auth, err := m.client.Login(m.ctx, email, password)
		return loginResultMsg{auth: auth, err: err}
	}
}

// ackAlertsCmd marks every currently visible unread alert as read. The next
// poll reflects the change.
func (m Model) ackAlertsCmd() tea.Cmd {
	if m.snapshot == nil || len(m.snapshot.UnreadAlerts) == 0 {
		return nil
	}
	alerts := m.snapshot.UnreadAlerts
	return func() tea.Msg {
		for _, alert := range alerts {
			if err := m.client.MarkAlertRead(m.ctx, alert.ID); err != nil {
				return alertsAckedMsg{err: err}
			}
		}
		return alertsAckedMsg{}
	}
}

func (m Model) loadTeensCmd() tea.Cmd {
	return func() tea.Msg {
		teens, err := m.client.Teens(m.ctx)
		return teensLoadedMsg{teens: teens, err: err}
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case loginResultMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.loginError = msg.err.Error()
			return m, nil
		}
		m.view = viewTeens
		m.loadingTeens = true
		m.listError = ""
		return m, m.loadTeensCmd()

	case teensLoadedMsg:
		m.loadingTeens = false
		if msg.err != nil {
			m.listError = msg.err.Error()
			return m, nil
		}
		m.teens = msg.teens
		m.teenIndex = 0
		return m, nil

	case alertsAckedMsg:
		if msg.err != nil {
			m.fetchError = msg.err.Error()
		}
		return m, nil

	case snapshotMsg:
		ev := msg.event
		// A stale event from a previously selected teen is dropped.
		if m.selected != nil && ev.TeenID == m.selected.ID {
			if ev.Err != nil {
				m.fetchError = ev.Err.Error()
			} else {
				m.snapshot = ev.Snapshot
				m.fetchError = ""
			}
		}
		return m, m.listenCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.poller.Stop()
		return m, tea.Quit
	}

	switch m.view {
	case viewLogin:
		return m.handleLoginKey(msg)
	case viewTeens:
		return m.handleTeensKey(msg)
	case viewDashboard:
		return m.handleDashboardKey(msg)
	}
	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown, tea.KeyUp:
		if m.focus == fieldEmail {
			m.focus = fieldPassword
		} else {
			m.focus = fieldEmail
		}
	case tea.KeyEnter:
		if m.email != "" && m.password != "" && !m.loggingIn {
			m.loggingIn = true
			m.loginError = ""
			return m, m.loginCmd()
		}
	case tea.KeyBackspace:
		if m.focus == fieldEmail && m.email != "" {
			m.email = m.email[:len(m.email)-1]
		} else if m.focus == fieldPassword && m.password != "" {
			m.password = m.password[:len(m.password)-1]
		}
	case tea.KeyRunes, tea.KeySpace:
		if m.focus == fieldEmail {
			m.email += string(msg.Runes)
		} else {
			m.password += string(msg.Runes)
		}
	}
	return m, nil
}

func (m Model) handleTeensKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.teenIndex > 0 {
			m.teenIndex--
		}
	case "down", "j":
		if m.teenIndex < len(m.teens)-1 {
			m.teenIndex++
		}
	case "r":
		m.loadingTeens = true
		return m, m.loadTeensCmd()
	case "enter":
		if len(m.teens) > 0 {
			teen := m.teens[m.teenIndex]
			m.selected = &teen
			m.snapshot = nil
			m.fetchError = ""
			m.view = viewDashboard
			m.poller.Select(m.ctx, teen.ID)
		}
	case "q":
		m.poller.Stop()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "b":
		// Back to the list: the selected teen's timer is cancelled.
		m.poller.Stop()
		m.selected = nil
		m.snapshot = nil
		m.view = viewTeens
	case "a":
		return m, m.ackAlertsCmd()
	case "q":
		m.poller.Stop()
		return m, tea.Quit
	}
	return m, nil
}

// View renders the current screen.
func (m Model) View() string {
	switch m.view {
	case viewLogin:
		return m.viewLogin()
	case viewTeens:
		return m.viewTeens()
	case viewDashboard:
		return m.viewDashboard()
	}
	return ""
}

func (m Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("TeenGuard Parent Login") + "\n\n")

	emailPrompt := "  "
	passwordPrompt := "  "
	if m.focus == fieldEmail {
		emailPrompt = selectedStyle.Render("> ")
	} else {
		passwordPrompt = selectedStyle.Render("> ")
	}

	b.WriteString(emailPrompt + promptStyle.Render("Email:    ") + valueStyle.Render(m.email) + "\n")
	b.WriteString(passwordPrompt + promptStyle.Render("Password: ") + valueStyle.Render(strings.Repeat("*", len(m.password))) + "\n\n")

	if m.loggingIn {
		b.WriteString(statusStyle.Render("Logging in...") + "\n")
	}
	if m.loginError != "" {
		b.WriteString(errorStyle.Render(m.loginError) + "\n")
	}
	b.WriteString("\n" + statusStyle.Render("tab: switch field • enter: login • ctrl+c: quit"))
	return b.String()
}

func (m Model) viewTeens() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Monitored Profiles") + "\n\n")

	switch {
	case m.loadingTeens:
		b.WriteString(statusStyle.Render("Loading...") + "\n")
	case m.listError != "":
		b.WriteString(errorStyle.Render(m.listError) + "\n")
	case len(m.teens) == 0:
		b.WriteString(statusStyle.Render("No profiles yet. Create one with 'teenguard teens add'.") + "\n")
	default:
		for i, teen := range m.teens {
			line := fmt.Sprintf("%s (%s)", teen.Name, teen.DeviceID)
			if i == m.teenIndex {
				b.WriteString(selectedStyle.Render("> "+line) + "\n")
			} else {
				b.WriteString("  " + valueStyle.Render(line) + "\n")
			}
		}
	}

	b.WriteString("\n" + statusStyle.Render("up/down: select • enter: open dashboard • r: refresh • q: quit"))
	return b.String()
}

func (m Model) viewDashboard() string {
	var b strings.Builder
	name := ""
	if m.selected != nil {
		name = m.selected.Name
	}
	b.WriteString(titleStyle.Render("Dashboard: "+name) + "\n\n")

	if m.fetchError != "" {
		b.WriteString(errorStyle.Render("refresh failed: "+m.fetchError) + "\n\n")
	}

	if m.snapshot == nil {
		b.WriteString(statusStyle.Render("Loading snapshot...") + "\n")
	} else {
		snap := m.snapshot

		b.WriteString(headerStyle.Render("Screen time today: ") +
			valueStyle.Render(fmt.Sprintf("%d min", snap.ScreenTimeToday)) + "\n\n")

		b.WriteString(headerStyle.Render("Top apps") + "\n")
		if len(snap.AppUsageToday) == 0 {
			b.WriteString(statusStyle.Render("  no usage reported today") + "\n")
		}
		for i, u := range snap.AppUsageToday {
			if i >= 5 {
				break
			}
			b.WriteString(valueStyle.Render(fmt.Sprintf("  %-12s %3d min", u.AppName, u.UsageTime)) + "\n")
		}

		b.WriteString("\n" + headerStyle.Render("Last location") + "\n")
		if len(snap.RecentLocations) == 0 {
			b.WriteString(statusStyle.Render("  no location reported") + "\n")
		} else {
			loc := snap.RecentLocations[0]
			line := fmt.Sprintf("  %.5f, %.5f", loc.Latitude, loc.Longitude)
			if loc.Address != nil {
				line += "  " + *loc.Address
			}
			b.WriteString(valueStyle.Render(line) + "\n")
		}

		b.WriteString("\n" + headerStyle.Render("Recent web visits") + "\n")
		if len(snap.RecentWebHistory) == 0 {
			b.WriteString(statusStyle.Render("  no visits reported") + "\n")
		}
		for i, h := range snap.RecentWebHistory {
			if i >= 5 {
				break
			}
			b.WriteString(valueStyle.Render("  "+h.Title) + statusStyle.Render("  "+h.URL) + "\n")
		}

		b.WriteString("\n" + headerStyle.Render(fmt.Sprintf("Unread alerts (%d)", len(snap.UnreadAlerts))) + "\n")
		for i, a := range snap.UnreadAlerts {
			if i >= 5 {
				break
			}
			b.WriteString(alertStyle.Render("  ! "+a.Message) + "\n")
		}
	}

	b.WriteString("\n" + statusStyle.Render("esc: back • a: mark alerts read • q: quit"))
	return b.String()
}
