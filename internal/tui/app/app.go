// Package app is the Bubble Tea model of the kiosk display.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/tui/client"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/tui/theme"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	minWidth      = 40
	maxNotices    = 6
	tickInterval  = time.Second
	defaultStyle  = "dark"
	briefingInset = 4
)

// Feed delivers kiosk views.
type Feed interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
}

// Control drives the kiosk through its admin API.
type Control interface {
	Simulate(frame string) (gateway.Event, error)
	Logout() error
}

// controlResultMsg reports the outcome of a Control call.
type controlResultMsg struct{ err error }

type tickMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	feed    Feed
	control Control
	ctx     context.Context
	cancel  context.CancelFunc

	keys   KeyMap
	width  int
	height int
	now    func() time.Time

	view      session.View
	connected bool
	lastError string

	spinner  spinner.Model
	input    textinput.Model
	entering bool

	markdownStyle string
	briefing      string // rendered briefing
	briefingFor   string // text the cache was rendered from
	briefingWidth int
}

// New creates the root model.
func New(feed Feed, control Control) Model {
	ctx, cancel := context.WithCancel(context.Background())

	input := textinput.New()
	input.Prompt = "card> "
	input.Placeholder = "RFID-001"
	input.CharLimit = 64

	return Model{
		feed:          feed,
		control:       control,
		ctx:           ctx,
		cancel:        cancel,
		keys:          DefaultKeyMap(),
		now:           time.Now,
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:         input,
		markdownStyle: defaultStyle,
	}
}

// Init starts following the feed.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tick()}
	if m.feed != nil {
		cmds = append(cmds, m.feed.Listen(m.ctx))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderBriefing()
		return m, nil

	case tea.KeyMsg:
		if m.entering {
			return m.handleInput(msg)
		}
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		return m, m.feed.ReadLoop(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		return m, m.feed.Listen(m.ctx)

	case client.ViewMsg:
		m.view = msg.View
		m.renderBriefing()
		return m, m.feed.ReadLoop(m.ctx)

	case client.ServerErrorMsg:
		m.lastError = string(msg.Raw)
		return m, m.feed.ReadLoop(m.ctx)

	case controlResultMsg:
		m.lastError = ""
		if msg.err != nil {
			m.lastError = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tick()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Green):
		return m, m.simulate(gateway.ButtonGreen)

	case key.Matches(msg, m.keys.Red):
		return m, m.simulate(gateway.ButtonRed)

	case key.Matches(msg, m.keys.Card):
		m.entering = true
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Logout):
		return m, m.logout()
	}
	return m, nil
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Escape):
		m.entering = false
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		tag := strings.TrimSpace(m.input.Value())
		m.entering = false
		m.input.Blur()
		if tag == "" {
			return m, nil
		}
		return m, m.simulate(tag)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) simulate(frame string) tea.Cmd {
	control := m.control
	if control == nil {
		return nil
	}
	return func() tea.Msg {
		_, err := control.Simulate(frame)
		return controlResultMsg{err: err}
	}
}

func (m Model) logout() tea.Cmd {
	control := m.control
	if control == nil {
		return nil
	}
	return func() tea.Msg {
		return controlResultMsg{err: control.Logout()}
	}
}

// renderBriefing refreshes the glamour rendering when the text or width
// changed.
func (m *Model) renderBriefing() {
	text := m.view.Briefing
	width := max(m.width, minWidth) - briefingInset
	if text == m.briefingFor && width == m.briefingWidth {
		return
	}
	m.briefingFor, m.briefingWidth = text, width
	if text == "" {
		m.briefing = ""
		return
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.markdownStyle),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		if out, err := r.Render(text); err == nil {
			m.briefing = strings.Trim(out, "\n")
			return
		}
	}
	m.briefing = text
}

// View renders the full display.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.connected {
		return m.renderDisconnected()
	}

	sections := []string{m.renderStatus(), "", m.renderPhase()}
	if m.entering {
		sections = append(sections, "", theme.StyleBorder.Render(m.input.View()))
	}
	if m.lastError != "" {
		sections = append(sections, "", theme.StyleError.Render(m.lastError))
	}
	sections = append(sections, "", theme.StyleDimmed.Render("  g:green  r:red  c:card  x:logout  q:quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	body := lipgloss.JoinVertical(lipgloss.Center,
		theme.StyleError.Render("DISCONNECTED"),
		theme.StyleDimmed.Render("Reconnecting to kiosk..."),
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		theme.StyleBorder.Padding(1, 4).Render(body))
}

func (m Model) renderStatus() string {
	width := max(m.width, minWidth)

	gw := lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Gateway online")
	if !m.view.Gateway.Connected {
		label := "○ Gateway offline"
		if m.view.Gateway.LastError != "" {
			label += ": " + m.view.Gateway.LastError
		}
		gw = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(label)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := theme.StyleHeader.Render("InfoPoint") + sep + gw

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderPhase() string {
	v := m.view
	switch v.Phase {
	case session.Authenticating:
		return fmt.Sprintf("%s Verifying card %s...", m.spinner.View(), v.Tag)
	case session.AuthError:
		return lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleError.Render("Sign-in failed"),
			v.Error,
			theme.StyleDimmed.Render("Please try again or contact your supervisor."),
		)
	case session.Authenticated, session.ActionFeedback:
		return m.renderDashboard()
	default:
		return lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleHeader.Render("Welcome"),
			"Scan your card to sign in.",
		)
	}
}

func (m Model) renderDashboard() string {
	v := m.view
	var lines []string

	if e := v.Employee; e != nil {
		lines = append(lines, theme.StyleHeader.Render(e.FullName()))
		if e.Position != "" || e.Department != "" {
			lines = append(lines, theme.StyleDimmed.Render(strings.Trim(e.Position+" · "+e.Department, " ·")))
		}
		status := lipgloss.NewStyle().Foreground(theme.WorkStatusColor(e.WorkStatus)).
			Render(workStatusLabel(e.WorkStatus))
		lines = append(lines, "Status: "+status)
	}

	if f := v.Feedback; f != nil {
		lines = append(lines, "", lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.FeedbackColor(f.Kind)).
			Render(f.Message))
	}

	lines = append(lines, "")
	switch {
	case v.BriefingPending:
		lines = append(lines, m.spinner.View()+" Preparing your briefing...")
	case m.briefing != "":
		lines = append(lines, m.briefing)
	}

	lines = append(lines, "", m.renderNotifications(v.Notifications))

	if v.LogoutAt != nil {
		left := v.LogoutAt.Sub(m.now()).Round(time.Second)
		if left < 0 {
			left = 0
		}
		lines = append(lines, "", theme.StyleDimmed.Render(fmt.Sprintf("Signing out in %s", left)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderNotifications(ns []directory.Notification) string {
	if len(ns) == 0 {
		return theme.StyleDimmed.Render("No new notifications")
	}

	lines := []string{theme.StyleHeader.Render(fmt.Sprintf("Notifications (%d)", len(ns)))}
	for i, n := range ns {
		if i == maxNotices {
			lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  +%d more", len(ns)-maxNotices)))
			break
		}
		marker := lipgloss.NewStyle().Foreground(theme.NotificationColor(n.Type)).
			Render(theme.NotificationGlyph(n.Type))
		line := fmt.Sprintf("  %s %s", marker, n.Title)
		if n.DueDate != "" {
			line += theme.StyleDimmed.Render("  due " + n.DueDate)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func workStatusLabel(s directory.WorkStatus) string {
	if s == directory.WorkActive {
		return "at work"
	}
	return "off work"
}
