package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-borg-arena/internal/orchestrator"
	"github.com/randomizedcoder/go-borg-arena/internal/roster"
)

// maxOutputLines bounds the output pane history.
const maxOutputLines = 500

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// OutputMsg carries one line of server or bot output.
type OutputMsg struct {
	Text  string
	Error bool
}

// WarnMsg is a warning shown until the next key press.
type WarnMsg struct {
	Title   string
	Message string
}

// RoundStartedMsg is sent when the server has been launched.
type RoundStartedMsg struct {
	Round orchestrator.Round
}

// RoundOverMsg is sent when a round has been resolved.
type RoundOverMsg struct {
	Result orchestrator.MatchResult
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// launchDoneMsg reports the outcome of a launch key press.
type launchDoneMsg struct {
	round orchestrator.Round
	err   error
}

// killDoneMsg reports that a kill has completed.
type killDoneMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Controller is the session the dashboard drives.
type Controller interface {
	LaunchRound() (orchestrator.Round, error)
	Kill()
	IsRunning() bool
	RoundCount() int
	SetRounds(n int) error
	SetBotEnabled(index int, enabled bool) error
	Bots() []roster.Bot
	Standings() []roster.Standing
}

// outputLine is one line in the output pane.
type outputLine struct {
	text  string
	error bool
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	keys        KeyMap
	ctrl        Controller
	serverPath  string
	mapPath     string
	metricsAddr string
	logPath     string

	// Current state
	output     []outputLine
	bots       []roster.Bot
	standings  []roster.Standing
	cursor     int
	running    bool
	killing    bool
	rounds     int
	current    *orchestrator.Round
	lastResult *orchestrator.MatchResult
	warning    *WarnMsg
	status     string
	startTime  time.Time

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Controller  Controller
	ServerPath  string
	MapPath     string
	MetricsAddr string
	LogPath     string
}

// New creates a new TUI model.
func New(cfg Config) Model {
	m := Model{
		keys:        DefaultKeyMap,
		ctrl:        cfg.Controller,
		serverPath:  cfg.ServerPath,
		mapPath:     cfg.MapPath,
		metricsAddr: cfg.MetricsAddr,
		logPath:     cfg.LogPath,
		startTime:   time.Now(),
		width:       80,
		height:      24,
	}
	m.refresh()
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case OutputMsg:
		m.appendOutput(msg.Text, msg.Error)
		return m, nil

	case WarnMsg:
		w := msg
		m.warning = &w
		return m, nil

	case RoundStartedMsg:
		r := msg.Round
		m.current = &r
		m.running = true
		m.status = ""
		return m, nil

	case RoundOverMsg:
		res := msg.Result
		m.lastResult = &res
		m.current = nil
		m.running = false
		m.refresh()
		return m, nil

	case launchDoneMsg:
		if msg.err != nil {
			title, message := orchestrator.UserMessage(msg.err)
			m.warning = &WarnMsg{Title: title, Message: message}
			m.status = title
			return m, nil
		}
		r := msg.round
		m.current = &r
		m.running = true
		m.status = ""
		return m, nil

	case killDoneMsg:
		m.killing = false
		m.refresh()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// handleKey handles key presses. An open warning swallows the first key.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		m.quitting = true
		return m, tea.Quit
	}
	if m.warning != nil {
		m.warning = nil
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Launch):
		if m.running {
			m.status = "Already running"
			return m, nil
		}
		m.status = "Launching..."
		return m, launchCmd(m.ctrl)

	case key.Matches(msg, m.keys.Kill):
		if m.killing {
			return m, nil
		}
		m.killing = true
		m.status = "Killing..."
		return m, killCmd(m.ctrl)

	case key.Matches(msg, m.keys.MoreRounds):
		m.setRounds(m.rounds + 1)

	case key.Matches(msg, m.keys.LessRounds):
		m.setRounds(m.rounds - 1)

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.bots)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Toggle):
		m.toggleBot()

	case key.Matches(msg, m.keys.Clear):
		m.output = nil
	}

	return m, nil
}

func (m *Model) setRounds(n int) {
	if m.ctrl == nil {
		return
	}
	if err := m.ctrl.SetRounds(n); err != nil {
		m.status = fmt.Sprintf("Rounds must be %d-%d", orchestrator.MinRounds, orchestrator.MaxRounds)
		return
	}
	m.rounds = n
	m.status = ""
}

func (m *Model) toggleBot() {
	if m.ctrl == nil || m.cursor >= len(m.bots) {
		return
	}
	b := m.bots[m.cursor]
	if err := m.ctrl.SetBotEnabled(m.cursor, !b.Enabled); err != nil {
		m.status = err.Error()
		return
	}
	m.refresh()
}

// refresh reloads the roster view and round state from the controller.
func (m *Model) refresh() {
	if m.ctrl == nil {
		return
	}
	m.bots = m.ctrl.Bots()
	m.standings = m.ctrl.Standings()
	m.rounds = m.ctrl.RoundCount()
	m.running = m.ctrl.IsRunning()
	if !m.running {
		m.current = nil
	}
	if m.cursor >= len(m.bots) {
		m.cursor = max(len(m.bots)-1, 0)
	}
}

func (m *Model) appendOutput(text string, isError bool) {
	m.output = append(m.output, outputLine{text: text, error: isError})
	if over := len(m.output) - maxOutputLines; over > 0 {
		m.output = append([]outputLine(nil), m.output[over:]...)
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// launchCmd launches off the event loop; the orchestrator may emit output
// through the program while it works.
func launchCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		if ctrl == nil {
			return launchDoneMsg{err: orchestrator.ErrNoServerPath}
		}
		r, err := ctrl.LaunchRound()
		return launchDoneMsg{round: r, err: err}
	}
}

// killCmd kills off the event loop; Kill blocks until the round resolves.
func killCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		if ctrl != nil {
			ctrl.Kill()
		}
		return killDoneMsg{}
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// RoundElapsed returns how long the current round has been running.
func (m Model) RoundElapsed() time.Duration {
	if m.current == nil {
		return 0
	}
	return time.Since(m.current.StartedAt)
}

// Running reports whether a round is in progress.
func (m Model) Running() bool {
	return m.running
}

// EnabledBots returns the number of enabled bots.
func (m Model) EnabledBots() int {
	n := 0
	for _, b := range m.bots {
		if b.Enabled {
			n++
		}
	}
	return n
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// truncate shortens s to width cells, marking the cut with "...".
func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
