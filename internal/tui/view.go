package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the whole screen.
func (m Model) renderDashboard() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderRound())
	sections = append(sections, renderTwoColumns(m.renderOutput(), m.renderScoreboard()))

	if m.warning != nil {
		sections = append(sections, m.renderWarning())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-borg-arena │ %s │ Rounds: %d │ Bots: %d/%d │ Elapsed: %s ",
		GetRoundStatusLabel(m.running, m.killing),
		m.rounds,
		m.EnabledBots(),
		len(m.bots),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Round Section
// =============================================================================

func (m Model) renderRound() string {
	mapLabel := m.mapPath
	if mapLabel == "" {
		mapLabel = "(server default)"
	}

	lines := []string{
		sectionHeaderStyle.Render("Round"),
		RenderKeyValue("Server", truncate(m.serverPath, m.width-20)),
		RenderKeyValue("Map", mapLabel),
	}

	if m.current != nil {
		lines = append(lines, RenderKeyValue("Running", fmt.Sprintf("%s (pid %d, %s)",
			formatDuration(m.RoundElapsed()),
			m.current.PID,
			strings.Join(m.current.Args, " "),
		)))
	}

	if m.lastResult != nil {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Last result:"),
			GetOutcomeLabel(*m.lastResult),
			dimStyle.Render(" after "+formatDuration(m.lastResult.Duration)),
		))
	} else {
		lines = append(lines, RenderKeyValue("Last result", "-"))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Output Pane
// =============================================================================

// outputRows is how many output lines fit on screen.
func (m Model) outputRows() int {
	rows := m.height - 16
	if m.warning != nil {
		rows -= 4
	}
	if rows < 5 {
		rows = 5
	}
	return rows
}

// outputWidth is the width of the output column.
func (m Model) outputWidth() int {
	w := (m.width * 3) / 5
	if w < 30 {
		w = 30
	}
	return w
}

func (m Model) renderOutput() string {
	rows := m.outputRows()
	width := m.outputWidth()

	start := 0
	if len(m.output) > rows {
		start = len(m.output) - rows
	}

	lines := []string{sectionHeaderStyle.Render("Output")}
	if len(m.output) == 0 {
		lines = append(lines, dimStyle.Render("No output yet. Press l to launch."))
	}
	for _, line := range m.output[start:] {
		text := truncate(line.text, width-4)
		if line.error {
			lines = append(lines, outputErrorStyle.Render(text))
		} else {
			lines = append(lines, outputNormalStyle.Render(text))
		}
	}

	return boxStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Scoreboard
// =============================================================================

func (m Model) renderScoreboard() string {
	width := m.width - m.outputWidth() - 4
	if width < 24 {
		width = 24
	}

	lines := []string{sectionHeaderStyle.Render("Roster")}
	if len(m.bots) == 0 {
		lines = append(lines, dimStyle.Render("No bots. Pass a bot directory."))
	}
	for i, b := range m.bots {
		row := fmt.Sprintf("%s %-*s %3d", renderCheckbox(b.Enabled), width-12, truncate(b.Name, width-12), b.Wins)
		if i == m.cursor {
			row = selectedStyle.Render(row)
		}
		lines = append(lines, row)
	}

	if leader := m.leader(); leader != "" {
		lines = append(lines, "", mutedStyle.Render("Leader: ")+boldStyle.Render(leader))
	}

	return boxStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// leader returns the bot with the most wins, or "" before the first win.
func (m Model) leader() string {
	if len(m.standings) == 0 || m.standings[0].Wins == 0 {
		return ""
	}
	return fmt.Sprintf("%s (%d)", m.standings[0].Name, m.standings[0].Wins)
}

// =============================================================================
// Warning
// =============================================================================

func (m Model) renderWarning() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		statusWarning.Render(m.warning.Title),
		baseStyle.Render(m.warning.Message),
		dimStyle.Render("press any key"),
	)
	return warningBoxStyle.Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	var shortcuts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		shortcuts = append(shortcuts, h.Key+": "+h.Desc)
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))

	right := m.status
	if right == "" && m.logPath != "" {
		right = "Log: " + filepath.Base(m.logPath)
	}
	if m.metricsAddr != "" {
		right += "  Metrics: " + m.metricsAddr
	}
	right = dimStyle.Render(right)

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// =============================================================================
// Two-Column Layout Helper
// =============================================================================

// renderTwoColumns renders two panels side by side, top aligned.
func renderTwoColumns(left, right string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}
