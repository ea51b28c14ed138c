// Package tui provides a live terminal dashboard for running a bot tournament.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
// - The server and bot output, errors in red
// - The roster with enabled flags and win tallies
// - The current round and the last result
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-borg-arena/internal/orchestrator"
)

// =============================================================================
// Color Palette
// =============================================================================

// Arena palette. Result colors follow the round outcome: green for a clean
// winner, amber for a winner behind an unclean exit, red for no winner.
var (
	colorPrimary   = lipgloss.Color("#2563EB") // Arena blue
	colorSecondary = lipgloss.Color("#14B8A6") // Teal

	colorSuccess = lipgloss.Color("#22C55E") // Green
	colorWarning = lipgloss.Color("#EAB308") // Amber
	colorError   = lipgloss.Color("#DC2626") // Red
	colorInfo    = lipgloss.Color("#60A5FA") // Light blue

	colorText      = lipgloss.Color("#F3F4F6")
	colorTextMuted = lipgloss.Color("#A1A1AA")
	colorTextDim   = lipgloss.Color("#71717A")
	colorBorder    = lipgloss.Color("#3F3F46")
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	baseStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	boldStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	warningBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorWarning).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(14)
)

// =============================================================================
// Output Styles
// =============================================================================

var (
	outputNormalStyle = baseStyle

	// Error output is red
	outputErrorStyle = lipgloss.NewStyle().
				Foreground(colorError)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorBorder)
)

// =============================================================================
// Round Status Indicator
// =============================================================================

// GetRoundStatusLabel returns a styled label for the round state.
func GetRoundStatusLabel(running, killing bool) string {
	switch {
	case killing:
		return statusWarning.Render("● Killing")
	case running:
		return statusOK.Render("● Running")
	default:
		return statusInfo.Render("● Idle")
	}
}

// GetOutcomeStyle returns the style for a round outcome.
func GetOutcomeStyle(res orchestrator.MatchResult) lipgloss.Style {
	switch {
	case res.Resolved && res.CleanExit:
		return valueGoodStyle
	case res.Resolved:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// GetOutcomeLabel returns a styled one-line description of a result.
func GetOutcomeLabel(res orchestrator.MatchResult) string {
	var text string
	switch {
	case res.Resolved:
		text = "Winner: " + res.Winner
	case res.Killed:
		text = "Killed, no winner"
	default:
		text = "No winner"
	}
	if !res.CleanExit {
		text += fmt.Sprintf(" (exit %d)", res.ExitCode)
	}
	return GetOutcomeStyle(res).Render(text)
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// renderCheckbox renders an enabled flag.
func renderCheckbox(enabled bool) string {
	if enabled {
		return statusOK.Render("[x]")
	}
	return dimStyle.Render("[ ]")
}
