package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard key bindings.
type KeyMap struct {
	Launch     key.Binding
	Kill       key.Binding
	MoreRounds key.Binding
	LessRounds key.Binding
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	Clear      key.Binding
	Quit       key.Binding

	// ForceQuit works even while a warning is shown.
	ForceQuit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Launch: key.NewBinding(
		key.WithKeys("l", "enter"),
		key.WithHelp("l", "launch"),
	),
	Kill: key.NewBinding(
		key.WithKeys("k"),
		key.WithHelp("k", "kill"),
	),
	MoreRounds: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+/-", "rounds"),
	),
	LessRounds: key.NewBinding(
		key.WithKeys("-"),
	),
	Up: key.NewBinding(
		key.WithKeys("up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "space"),
		key.WithHelp("space", "toggle bot"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
	),
}

// ShortHelp returns the bindings shown in the footer, in order.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Launch, k.Kill, k.MoreRounds, k.Toggle, k.Clear, k.Quit}
}
