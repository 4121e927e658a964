package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the display.
type KeyMap struct {
	Green  key.Binding
	Red    key.Binding
	Card   key.Binding
	Logout key.Binding
	Submit key.Binding
	Escape key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Green: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "green button"),
		),
		Red: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "red button"),
		),
		Card: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "scan card"),
		),
		Logout: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "log out"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "scan"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
