package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the sync dashboard bindings. up and down are handled by the history list.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	start   key.Binding
	cancel  key.Binding
	refresh key.Binding
	back    key.Binding
	yes     key.Binding
	no      key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll history")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll history")),
		start:   key.NewBinding(key.WithKeys("s", "enter"), key.WithHelp("s", "start sync")),
		cancel:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel sync")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.start},
		{k.cancel, k.refresh, k.back},
		{k.yes, k.no, k.quit},
	}
}
