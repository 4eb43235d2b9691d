package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the stack view bindings.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Checkout key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Squash   key.Binding
	Drop     key.Binding
	MoveUp   key.Binding
	MoveDown key.Binding
	Apply    key.Binding
	Reset    key.Binding
	Refresh  key.Binding
	Sync     key.Binding
	Submit   key.Binding
	Restack  key.Binding
	Create   key.Binding
	Cancel   key.Binding
	Quit     key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "select")),
		Down:     key.NewBinding(key.WithKeys("down", "j")),
		Checkout: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "checkout")),
		Expand:   key.NewBinding(key.WithKeys(" ", "space", "right", "l"), key.WithHelp("space", "commits")),
		Collapse: key.NewBinding(key.WithKeys("left", "h")),
		Squash:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "squash")),
		Drop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "drop")),
		MoveUp:   key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K/J", "move")),
		MoveDown: key.NewBinding(key.WithKeys("J", "shift+down")),
		Apply:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply")),
		Reset:    key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "reset")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Sync:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "sync")),
		Submit:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "submit")),
		Restack:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "restack")),
		Create:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "create")),
		Cancel:   key.NewBinding(key.WithKeys("esc")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp lists the bindings shown in the help line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Checkout, k.Expand, k.Squash, k.Drop, k.MoveUp,
		k.Apply, k.Reset, k.Refresh, k.Sync, k.Submit, k.Restack, k.Create, k.Quit,
	}
}
