package bell

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the bell bindings. It satisfies help.KeyMap.
type KeyMap struct {
	Toggle  key.Binding
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	MarkAll key.Binding
	Clear   key.Binding
	Dismiss key.Binding
	Close   key.Binding
	Quit    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Toggle:  key.NewBinding(key.WithKeys("n", " "), key.WithHelp("n", "notifications")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		MarkAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "mark all read")),
		Clear:   key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "clear")),
		Dismiss: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dismiss toast")),
		Close:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Up, k.Down, k.Select, k.MarkAll, k.Close, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Close, k.Quit},
		{k.Up, k.Down, k.Select},
		{k.MarkAll, k.Clear, k.Dismiss},
	}
}

// setOpen enables the bindings that only apply while the dropdown is shown.
func (k *KeyMap) setOpen(open bool, unread int) {
	k.Up.SetEnabled(open)
	k.Down.SetEnabled(open)
	k.Select.SetEnabled(open)
	k.Close.SetEnabled(open)
	k.Clear.SetEnabled(open)
	k.MarkAll.SetEnabled(open && unread > 0)
}
