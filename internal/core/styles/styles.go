// Package styles provides shared lipgloss styles for CLI and TUI output.
package styles

import (
	"slices"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/bell/internal/core/notify"
)

// Palette defines a minimal semantic theme palette.
type Palette struct {
	Primary    lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Surface    lipgloss.Color
	Success    lipgloss.Color
	Info       lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
}

// DefaultTheme is the name of the default theme.
const DefaultTheme = "tokyo-night"

var themes = map[string]Palette{
	"tokyo-night": {
		Primary:    "#7aa2f7",
		Foreground: "#c0caf5",
		Muted:      "#565f89",
		Surface:    "#3b4261",
		Success:    "#9ece6a",
		Info:       "#7dcfff",
		Warning:    "#e0af68",
		Error:      "#f7768e",
	},
	"gruvbox": {
		Primary:    "#83a598",
		Foreground: "#ebdbb2",
		Muted:      "#665c54",
		Surface:    "#3c3836",
		Success:    "#b8bb26",
		Info:       "#8ec07c",
		Warning:    "#fabd2f",
		Error:      "#fb4934",
	},
	"catppuccin": {
		Primary:    "#89b4fa",
		Foreground: "#cdd6f4",
		Muted:      "#6c7086",
		Surface:    "#313244",
		Success:    "#a6e3a1",
		Info:       "#94e2d5",
		Warning:    "#f9e2af",
		Error:      "#f38ba8",
	},
}

// Icons per notification type and for the bell itself.
const (
	IconBell    = "🔔"
	IconSuccess = "✔"
	IconInfo    = "ℹ"
	IconWarning = "⚠"
	IconError   = "✖"
	IconUnread  = "●"
)

// ThemeNames returns sorted names of all built-in themes.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetPalette returns the palette for the given theme name.
func GetPalette(name string) (Palette, bool) {
	p, ok := themes[name]
	return p, ok
}

// CurrentPalette holds the active theme palette.
var CurrentPalette Palette

// Style exports, rebuilt by SetTheme.
var (
	TitleStyle    lipgloss.Style
	MutedStyle    lipgloss.Style
	BadgeStyle    lipgloss.Style
	BadgeOffStyle lipgloss.Style
	DropdownStyle lipgloss.Style
	SelectedStyle lipgloss.Style
	UnreadStyle   lipgloss.Style
	HelpStyle     lipgloss.Style
	ToastStyle    lipgloss.Style

	typeStyles map[notify.Type]lipgloss.Style
)

// SetTheme sets the active palette and rebuilds all global styles.
func SetTheme(p Palette) {
	CurrentPalette = p

	TitleStyle = lipgloss.NewStyle().Foreground(p.Primary).Bold(true)
	MutedStyle = lipgloss.NewStyle().Foreground(p.Muted)
	BadgeStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ffffff")).
		Background(p.Error).
		Bold(true).
		Padding(0, 1)
	BadgeOffStyle = lipgloss.NewStyle().Foreground(p.Muted).Padding(0, 1)
	DropdownStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Primary).
		Padding(0, 1)
	SelectedStyle = lipgloss.NewStyle().Background(p.Surface)
	UnreadStyle = lipgloss.NewStyle().Foreground(p.Foreground).Bold(true)
	HelpStyle = lipgloss.NewStyle().Foreground(p.Muted).Italic(true)
	ToastStyle = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		Padding(0, 1)

	typeStyles = map[notify.Type]lipgloss.Style{
		notify.TypeSuccess: lipgloss.NewStyle().Foreground(p.Success),
		notify.TypeInfo:    lipgloss.NewStyle().Foreground(p.Info),
		notify.TypeWarning: lipgloss.NewStyle().Foreground(p.Warning),
		notify.TypeError:   lipgloss.NewStyle().Foreground(p.Error),
	}
}

// TypeStyle returns the accent style for a notification type.
func TypeStyle(t notify.Type) lipgloss.Style {
	return typeStyles[t.OrDefault()]
}

// TypeIcon returns the glyph shown next to a notification of type t.
func TypeIcon(t notify.Type) string {
	switch t.OrDefault() {
	case notify.TypeSuccess:
		return IconSuccess
	case notify.TypeWarning:
		return IconWarning
	case notify.TypeError:
		return IconError
	default:
		return IconInfo
	}
}

// FormTheme returns a huh theme matching the active palette.
func FormTheme() *huh.Theme {
	t := huh.ThemeBase()
	p := CurrentPalette

	t.Focused.Base = t.Focused.Base.BorderForeground(p.Primary)
	t.Focused.Title = t.Focused.Title.Foreground(p.Primary).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(p.Muted)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(p.Error)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(p.Error)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(p.Primary)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(p.Success)
	t.Focused.FocusedButton = t.Focused.FocusedButton.Background(p.Primary)
	t.Blurred = t.Focused
	t.Blurred.Base = t.Blurred.Base.BorderForeground(p.Surface)

	return t
}

func init() {
	SetTheme(themes[DefaultTheme])
}
