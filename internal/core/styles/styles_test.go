package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/bell/internal/core/notify"
)

func TestThemeNames(t *testing.T) {
	assert.Equal(t, []string{"catppuccin", "gruvbox", "tokyo-night"}, ThemeNames())
}

func TestGetPalette(t *testing.T) {
	p, ok := GetPalette("gruvbox")
	assert.True(t, ok)
	assert.Equal(t, "#fb4934", string(p.Error))

	_, ok = GetPalette("nope")
	assert.False(t, ok)
}

func TestSetTheme_RebuildsTypeStyles(t *testing.T) {
	defer SetTheme(themes[DefaultTheme])

	p, _ := GetPalette("catppuccin")
	SetTheme(p)

	assert.Equal(t, p, CurrentPalette)
	assert.Equal(t, p.Error, TypeStyle(notify.TypeError).GetForeground())
	assert.Equal(t, p.Info, TypeStyle("bogus").GetForeground(), "unknown types style as info")
}

func TestTypeIcon(t *testing.T) {
	tests := []struct {
		typ  notify.Type
		want string
	}{
		{notify.TypeSuccess, IconSuccess},
		{notify.TypeInfo, IconInfo},
		{notify.TypeWarning, IconWarning},
		{notify.TypeError, IconError},
		{"", IconInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, TypeIcon(tt.typ))
		})
	}
}

func TestFormTheme_UsesPalette(t *testing.T) {
	theme := FormTheme()
	assert.Equal(t, CurrentPalette.Primary, theme.Focused.Title.GetForeground())
}
