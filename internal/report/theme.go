package report

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used in reports.
// Use DarkTheme() or LightTheme() to get a pre-built theme,
// or construct a custom Theme.
type Theme struct {
	Primary   lipgloss.Color // titles
	Error     lipgloss.Color // failed expectations, removed diff lines
	Warning   lipgloss.Color // forced termination
	Success   lipgloss.Color // passed expectations, added diff lines
	Text      lipgloss.Color // primary text
	TextMuted lipgloss.Color // hints, diff headers
	Border    lipgloss.Color // rules
}

// DarkTheme returns the default theme for dark terminal backgrounds.
func DarkTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#fab283"),
		Error:     lipgloss.Color("#e06c75"),
		Warning:   lipgloss.Color("#f5a742"),
		Success:   lipgloss.Color("#7fd88f"),
		Text:      lipgloss.Color("#eeeeee"),
		TextMuted: lipgloss.Color("#808080"),
		Border:    lipgloss.Color("#484848"),
	}
}

// LightTheme returns a theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#b35c00"),
		Error:     lipgloss.Color("#cf222e"),
		Warning:   lipgloss.Color("#bf8700"),
		Success:   lipgloss.Color("#116329"),
		Text:      lipgloss.Color("#1f2328"),
		TextMuted: lipgloss.Color("#656d76"),
		Border:    lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds all lipgloss styles derived from a Theme.
type styles struct {
	title lipgloss.Style
	rule  lipgloss.Style
	pass  lipgloss.Style
	fail  lipgloss.Style
	warn  lipgloss.Style
	text  lipgloss.Style
	dim   lipgloss.Style
}

// newStyles builds all styles from a theme, bound to renderer r so colour
// support is detected for the report's own writer.
func newStyles(r *lipgloss.Renderer, t Theme) styles {
	return styles{
		title: r.NewStyle().Bold(true).Foreground(t.Primary),
		rule:  r.NewStyle().Foreground(t.Border),
		pass:  r.NewStyle().Bold(true).Foreground(t.Success),
		fail:  r.NewStyle().Bold(true).Foreground(t.Error),
		warn:  r.NewStyle().Foreground(t.Warning),
		text:  r.NewStyle().Foreground(t.Text),
		dim:   r.NewStyle().Foreground(t.TextMuted),
	}
}
