package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const dialogWidth = 64

type styles struct {
	title    lipgloss.Style
	dialog   lipgloss.Style
	version  lipgloss.Style
	faint    lipgloss.Style
	errText  lipgloss.Style
	okText   lipgloss.Style
	helpText lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("12")),
		dialog: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(1, 2).
			Width(dialogWidth),
		version:  lipgloss.NewStyle().Bold(true),
		faint:    lipgloss.NewStyle().Faint(true),
		errText:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		okText:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		helpText: lipgloss.NewStyle().Faint(true).MarginTop(1),
	}
}

// glamourStyle picks the markdown rendering style matching the terminal
// background.
func glamourStyle() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
