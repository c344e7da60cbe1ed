package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/guseggert/wrapperconsole/console"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

// StatusStyle is the status indicator style for a presentation mode.
func StatusStyle(mode console.Mode) lipgloss.Style {
	switch mode {
	case console.ModeStarting:
		return statusBase.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11"))
	case console.ModeOnline:
		return statusBase.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	default:
		return statusBase.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9"))
	}
}
