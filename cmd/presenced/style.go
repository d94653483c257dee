package main

import "github.com/charmbracelet/lipgloss"

// Terminal palette for the status and history commands.
var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	passStyle  = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle  = lipgloss.NewStyle().Foreground(colorFail)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	kindStyle  = lipgloss.NewStyle().Foreground(colorMuted).Width(9)
	lineStyle  = lipgloss.NewStyle().Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(0, 1)
)

// pollerStyle colors a poller state name.
func pollerStyle(state string) lipgloss.Style {
	switch state {
	case "ready":
		return passStyle
	case "loading", "idle":
		return warnStyle
	case "errored":
		return failStyle
	default:
		return mutedStyle
	}
}
