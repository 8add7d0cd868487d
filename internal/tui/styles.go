package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#B388FF")
	goldColor   = lipgloss.Color("#F2C94C")
	mutedColor  = lipgloss.Color("#888888")
	borderColor = lipgloss.Color("#444444")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	coinStyle   = lipgloss.NewStyle().Bold(true).Foreground(goldColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).MarginTop(1)
	footerStyle = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(borderColor).Padding(0, 1)
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#B02A3A")).Padding(0, 1)
	cursorStyle = lipgloss.NewStyle().Reverse(true)

	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	logWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	logErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	fieldStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(borderColor)
	playerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	keeperStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)
