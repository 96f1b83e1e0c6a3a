// Package ui provides terminal detection and the small set of icons used in
// command output.
package ui

import "github.com/charmbracelet/lipgloss"

// Icons used by status lines. The ASCII forms are used when emoji output
// is disabled.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	MutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func icon(fancy, plain string) string {
	if ShouldUseEmoji() {
		return fancy
	}
	return plain
}

// RenderPassIcon returns the success icon.
func RenderPassIcon() string { return passStyle.Render(icon(IconPass, "[ok]")) }

// RenderWarnIcon returns the warning icon.
func RenderWarnIcon() string { return warnStyle.Render(icon(IconWarn, "[warn]")) }

// RenderFailIcon returns the failure icon.
func RenderFailIcon() string { return failStyle.Render(icon(IconFail, "[fail]")) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return MutedStyle.Render(s) }
