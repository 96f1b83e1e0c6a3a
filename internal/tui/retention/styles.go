package retention

import "github.com/charmbracelet/lipgloss"

var (
	colorRemove   = lipgloss.Color("196") // bright red
	colorKeep     = lipgloss.Color("76")  // green
	colorSelected = lipgloss.Color("39")  // blue
	colorMuted    = lipgloss.Color("242") // gray
	colorWhite    = lipgloss.Color("15")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginBottom(1)

	selectedItemStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("236")).
				Foreground(colorWhite).
				Bold(true)

	normalItemStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	removeStyle = lipgloss.NewStyle().
			Foreground(colorRemove).
			Bold(true)

	keepStyle = lipgloss.NewStyle().
			Foreground(colorKeep)

	userDataStyle = lipgloss.NewStyle().
			Foreground(colorSelected).
			Italic(true)

	pathStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorRemove)
)

func choiceMark(remove bool) string {
	if remove {
		return removeStyle.Render("[x] remove")
	}
	return keepStyle.Render("[ ] keep  ")
}
