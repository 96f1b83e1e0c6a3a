package retention

import (
	"fmt"
	"strings"

	"github.com/steveyegge/pawlaunch/internal/autostart"
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(autostart.AppName + " Uninstaller"))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString("Nothing to remove: no components found.\n")
		b.WriteString(helpStyle.Render("q to exit"))
		return b.String()
	}

	for i, idx := range m.rows {
		it := m.plan.Items[idx]
		line := fmt.Sprintf("%s  %s", choiceMark(it.Remove), it.Component.Title())
		if it.Component.UserData {
			line += " " + userDataStyle.Render("(your data)")
		}
		if i == m.cursor {
			b.WriteString(selectedItemStyle.Render("> " + line))
		} else {
			b.WriteString(normalItemStyle.Render("  " + line))
		}
		b.WriteString("\n")
		if i == m.cursor {
			for _, p := range it.Component.Paths {
				b.WriteString("      " + pathStyle.Render(p) + "\n")
			}
		}
	}

	if n := m.removingUserData(); n > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d user data component(s) will be deleted permanently.", n)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

func (m Model) removingUserData() int {
	n := 0
	for _, idx := range m.rows {
		it := m.plan.Items[idx]
		if it.Component.UserData && it.Remove {
			n++
		}
	}
	return n
}
