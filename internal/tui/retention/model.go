// Package retention is the interactive checklist shown by
// "pawlaunch uninstall --interactive". Each component on disk is toggled
// between keep and remove before anything is deleted.
package retention

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/steveyegge/pawlaunch/internal/uninstall"
)

// Model is the bubbletea model for the checklist.
type Model struct {
	plan     *uninstall.Plan
	rows     []int // indexes into plan.Items that exist on disk
	defaults map[string]bool

	cursor    int
	keys      KeyMap
	help      help.Model
	width     int
	confirmed bool
	cancelled bool
}

// New creates a model over plan. The plan is edited in place.
func New(plan *uninstall.Plan) Model {
	m := Model{
		plan:     plan,
		defaults: make(map[string]bool),
		keys:     DefaultKeyMap(),
		help:     help.New(),
	}
	for i, it := range plan.Items {
		m.defaults[it.Component.Name] = it.Remove
		if it.Exists {
			m.rows = append(m.rows, i)
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Confirm):
			m.confirmed = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Toggle):
			if it := m.current(); it != nil {
				it.Remove = !it.Remove
			}
		case key.Matches(msg, m.keys.Defaults):
			for i := range m.plan.Items {
				m.plan.Items[i].Remove = m.defaults[m.plan.Items[i].Component.Name]
			}
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m Model) current() *uninstall.Item {
	if len(m.rows) == 0 {
		return nil
	}
	return &m.plan.Items[m.rows[m.cursor]]
}

// Confirmed reports whether the user chose to uninstall.
func (m Model) Confirmed() bool {
	return m.confirmed && !m.cancelled
}

// Plan returns the edited plan.
func (m Model) Plan() *uninstall.Plan {
	return m.plan
}

// Run shows the checklist on in/out and returns the edited plan. ok is
// false when the user cancelled.
func Run(plan *uninstall.Plan, in io.Reader, out io.Writer) (edited *uninstall.Plan, ok bool, err error) {
	final, err := tea.NewProgram(New(plan), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return nil, false, fmt.Errorf("running uninstall checklist: %w", err)
	}
	m := final.(Model)
	return m.Plan(), m.Confirmed(), nil
}
