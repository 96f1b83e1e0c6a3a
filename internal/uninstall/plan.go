// Package uninstall removes what the launcher put on disk. Launcher
// artifacts are removed by default; user data is kept unless the caller
// opts in.
package uninstall

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/steveyegge/pawlaunch/internal/config"
)

// Component names.
const (
	Venv      = "venv"
	UV        = "uv"
	Python    = "python"
	Logs      = "logs"
	PID       = "pid"
	Record    = "record"
	Source    = "source"
	Locks     = "locks"
	Config    = "config"
	Memory    = "memory"
	Audit     = "audit"
	LoginItem = "autostart"
)

// Component is one removable group of paths.
type Component struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Paths       []string `json:"paths"`
	// UserData components are kept unless explicitly selected.
	UserData bool `json:"user_data"`
}

var titler = cases.Title(language.English)

// Title is the description in title case, for headings.
func (c Component) Title() string {
	return titler.String(c.Description)
}

// Exists reports whether any of the component's paths exist.
func (c Component) Exists() bool {
	for _, p := range c.Paths {
		if _, err := os.Lstat(p); err == nil {
			return true
		}
	}
	return false
}

// Components lists everything under the home in removal order. Locks come
// last so they can be removed after the operation lock is released.
func Components(p config.Paths) []Component {
	return []Component{
		{Name: Venv, Description: "virtual environment", Paths: []string{p.Env}},
		{Name: UV, Description: "uv package manager", Paths: []string{p.UVDir}},
		{Name: Python, Description: "provisioned python", Paths: []string{p.PythonDir}},
		{Name: Logs, Description: "log files", Paths: []string{p.Logs, p.ServerLog}},
		{Name: PID, Description: "server pid record", Paths: []string{p.PIDFile}},
		{Name: Record, Description: "install record", Paths: []string{p.InstallFile, p.DevMarker, p.Overrides}},
		{Name: Source, Description: "branch checkouts", Paths: []string{p.SourceDir}},
		{Name: Config, Description: "configuration", Paths: []string{p.AppConfig, filepath.Join(p.Home, config.FileName)}, UserData: true},
		{Name: Memory, Description: "memory and conversation history", Paths: []string{p.Memory}, UserData: true},
		{Name: Audit, Description: "audit log", Paths: []string{p.Audit}, UserData: true},
		{Name: Locks, Description: "lock files", Paths: []string{p.OpLock, p.InstanceLock}},
	}
}

// Item is one component and whether it will be removed.
type Item struct {
	Component Component `json:"component"`
	Remove    bool      `json:"remove"`
	Exists    bool      `json:"exists"`
}

// Plan is the retention plan: every component with a keep/remove choice.
type Plan struct {
	Items []Item `json:"items"`
}

// DefaultPlan removes launcher artifacts and keeps user data.
func DefaultPlan(p config.Paths) *Plan {
	comps := Components(p)
	plan := &Plan{Items: make([]Item, len(comps))}
	for i, c := range comps {
		plan.Items[i] = Item{Component: c, Remove: !c.UserData, Exists: c.Exists()}
	}
	return plan
}

// Set changes the choice for the named component.
func (p *Plan) Set(name string, remove bool) error {
	for i := range p.Items {
		if p.Items[i].Component.Name == name {
			p.Items[i].Remove = remove
			return nil
		}
	}
	return fmt.Errorf("unknown component %q (valid: %s)", name, strings.Join(p.Names(), ", "))
}

// Removes reports whether the named component is marked for removal.
func (p *Plan) Removes(name string) bool {
	for _, it := range p.Items {
		if it.Component.Name == name {
			return it.Remove
		}
	}
	return false
}

// Names lists the component names in order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Items))
	for i, it := range p.Items {
		names[i] = it.Component.Name
	}
	return names
}

// Existing returns the items that have something on disk.
func (p *Plan) Existing() []Item {
	var out []Item
	for _, it := range p.Items {
		if it.Exists {
			out = append(out, it)
		}
	}
	return out
}
