package autostart

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/pawlaunch/internal/util"
)

// DesktopFile is an XDG autostart entry in $XDG_CONFIG_HOME/autostart.
type DesktopFile struct {
	Path   string
	Entry  Entry
	Logger *slog.Logger
}

// NewDesktopFile returns the desktop entry for opts. Options must be filled.
func NewDesktopFile(opts Options) *DesktopFile {
	dir := opts.ConfigDir
	if dir == "" {
		dir = os.Getenv("XDG_CONFIG_HOME")
	}
	if dir == "" {
		dir = filepath.Join(opts.HomeDir, ".config")
	}
	return &DesktopFile{
		Path:   filepath.Join(dir, "autostart", strings.ToLower(AppName)+".desktop"),
		Entry:  opts.Entry,
		Logger: opts.Logger,
	}
}

// ExecLine renders the Exec key value.
func (d *DesktopFile) ExecLine() string {
	line := joinArgs(d.Entry.Command(), "`$\\")
	line = strings.ReplaceAll(line, `\`, `\\`)
	return strings.ReplaceAll(line, "%", "%%")
}

// Render returns the desktop entry.
func (d *DesktopFile) Render() []byte {
	var b bytes.Buffer
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", AppName)
	fmt.Fprintf(&b, "Comment=%s launcher\n", AppName)
	fmt.Fprintf(&b, "Exec=%s\n", d.ExecLine())
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.Bytes()
}

// Enable writes the desktop entry. An identical entry is left alone.
func (d *DesktopFile) Enable(ctx context.Context) error {
	want := d.Render()
	if have, err := os.ReadFile(d.Path); err == nil && bytes.Equal(have, want) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.Path), 0755); err != nil {
		return fmt.Errorf("creating autostart directory: %w", err)
	}
	if err := util.AtomicWriteFile(d.Path, want, 0644); err != nil {
		return fmt.Errorf("writing desktop entry: %w", err)
	}
	d.Logger.Info("autostart enabled", "mechanism", "xdg", "path", d.Path)
	return nil
}

// Disable removes the desktop entry.
func (d *DesktopFile) Disable(ctx context.Context) error {
	err := os.Remove(d.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("removing desktop entry: %w", err)
	}
	d.Logger.Info("autostart disabled", "mechanism", "xdg")
	return nil
}

// IsEnabled reports whether the desktop entry exists.
func (d *DesktopFile) IsEnabled() bool {
	_, err := os.Stat(d.Path)
	return err == nil
}

// Location implements Registrar.
func (d *DesktopFile) Location() string {
	return d.Path
}
