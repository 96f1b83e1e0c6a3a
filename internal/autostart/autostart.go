// Package autostart registers the launcher to start at login. Each platform
// uses its native mechanism: a launchd LaunchAgent on macOS, the HKCU Run
// key on Windows, and an XDG autostart desktop file elsewhere.
package autostart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/steveyegge/pawlaunch/internal/util"
)

const (
	// AppID names the LaunchAgent label.
	AppID = "com.pocketpaw.launcher"
	// AppName names the registry value and desktop entry.
	AppName = "PocketPaw"
)

// Registrar manages the login item. Enable is idempotent and Disable is
// a no-op when nothing is registered.
type Registrar interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	IsEnabled() bool
	// Location describes where the entry lives, for status output.
	Location() string
}

// Entry is the command started at login.
type Entry struct {
	Executable string
	Args       []string
	// LogPath receives launchd's stdout and stderr. Unused elsewhere.
	LogPath string
}

// Command returns the entry's argv.
func (e Entry) Command() []string {
	return append([]string{e.Executable}, e.Args...)
}

// Options configures New.
type Options struct {
	Entry Entry
	// HomeDir is the user's home. Empty means os.UserHomeDir.
	HomeDir string
	// ConfigDir is the XDG config dir. Empty means $XDG_CONFIG_HOME or
	// HomeDir/.config.
	ConfigDir string
	Runner    util.Runner
	Logger    *slog.Logger
}

func (o *Options) fill() error {
	if o.Entry.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locating launcher executable: %w", err)
		}
		o.Entry.Executable = exe
	}
	if o.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("locating home directory: %w", err)
		}
		o.HomeDir = home
	}
	if o.Runner == nil {
		o.Runner = util.ExecRunner{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

// New returns the registrar for the running platform.
func New(opts Options) (Registrar, error) {
	if err := opts.fill(); err != nil {
		return nil, err
	}
	return newPlatform(opts), nil
}

// quoteArg quotes s for a Windows command line or a desktop Exec key. Both
// use double quotes with backslash escapes.
func quoteArg(s string, reserved string) string {
	if s != "" && !strings.ContainsAny(s, " \t\""+reserved) {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func joinArgs(argv []string, reserved string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = quoteArg(a, reserved)
	}
	return strings.Join(parts, " ")
}
