package autostart

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/steveyegge/pawlaunch/internal/util"
)

var plistTemplate = template.Must(template.New("plist").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{xml .Label}}</string>
	<key>ProgramArguments</key>
	<array>
{{- range .Args}}
		<string>{{xml .}}</string>
{{- end}}
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<false/>
{{- if .LogPath}}
	<key>StandardOutPath</key>
	<string>{{xml .LogPath}}</string>
	<key>StandardErrorPath</key>
	<string>{{xml .LogPath}}</string>
{{- end}}
</dict>
</plist>
`))

func xmlEscape(s string) (string, error) {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// LaunchAgent registers a per-user launchd job in ~/Library/LaunchAgents.
type LaunchAgent struct {
	Path   string
	Label  string
	Entry  Entry
	Runner util.Runner
	Logger *slog.Logger
}

// NewLaunchAgent returns the LaunchAgent for opts. Options must be filled.
func NewLaunchAgent(opts Options) *LaunchAgent {
	return &LaunchAgent{
		Path:   filepath.Join(opts.HomeDir, "Library", "LaunchAgents", AppID+".plist"),
		Label:  AppID,
		Entry:  opts.Entry,
		Runner: opts.Runner,
		Logger: opts.Logger,
	}
}

// Render returns the plist document.
func (a *LaunchAgent) Render() ([]byte, error) {
	var b bytes.Buffer
	err := plistTemplate.Execute(&b, struct {
		Label   string
		Args    []string
		LogPath string
	}{a.Label, a.Entry.Command(), a.Entry.LogPath})
	if err != nil {
		return nil, fmt.Errorf("rendering launch agent: %w", err)
	}
	return b.Bytes(), nil
}

// Enable writes the plist and loads it. An identical plist already on
// disk is left alone.
func (a *LaunchAgent) Enable(ctx context.Context) error {
	want, err := a.Render()
	if err != nil {
		return err
	}
	if have, err := os.ReadFile(a.Path); err == nil && bytes.Equal(have, want) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0755); err != nil {
		return fmt.Errorf("creating LaunchAgents directory: %w", err)
	}
	if a.IsEnabled() {
		a.launchctl(ctx, "unload", a.Path)
	}
	if err := util.AtomicWriteFile(a.Path, want, 0644); err != nil {
		return fmt.Errorf("writing launch agent: %w", err)
	}
	a.launchctl(ctx, "load", a.Path)
	a.Logger.Info("autostart enabled", "mechanism", "launchd", "path", a.Path)
	return nil
}

// Disable unloads and removes the plist.
func (a *LaunchAgent) Disable(ctx context.Context) error {
	if !a.IsEnabled() {
		return nil
	}
	a.launchctl(ctx, "unload", a.Path)
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing launch agent: %w", err)
	}
	a.Logger.Info("autostart disabled", "mechanism", "launchd")
	return nil
}

// IsEnabled reports whether the plist exists.
func (a *LaunchAgent) IsEnabled() bool {
	_, err := os.Stat(a.Path)
	return err == nil
}

// Location implements Registrar.
func (a *LaunchAgent) Location() string {
	return a.Path
}

// launchctl failures are logged only. The plist on disk is what launchd
// reads at the next login.
func (a *LaunchAgent) launchctl(ctx context.Context, verb, path string) {
	_, err := a.Runner.Run(ctx, util.Command{
		Name:    "launchctl",
		Args:    []string{verb, path},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		a.Logger.Warn("launchctl failed", "verb", verb, "error", err)
	}
}
