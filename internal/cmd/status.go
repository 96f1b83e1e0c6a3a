package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/launcher"
	"github.com/steveyegge/pawlaunch/internal/style"
	"github.com/steveyegge/pawlaunch/internal/supervisor"
	"github.com/steveyegge/pawlaunch/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupDiag,
	Short:   "Show installation and server status",
	Long: `Show what is installed, whether the server is running, and whether
the launcher starts at login.

Examples:
  pawlaunch status
  pawlaunch status --check   # also ask the package index for updates
  pawlaunch status --json
  pawlaunch status --watch   # redraw when the records change`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusJSON  bool
	statusCheck bool
	statusWatch bool
)

// statusDebounce coalesces bursts of record writes into one redraw.
const statusDebounce = 300 * time.Millisecond

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusCheck, "check", false, "Check for updates")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Redraw whenever the install or pid record changes")
	statusCmd.MarkFlagsMutuallyExclusive("json", "watch")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	opts := launcher.StatusOptions{CheckUpdates: statusCheck}
	out := cmd.OutOrStdout()
	if statusJSON {
		return writeStatusJSON(out, l.Status(ctx, opts))
	}
	if statusWatch {
		return watchStatus(ctx, out, l, opts)
	}
	fmt.Fprint(out, renderStatus(l.Status(ctx, opts)))
	return nil
}

func writeStatusJSON(w io.Writer, st *launcher.Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func renderStatus(st *launcher.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", style.Bold.Render("PocketPaw launcher"), style.Dim.Render(st.Home))

	t := style.NewTable(
		style.Column{Name: "", Width: 6},
		style.Column{Name: "COMPONENT", Width: 12},
		style.Column{Name: "DETAIL", Width: 60},
	)

	switch {
	case st.Installed:
		detail := fmt.Sprintf("%s (%s)", st.Install.Version, st.Install.Source())
		if st.DevMarker != "" {
			detail += " [dev]"
		}
		t.AddRow(ui.RenderPassIcon(), "install", detail)
	case st.Install != nil:
		t.AddRow(ui.RenderWarnIcon(), "install", "incomplete; 'pawlaunch install' resumes it")
	default:
		t.AddRow(ui.RenderFailIcon(), "install", "not installed")
	}

	t.AddRow(serverIcon(st.Server), "server", serverDetail(st))

	if st.AutostartLocation == "" {
		t.AddRow(ui.RenderMuted("-"), "autostart", "not available on this system")
	} else if st.Autostart {
		t.AddRow(ui.RenderPassIcon(), "autostart", "enabled at "+st.AutostartLocation)
	} else {
		t.AddRow(ui.RenderMuted("-"), "autostart", "disabled")
	}

	if st.Update != nil {
		icon := ui.RenderPassIcon()
		if st.Update.Available || st.Update.Error != "" {
			icon = ui.RenderWarnIcon()
		}
		t.AddRow(icon, "updates", st.Update.Summary())
	}

	b.WriteString(t.Render())
	for _, p := range st.Problems {
		fmt.Fprintf(&b, "\n%s %s", style.WarningPrefix, p)
	}
	if len(st.Problems) > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func serverIcon(h supervisor.Handle) string {
	switch h.State {
	case supervisor.StateHealthy:
		return ui.RenderPassIcon()
	case supervisor.StateStarting, supervisor.StateUnhealthy:
		return ui.RenderWarnIcon()
	}
	return ui.RenderMuted("-")
}

func serverDetail(st *launcher.Status) string {
	h := st.Server
	if !h.Running() {
		return "stopped"
	}
	detail := fmt.Sprintf("%s at %s (pid %d)", h.State, st.URL, h.PID)
	if !h.StartedAt.IsZero() {
		detail += ", up " + time.Since(h.StartedAt).Round(time.Second).String()
	}
	return detail
}

// watchStatus redraws the status whenever a file in the home changes,
// until ctx is done.
func watchStatus(ctx context.Context, out io.Writer, l *launcher.Launcher, opts launcher.StatusOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(l.Paths.Home); err != nil {
		return fmt.Errorf("watching %s: %w", l.Paths.Home, err)
	}

	redraw := make(chan struct{}, 1)
	draw := func() {
		if ui.IsTerminal() {
			fmt.Fprint(out, "\033[H\033[2J")
		}
		fmt.Fprint(out, renderStatus(l.Status(ctx, opts)))
		fmt.Fprintln(out, style.Dim.Render("\nWatching for changes. Press Ctrl+C to stop."))
	}
	draw()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(statusDebounce, func() {
				select {
				case redraw <- struct{}{}:
				default:
				}
			})
		case <-redraw:
			draw()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.Logger().Warn("status watcher", "error", err)
		}
	}
}
