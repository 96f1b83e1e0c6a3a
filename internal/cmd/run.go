package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/launcher"
	"github.com/steveyegge/pawlaunch/internal/style"
	"github.com/steveyegge/pawlaunch/internal/supervisor"
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: GroupServer,
	Short:   "Install if needed, start the server and supervise it (default)",
	Long: `Run the launcher in the foreground.

On first run PocketPaw is installed into the launcher's environment. The
server is then started on the first free port at or above the configured
one, the dashboard is opened in the browser, and the launcher keeps the
server healthy and checks for updates until interrupted with Ctrl+C.

Examples:
  pawlaunch                         # same as 'pawlaunch run'
  pawlaunch run --no-browser --port 9000
  pawlaunch run --reset             # delete the environment and reinstall
  pawlaunch run --dev --branch next # run a development branch
  pawlaunch run --autostart         # also start at login`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runNoBrowser   bool
	runNoTray      bool
	runPort        int
	runExtras      string
	runResetFlag   bool
	runSources     launcher.SourceFlags
	runAutostart   bool
	runNoAutostart bool
	runUninstall   bool
	runMetricsAddr string
)

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runNoBrowser, "no-browser", false, "Don't open the dashboard in the browser")
	f.BoolVar(&runNoTray, "no-tray", false, "Accepted for compatibility; the launcher always runs headless")
	f.IntVar(&runPort, "port", 0, "Dashboard port (overrides config.json and launcher.toml)")
	f.StringVar(&runExtras, "extras", "", "Comma-separated package extras for the install (default from launcher.toml)")
	f.BoolVar(&runResetFlag, "reset", false, "Delete the environment and reinstall")
	addSourceFlags(runCmd, &runSources)
	f.BoolVar(&runAutostart, "autostart", false, "Start the launcher at login")
	f.BoolVar(&runNoAutostart, "no-autostart", false, "Stop starting the launcher at login")
	f.BoolVar(&runUninstall, "uninstall", false, "Uninstall instead of running (same as 'pawlaunch uninstall')")
	f.StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	runCmd.MarkFlagsMutuallyExclusive("autostart", "no-autostart")
	_ = f.MarkHidden("no-tray")

	rootCmd.AddCommand(runCmd)
}

func addSourceFlags(cmd *cobra.Command, s *launcher.SourceFlags) {
	f := cmd.Flags()
	f.BoolVar(&s.Dev, "dev", false, "Install from the development branch")
	f.StringVar(&s.Branch, "branch", "", "Install from this repository branch (implies --dev)")
	f.StringVar(&s.Local, "local", "", "Install this local checkout in editable mode (implies --dev)")
	cmd.MarkFlagsMutuallyExclusive("branch", "local")
}

func splitExtras(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func runRun(cmd *cobra.Command, args []string) error {
	if runUninstall {
		return runUninstallCmd(cmd, nil)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	var autostart *bool
	switch {
	case runAutostart:
		v := true
		autostart = &v
	case runNoAutostart:
		v := false
		autostart = &v
	}

	out := cmd.OutOrStdout()
	err = l.Run(ctx, launcher.RunOptions{
		Install: launcher.InstallOptions{
			Sources: runSources,
			Extras:  splitExtras(runExtras),
			Reset:   runResetFlag,
		},
		Port:        runPort,
		NoBrowser:   runNoBrowser,
		Autostart:   autostart,
		MetricsAddr: runMetricsAddr,
		OnStatus:    progress(cmd),
		OnReady: func(h supervisor.Handle, url string) {
			fmt.Fprintf(out, "\n  %s running at %s\n", style.Bold.Render("PocketPaw"), style.Info.Render(url))
			fmt.Fprintf(out, "  Press Ctrl+C to stop.\n\n")
		},
	})
	if err != nil && exitcode.Is(err, exitcode.ErrStartupTimeout) {
		style.PrintWarning("the server is still starting in the background")
	}
	return err
}
