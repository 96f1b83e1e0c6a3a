package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/installer"
	"github.com/steveyegge/pawlaunch/internal/lock"
	"github.com/steveyegge/pawlaunch/internal/style"
)

var startCmd = &cobra.Command{
	Use:     "start",
	GroupID: GroupServer,
	Short:   "Start the server in the background",
	Long: `Start the PocketPaw server and return once it is healthy.

The server keeps running after pawlaunch exits. It is not supervised;
use 'pawlaunch run' for crash restarts and update checks.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:     "stop",
	GroupID: GroupServer,
	Short:   "Stop the server",
	Args:    cobra.NoArgs,
	RunE:    runStop,
}

var restartCmd = &cobra.Command{
	Use:     "restart",
	GroupID: GroupServer,
	Short:   "Stop and start the server",
	Args:    cobra.NoArgs,
	RunE:    runRestart,
}

var (
	startPort   int
	restartPort int
)

func init() {
	startCmd.Flags().IntVar(&startPort, "port", 0, "Dashboard port (overrides config.json and launcher.toml)")
	restartCmd.Flags().IntVar(&restartPort, "port", 0, "Dashboard port (default: the port it was running on)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	rec, err := l.Store.LoadInstall()
	if err != nil {
		return err
	}
	if rec == nil || !rec.Complete {
		return exitcode.Wrap(exitcode.ErrUsage, "PocketPaw is not installed", installer.ErrNotInstalled).
			WithRemediation("Run 'pawlaunch install' first, or 'pawlaunch run' to install and start.")
	}

	h, err := l.Supervisor.Start(ctx, l.Config.ResolvePort(startPort, l.Paths))
	if err != nil {
		return err
	}
	printOK(cmd, "Server running at %s (pid %d)", style.Info.Render(l.Supervisor.URL(h.Port)), h.PID)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	h, err := l.Supervisor.Status(ctx)
	if err != nil {
		return err
	}
	if !h.Running() {
		fmt.Fprintln(cmd.OutOrStdout(), style.Dim.Render("Server is not running."))
		return nil
	}
	if held, _ := lock.InstanceHeld(l.Paths.InstanceLock); held {
		style.PrintWarning("a foreground launcher is supervising this server and may restart it")
	}
	if err := l.Supervisor.Stop(ctx); err != nil {
		return err
	}
	printOK(cmd, "Server stopped (pid %d)", h.PID)
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	before, err := l.Supervisor.Status(ctx)
	if err != nil {
		return err
	}
	port := restartPort
	if port == 0 && before.Running() {
		port = before.Port
	}
	if port == 0 {
		port = l.Config.ResolvePort(0, l.Paths)
	}

	h, err := l.Supervisor.Restart(ctx, port)
	if err != nil {
		return err
	}
	printOK(cmd, "Server restarted at %s (pid %d)", style.Info.Render(l.Supervisor.URL(h.Port)), h.PID)
	return nil
}
