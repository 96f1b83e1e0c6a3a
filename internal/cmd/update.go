package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/style"
)

var updateCmd = &cobra.Command{
	Use:     "update",
	GroupID: GroupInstall,
	Short:   "Check for and apply a PocketPaw update",
	Long: `Check the package index for a newer release and upgrade to it.

Release installs upgrade in place when a newer version exists. Dev installs
are always re-pulled from their branch or checkout. A running server is
restarted after the upgrade.

Examples:
  pawlaunch update
  pawlaunch update --check   # only report, change nothing`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

var updateCheckOnly bool

func init() {
	updateCmd.Flags().BoolVar(&updateCheckOnly, "check", false, "Only check; don't upgrade")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	info, err := l.Reconciler.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", style.ArrowPrefix, info.Summary())
	if updateCheckOnly || !info.Available {
		return nil
	}

	l.Installer.OnStatus = progress(cmd)
	res, err := l.Reconciler.Apply(ctx)
	if err != nil {
		return err
	}
	switch {
	case info.Dev:
		printOK(cmd, "Re-pulled %s (now %s)", info.Source, res.To)
	default:
		printOK(cmd, "Upgraded %s -> %s", res.From, res.To)
	}
	if res.Restarted {
		printOK(cmd, "Server restarted at %s", style.Info.Render(l.Supervisor.URL(res.Server.Port)))
	}
	return nil
}
