package cmd

import (
	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/launcher"
	"github.com/steveyegge/pawlaunch/internal/state"
)

var installCmd = &cobra.Command{
	Use:     "install",
	GroupID: GroupInstall,
	Short:   "Install PocketPaw without starting it",
	Long: `Install PocketPaw into the launcher's environment.

A usable install is left alone unless the source flags name a different
source. An incomplete install is resumed from its recorded source.

Examples:
  pawlaunch install
  pawlaunch install --extras dashboard,voice
  pawlaunch install --local ~/src/pocketpaw`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: GroupInstall,
	Short:   "Delete the environment and reinstall",
	Long: `Delete the virtual environment and install again.

Without source flags the reset reinstalls the latest release, which is
the way back from a dev install. User data is not touched.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var (
	installSources launcher.SourceFlags
	installExtras  string
	resetSources   launcher.SourceFlags
	resetExtras    string
)

func init() {
	addSourceFlags(installCmd, &installSources)
	installCmd.Flags().StringVar(&installExtras, "extras", "", "Comma-separated package extras (default from launcher.toml)")

	addSourceFlags(resetCmd, &resetSources)
	resetCmd.Flags().StringVar(&resetExtras, "extras", "", "Comma-separated package extras (default from launcher.toml)")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(resetCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	return doInstall(cmd, launcher.InstallOptions{
		Sources: installSources,
		Extras:  splitExtras(installExtras),
	})
}

func runReset(cmd *cobra.Command, args []string) error {
	return doInstall(cmd, launcher.InstallOptions{
		Sources: resetSources,
		Extras:  splitExtras(resetExtras),
		Reset:   true,
	})
}

func doInstall(cmd *cobra.Command, o launcher.InstallOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	l.Installer.OnStatus = progress(cmd)
	rec, err := l.EnsureInstalled(ctx, o)
	if err != nil {
		return err
	}
	printOK(cmd, "PocketPaw %s installed (%s)", rec.Version, describeSource(rec))
	return nil
}

func describeSource(rec *state.InstallationRecord) string {
	return rec.Source().String()
}
