package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/launcher"
	"github.com/steveyegge/pawlaunch/internal/style"
)

var autostartCmd = &cobra.Command{
	Use:     "autostart",
	GroupID: GroupConfig,
	Short:   "Manage starting the launcher at login",
	Long: `Manage the login item that starts 'pawlaunch run' when you log in.

The entry is a LaunchAgent on macOS, an XDG autostart file on Linux and a
Run registry value on Windows.`,
	RunE: requireSubcommand,
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Start the launcher at login",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return setAutostart(cmd, true) },
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop starting the launcher at login",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return setAutostart(cmd, false) },
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the launcher starts at login",
	Args:  cobra.NoArgs,
	RunE:  runAutostartStatus,
}

func init() {
	autostartCmd.AddCommand(autostartEnableCmd)
	autostartCmd.AddCommand(autostartDisableCmd)
	autostartCmd.AddCommand(autostartStatusCmd)
	rootCmd.AddCommand(autostartCmd)
}

func setAutostart(cmd *cobra.Command, enable bool) error {
	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := l.SetAutostart(cmd.Context(), enable); err != nil {
		if errors.Is(err, launcher.ErrNoAutostart) {
			return exitcode.Wrap(exitcode.ErrUsage, "autostart is not supported here", err)
		}
		return err
	}
	if enable {
		printOK(cmd, "Autostart enabled (%s)", l.Autostart.Location())
	} else {
		printOK(cmd, "Autostart disabled")
	}
	return nil
}

func runAutostartStatus(cmd *cobra.Command, args []string) error {
	l, closeFn, err := openLauncher(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	switch {
	case l.Autostart == nil:
		fmt.Fprintln(out, style.Dim.Render("Autostart is not available on this system."))
	case l.Autostart.IsEnabled():
		fmt.Fprintf(out, "%s enabled %s\n", style.SuccessPrefix, style.Dim.Render(l.Autostart.Location()))
	default:
		fmt.Fprintf(out, "disabled %s\n", style.Dim.Render(l.Autostart.Location()))
	}
	return nil
}
