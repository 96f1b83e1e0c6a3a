// Package cmd provides CLI commands for the pawlaunch tool.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "pawlaunch",
	Short:   "PocketPaw launcher - install, run and update PocketPaw",
	Version: version.Version,
	Long: `pawlaunch installs PocketPaw into a private Python environment, runs
its web dashboard in the background, keeps it up to date, and removes it
again on request.

Running pawlaunch with no command is the same as 'pawlaunch run': install
if needed, start the server, open the dashboard, and supervise until
interrupted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Global flags.
var (
	homeFlag     string
	verboseFlag  bool
	logLevelFlag string
)

// Command group IDs - used by subcommands to organize help output
const (
	GroupServer  = "server"
	GroupInstall = "install"
	GroupConfig  = "config"
	GroupDiag    = "diag"
)

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupServer, Title: "Server:"},
		&cobra.Group{ID: GroupInstall, Title: "Installation:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupConfig)
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&homeFlag, "home", "", "Launcher home directory (default $PAWLAUNCH_HOME or ~/.pocketclaw)")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "Also log to stderr")
	pf.StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn, error")
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	return execute(os.Args[1:])
}

func execute(args []string) int {
	rootCmd.SetArgs(withDefaultCommand(args))
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		return exitcode.Code(err)
	}
	return exitcode.Success
}

// withDefaultCommand prepends "run" when args name no subcommand, so
// "pawlaunch --no-browser" behaves like "pawlaunch run --no-browser".
func withDefaultCommand(args []string) []string {
	for _, a := range args {
		switch a {
		case "-h", "--help", "--version":
			return args
		}
	}
	c, _, err := rootCmd.Find(args)
	if err != nil || c != rootCmd {
		return args
	}
	return append([]string{"run"}, args...)
}

// buildCommandPath walks the command hierarchy to build the full command path.
// For example: "pawlaunch autostart enable".
func buildCommandPath(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		parts = append([]string{c.Name()}, parts...)
	}
	return strings.Join(parts, " ")
}

// requireSubcommand returns a RunE function for parent commands that require
// a subcommand. Without this, Cobra silently shows help and exits 0 for
// unknown subcommands like "pawlaunch autostart foobar", masking errors.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return exitcode.Newf(exitcode.ErrUsage, "requires a subcommand\n\nRun '%s --help' for usage", buildCommandPath(cmd))
	}
	return exitcode.New(exitcode.ErrUsage, fmt.Sprintf("unknown command %q for %q\n\nRun '%s --help' for available commands",
		args[0], buildCommandPath(cmd), buildCommandPath(cmd)))
}
