package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/style"
	"github.com/steveyegge/pawlaunch/internal/tui/retention"
	"github.com/steveyegge/pawlaunch/internal/ui"
	"github.com/steveyegge/pawlaunch/internal/uninstall"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall",
	GroupID: GroupInstall,
	Short:   "Remove PocketPaw and the launcher's files",
	Long: `Remove what the launcher installed.

The environment, uv, the provisioned interpreter, logs, records and the
login item are removed. Configuration, memory and the audit log are your
data and are kept unless you ask for them to go.

Examples:
  pawlaunch uninstall                 # show the plan and ask once
  pawlaunch uninstall --yes           # no questions
  pawlaunch uninstall --interactive   # choose each component
  pawlaunch uninstall --yes --remove-memory --keep logs`,
	Args: cobra.NoArgs,
	RunE: runUninstallCmd,
}

var (
	uninstallYes          bool
	uninstallInteractive  bool
	uninstallRemoveConfig bool
	uninstallRemoveMemory bool
	uninstallRemoveAudit  bool
	uninstallKeep         []string
)

func init() {
	f := uninstallCmd.Flags()
	f.BoolVarP(&uninstallYes, "yes", "y", false, "Don't ask for confirmation")
	f.BoolVarP(&uninstallInteractive, "interactive", "i", false, "Choose what to remove, component by component")
	f.BoolVar(&uninstallRemoveConfig, "remove-config", false, "Also remove configuration")
	f.BoolVar(&uninstallRemoveMemory, "remove-memory", false, "Also remove memory and conversation history")
	f.BoolVar(&uninstallRemoveAudit, "remove-audit", false, "Also remove the audit log")
	f.StringSliceVar(&uninstallKeep, "keep", nil, "Keep this component (repeatable; see the plan for names)")
	uninstallCmd.MarkFlagsMutuallyExclusive("yes", "interactive")

	rootCmd.AddCommand(uninstallCmd)
}

// buildPlan applies the retention flags to the default plan.
func buildPlan(plan *uninstall.Plan) error {
	for name, remove := range map[string]bool{
		uninstall.Config: uninstallRemoveConfig,
		uninstall.Memory: uninstallRemoveMemory,
		uninstall.Audit:  uninstallRemoveAudit,
	} {
		if remove {
			if err := plan.Set(name, true); err != nil {
				return err
			}
		}
	}
	for _, name := range uninstallKeep {
		if err := plan.Set(strings.TrimSpace(name), false); err != nil {
			return exitcode.Wrap(exitcode.ErrUsage, "invalid --keep", err)
		}
	}
	return nil
}

func runUninstallCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	l, closeFn, err := openLauncher(cmd, withoutLogFile)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	plan := l.Uninstaller.Plan()
	if err := buildPlan(plan); err != nil {
		return err
	}
	if len(plan.Existing()) == 0 {
		fmt.Fprintln(out, style.Dim.Render("Nothing to uninstall in "+l.Paths.Home))
		return nil
	}

	confirm := uninstall.AcceptPlan
	switch {
	case uninstallInteractive && ui.IsInteractive():
		edited, ok, err := retention.Run(plan, os.Stdin, out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Uninstall cancelled.")
			return nil
		}
		plan = edited
	case uninstallInteractive:
		confirm = &uninstall.Prompter{In: cmd.InOrStdin(), Out: out}
	case !uninstallYes:
		printPlan(out, plan)
		if !ui.IsInteractive() {
			return exitcode.New(exitcode.ErrUsage, "refusing to uninstall without confirmation").
				WithRemediation("Re-run with --yes to accept the plan above, or --interactive to choose components.")
		}
		if !askYesNo(cmd.InOrStdin(), out, "Proceed?") {
			fmt.Fprintln(out, "Uninstall cancelled.")
			return nil
		}
	}

	report, applyErr := l.Uninstaller.Apply(ctx, plan, confirm)
	if report != nil {
		printReport(out, report)
	}
	if applyErr != nil {
		return applyErr
	}
	printOK(cmd, "PocketPaw uninstalled")
	return nil
}

func printPlan(w io.Writer, plan *uninstall.Plan) {
	fmt.Fprintln(w, style.Bold.Render("Uninstall plan:"))
	for _, it := range plan.Existing() {
		mark := style.Error.Render("remove")
		if !it.Remove {
			mark = style.Success.Render("keep  ")
		}
		note := ""
		if it.Component.UserData {
			note = style.Dim.Render(" (your data)")
		}
		fmt.Fprintf(w, "  %s  %-10s %s%s\n", mark, it.Component.Name, it.Component.Description, note)
	}
	fmt.Fprintln(w)
}

func printReport(w io.Writer, r *uninstall.Report) {
	for _, res := range r.Results {
		var icon string
		switch res.Outcome {
		case uninstall.OutcomeRemoved:
			icon = ui.RenderPassIcon()
		case uninstall.OutcomeFailed:
			icon = ui.RenderFailIcon()
		default:
			icon = ui.RenderMuted("-")
		}
		line := fmt.Sprintf("  %s %s: %s", icon, res.Title, res.Outcome)
		if res.Error != "" {
			line += " (" + res.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func askYesNo(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true
	}
	return false
}
