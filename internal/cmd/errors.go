package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/style"
	"github.com/steveyegge/pawlaunch/internal/ui"
)

// printError writes err and, for coded errors, its remediation. On a
// terminal the remediation is rendered as markdown.
func printError(w io.Writer, err error) {
	msg := err.Error()
	hint := exitcode.RemediationOf(err)
	if hint != "" {
		msg = strings.TrimSuffix(msg, "\n\n"+hint)
	}
	fmt.Fprintf(w, "%s %s\n", style.ErrorPrefix, style.Bold.Render("Error: ")+msg)
	if hint == "" {
		return
	}
	fmt.Fprintln(w, renderHint(hint, ui.IsTerminal() && ui.ShouldUseColor()))
}

func renderHint(hint string, rich bool) string {
	plain := "\n  " + hint
	if !rich {
		return plain
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return plain
	}
	out, err := r.Render("**What to do:** " + hint)
	if err != nil {
		return plain
	}
	return strings.TrimRight(out, "\n")
}
