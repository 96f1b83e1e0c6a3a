package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/launcher"
	"github.com/steveyegge/pawlaunch/internal/logging"
	"github.com/steveyegge/pawlaunch/internal/style"
)

// closeTimeout bounds flushing telemetry on exit.
const closeTimeout = 5 * time.Second

// newLauncher is swapped out by tests.
var newLauncher = launcher.New

type openOption func(*launcher.Options)

// withoutLogFile keeps the launcher log closed.
func withoutLogFile(o *launcher.Options) { o.NoLogFile = true }

// openLauncher builds the launcher from the global flags. The caller must
// call the returned close function.
func openLauncher(cmd *cobra.Command, opts ...openOption) (*launcher.Launcher, func(), error) {
	level, err := logging.ParseLevel(logLevelFlag)
	if err != nil {
		return nil, nil, exitcode.Wrap(exitcode.ErrUsage, "invalid --log-level", err)
	}
	o := launcher.Options{
		Home:     homeFlag,
		Verbose:  verboseFlag,
		LogLevel: level,
		Stderr:   cmd.ErrOrStderr(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	l, err := newLauncher(cmd.Context(), o)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := l.Close(ctx); err != nil {
			l.Logger().Debug("closing launcher", "error", err)
		}
	}
	return l, closeFn, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// progress prints installer status lines.
func progress(cmd *cobra.Command) func(string) {
	return func(msg string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", style.ArrowPrefix, msg)
	}
}

func printOK(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", style.SuccessPrefix, fmt.Sprintf(format, args...))
}
