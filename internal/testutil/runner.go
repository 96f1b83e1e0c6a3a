package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/steveyegge/pawlaunch/internal/util"
)

// FakeRunner records commands and answers them with Handler.
type FakeRunner struct {
	Handler func(cmd util.Command) (util.Result, error)

	mu    sync.Mutex
	calls []util.Command
}

// Run records cmd and delegates to Handler. With no Handler every command
// succeeds with empty output.
func (f *FakeRunner) Run(ctx context.Context, cmd util.Command) (util.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	h := f.Handler
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return util.Result{}, err
	}
	if h == nil {
		return util.Result{}, nil
	}
	return h(cmd)
}

// Calls returns the recorded commands.
func (f *FakeRunner) Calls() []util.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]util.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// Lines returns each recorded command rendered as a string.
func (f *FakeRunner) Lines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Count returns how many recorded commands contain substr.
func (f *FakeRunner) Count(substr string) int {
	n := 0
	for _, l := range f.Lines() {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

// Fail returns an exit error as a command would.
func Fail(cmd util.Command, code int, stderr string) (util.Result, error) {
	return util.Result{Stderr: stderr, ExitCode: code},
		&util.ExitError{Command: cmd.Name, ExitCode: code, Stderr: stderr}
}
