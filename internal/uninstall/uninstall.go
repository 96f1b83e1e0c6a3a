package uninstall

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/lock"
	"github.com/steveyegge/pawlaunch/internal/metrics"
)

// LockWait is how long Apply waits for a running install to finish.
const LockWait = 15 * time.Second

// Confirmer decides each component individually. proposed is the plan's
// choice.
type Confirmer interface {
	Confirm(ctx context.Context, c Component, proposed bool) (bool, error)
}

// AcceptPlan confirms whatever the plan proposes.
var AcceptPlan Confirmer = acceptPlan{}

type acceptPlan struct{}

func (acceptPlan) Confirm(_ context.Context, _ Component, proposed bool) (bool, error) {
	return proposed, nil
}

// Prompter asks a y/N question per component on a line-oriented terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

// Confirm implements Confirmer. An empty answer or end of input takes the
// proposed choice.
func (p *Prompter) Confirm(ctx context.Context, c Component, proposed bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	suffix := "[y/N]"
	if proposed {
		suffix = "[Y/n]"
	}
	note := ""
	if c.UserData {
		note = " (your data)"
	}
	fmt.Fprintf(p.Out, "  Remove %s%s? %s ", c.Description, note, suffix)
	if !p.scanner.Scan() {
		fmt.Fprintln(p.Out)
		return proposed, p.scanner.Err()
	}
	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "":
		return proposed, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Autostart is the part of the autostart registrar Apply needs.
type Autostart interface {
	Disable(ctx context.Context) error
	IsEnabled() bool
}

// Stopper stops the server before its files are removed.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Outcome is what happened to one component.
type Outcome string

const (
	OutcomeRemoved Outcome = "removed"
	OutcomeKept    Outcome = "kept"
	OutcomeMissing Outcome = "not found"
	OutcomeFailed  Outcome = "failed"
)

// Result is one line of the report.
type Result struct {
	Component string  `json:"component"`
	Title     string  `json:"title"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`

	err error
}

// Report lists the outcome of every component.
type Report struct {
	Results []Result `json:"results"`
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

// Failed returns the components that could not be removed.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Err joins a ComponentRemovalFailed error per failed component, or
// returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, exitcode.ComponentRemovalFailed(res.Component, res.err))
	}
	return errors.Join(errs...)
}

// Uninstaller applies retention plans.
type Uninstaller struct {
	Paths     config.Paths
	Autostart Autostart
	Server    Stopper
	Recorder  metrics.Recorder
	Logger    *slog.Logger

	removeAll func(string) error
}

// New creates an uninstaller. autostart and server may be nil.
func New(paths config.Paths, autostart Autostart, server Stopper, rec metrics.Recorder, logger *slog.Logger) *Uninstaller {
	return &Uninstaller{
		Paths:     paths,
		Autostart: autostart,
		Server:    server,
		Recorder:  metrics.OrNoop(rec),
		Logger:    logger,
		removeAll: os.RemoveAll,
	}
}

// Plan returns the default retention plan for the current disk state.
func (u *Uninstaller) Plan() *Plan {
	return DefaultPlan(u.Paths)
}

// Apply disables autostart, stops the server, then removes every
// component the confirmer agrees to. A component that cannot be removed
// is reported and the rest still run; the returned error is the report's
// Err.
func (u *Uninstaller) Apply(ctx context.Context, plan *Plan, confirm Confirmer) (*Report, error) {
	if confirm == nil {
		confirm = AcceptPlan
	}
	report := &Report{}

	if u.Autostart != nil && u.Autostart.IsEnabled() {
		err := u.Autostart.Disable(ctx)
		u.record(report, LoginItem, "Autostart Entry", err)
	}

	if u.Server != nil {
		if err := u.Server.Stop(ctx); err != nil {
			// Removal is still attempted.
			u.Logger.Warn("could not stop server before uninstall", "error", err)
		}
	}

	lockCtx, cancel := context.WithTimeout(ctx, LockWait)
	l, err := lock.WaitOperation(lockCtx, u.Paths.OpLock, "uninstall")
	cancel()
	if err != nil {
		return nil, err
	}
	locked := true
	release := func() {
		if locked {
			_ = l.Release()
			locked = false
		}
	}
	defer release()

	for _, it := range plan.Items {
		c := it.Component
		if c.Name == Locks {
			release()
		}
		if !c.Exists() {
			if it.Remove {
				report.add(Result{Component: c.Name, Title: c.Title(), Outcome: OutcomeMissing})
			}
			continue
		}

		remove, err := confirm.Confirm(ctx, c, it.Remove)
		if err != nil {
			return report, err
		}
		if !remove {
			report.add(Result{Component: c.Name, Title: c.Title(), Outcome: OutcomeKept})
			continue
		}
		u.record(report, c.Name, c.Title(), u.removePaths(c.Paths))
	}

	release()
	u.removeHomeIfEmpty()
	return report, report.Err()
}

func (u *Uninstaller) removePaths(paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := u.removeAll(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *Uninstaller) record(report *Report, name, title string, err error) {
	u.Recorder.ComponentRemoved(name, err)
	if err != nil {
		u.Logger.Error("component removal failed", "component", name, "error", err)
		report.add(Result{Component: name, Title: title, Outcome: OutcomeFailed, Error: err.Error(), err: err})
		return
	}
	u.Logger.Info("component removed", "component", name)
	report.add(Result{Component: name, Title: title, Outcome: OutcomeRemoved})
}

// removeHomeIfEmpty drops the home directory once nothing is left in it.
func (u *Uninstaller) removeHomeIfEmpty() {
	entries, err := os.ReadDir(u.Paths.Home)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(u.Paths.Home); err == nil {
		u.Logger.Info("removed empty home", "path", u.Paths.Home)
	}
}
