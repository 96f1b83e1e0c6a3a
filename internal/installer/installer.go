// Package installer creates the application's virtual environment and
// installs the application into it from a release, a branch, or a local
// checkout. Every mutating operation holds the cross-process operation lock.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/interp"
	"github.com/steveyegge/pawlaunch/internal/lock"
	"github.com/steveyegge/pawlaunch/internal/metrics"
	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/util"
)

// InstallTimeout bounds a single package install command.
const InstallTimeout = 10 * time.Minute

// ErrNotInstalled is returned by operations that need an existing
// environment.
var ErrNotInstalled = errors.New("application is not installed")

// RuntimeResolver yields the interpreter used to build the environment.
type RuntimeResolver interface {
	Resolve(ctx context.Context) (*interp.Runtime, error)
}

// Request describes one install.
type Request struct {
	Source state.Source
	// Extras overrides the configured extras when non-nil.
	Extras []string
	// Force reinstalls even when the requested version is present.
	Force bool
}

// Installer owns the environment under Paths.Env.
type Installer struct {
	Paths     config.Paths
	App       config.AppConfig
	Overrides []string
	Store     state.Repository
	Resolver  RuntimeResolver
	UV        interp.UVSource
	Runner    util.Runner
	LookPath  func(string) (string, error)
	Logger    *slog.Logger
	Recorder  metrics.Recorder
	Now       func() time.Time

	// OnStatus, if set, receives short human-readable progress lines.
	OnStatus func(msg string)
}

// New returns an installer for cfg rooted at paths.
func New(paths config.Paths, cfg *config.Config, store state.Repository, resolver RuntimeResolver, uv interp.UVSource, runner util.Runner, logger *slog.Logger) *Installer {
	return &Installer{
		Paths:     paths,
		App:       cfg.App,
		Overrides: cfg.Runtime.UVOverrides,
		Store:     store,
		Resolver:  resolver,
		UV:        uv,
		Runner:    runner,
		LookPath:  exec.LookPath,
		Logger:    logger,
		Recorder:  metrics.Noop(),
		Now:       time.Now,
	}
}

// Install installs req.Source into the environment, creating it first if
// needed, and records the result.
func (in *Installer) Install(ctx context.Context, req Request) (*state.InstallationRecord, error) {
	if err := in.precheck(req.Source); err != nil {
		return nil, err
	}
	l, err := lock.AcquireOperation(in.Paths.OpLock, "install")
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	return in.timed("install", req.Source, func() (*state.InstallationRecord, error) {
		return in.install(ctx, req, actionInstall)
	})
}

// Reset deletes the environment and installs req.Source from scratch. The
// record is switched to req.Source before the install runs, so a failed
// reset resumes with the requested source.
func (in *Installer) Reset(ctx context.Context, req Request) (*state.InstallationRecord, error) {
	if err := in.precheck(req.Source); err != nil {
		return nil, err
	}
	l, err := lock.AcquireOperation(in.Paths.OpLock, "reset")
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	return in.timed("reset", req.Source, func() (*state.InstallationRecord, error) {
		in.status("Resetting environment...")
		in.Logger.Info("removing environment for reset", "env", in.Paths.Env, "source", req.Source.String())
		if err := os.RemoveAll(in.Paths.Env); err != nil {
			return nil, fmt.Errorf("removing environment: %w", err)
		}
		if err := in.markRequested(req.Source); err != nil {
			return nil, err
		}

		req.Force = true
		return in.install(ctx, req, actionInstall)
	})
}

// Upgrade moves the installation forward. Release installs are upgraded to
// the latest index version; dev installs are force-reinstalled from the
// same branch or checkout.
func (in *Installer) Upgrade(ctx context.Context) (*state.InstallationRecord, error) {
	rec, err := in.current()
	if err != nil {
		return nil, err
	}
	src := rec.Source()
	if src.Mode.IsDev() {
		return in.reinstall(ctx, rec, "upgrade")
	}

	l, err := lock.AcquireOperation(in.Paths.OpLock, "upgrade")
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	in.status("Updating " + in.App.Package + "...")
	return in.timed("upgrade", src, func() (*state.InstallationRecord, error) {
		return in.install(ctx, Request{Source: src, Extras: rec.Extras}, actionUpgrade)
	})
}

// Reinstall force-reinstalls from the recorded source.
func (in *Installer) Reinstall(ctx context.Context) (*state.InstallationRecord, error) {
	rec, err := in.current()
	if err != nil {
		return nil, err
	}
	return in.reinstall(ctx, rec, "reinstall")
}

func (in *Installer) reinstall(ctx context.Context, rec *state.InstallationRecord, op string) (*state.InstallationRecord, error) {
	src := rec.Source()
	if err := in.precheck(src); err != nil {
		return nil, err
	}
	l, err := lock.AcquireOperation(in.Paths.OpLock, op)
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	if src.Mode == state.ModeBranch {
		in.status(fmt.Sprintf("Pulling latest from branch '%s'...", src.Branch))
	}
	return in.timed(op, src, func() (*state.InstallationRecord, error) {
		return in.install(ctx, Request{Source: src, Extras: rec.Extras, Force: true}, actionInstall)
	})
}

// timed runs fn and reports it as one operation.
func (in *Installer) timed(op string, src state.Source, fn func() (*state.InstallationRecord, error)) (*state.InstallationRecord, error) {
	start := in.Now()
	rec, err := fn()
	metrics.OrNoop(in.Recorder).Operation(op, string(src.Mode), in.Now().Sub(start), err)
	return rec, err
}

// InstalledVersion asks the environment which version of the package it
// holds. It returns "" with no error when the package is absent.
func (in *Installer) InstalledVersion(ctx context.Context) (string, error) {
	if !in.envExists() {
		return "", nil
	}
	uv, _ := in.locateUV(ctx, false)
	return in.tools(uv).show(ctx, in.App.Package)
}

// current returns the record of a usable installation.
func (in *Installer) current() (*state.InstallationRecord, error) {
	rec, err := in.Store.LoadInstall()
	if err != nil {
		return nil, err
	}
	if rec == nil || !in.envExists() {
		return nil, ErrNotInstalled
	}
	return rec, nil
}

// precheck validates what can be checked before taking the lock.
func (in *Installer) precheck(src state.Source) error {
	if err := src.Validate(); err != nil {
		return exitcode.Wrap(exitcode.ErrUsage, "invalid install source", err)
	}
	switch src.Mode {
	case state.ModeBranch:
		if _, err := in.LookPath("git"); err != nil {
			return exitcode.DependencyMissing("git", "for branch installs")
		}
	case state.ModeLocal:
		info, err := os.Stat(src.LocalPath)
		if err != nil || !info.IsDir() {
			return exitcode.Newf(exitcode.ErrUsage, "local path %s is not a directory", src.LocalPath)
		}
	}
	return nil
}

type action int

const (
	actionInstall action = iota
	actionUpgrade
)

// install runs the install with the operation lock already held.
func (in *Installer) install(ctx context.Context, req Request, act action) (*state.InstallationRecord, error) {
	src := req.Source
	extras := req.Extras
	if extras == nil {
		extras = in.App.Extras
	}
	log := in.Logger.With("source", src.String())

	in.status("Checking Python...")
	rt, err := in.Resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("using interpreter", "path", rt.Path, "version", rt.Version, "origin", rt.Origin)

	uv, err := in.locateUV(ctx, true)
	if err != nil {
		log.Warn("uv unavailable, falling back to pip", "error", err)
	}
	t := in.tools(uv)

	if !in.envExists() {
		in.status("Creating virtual environment...")
		if err := t.createEnv(ctx, rt.Path); err != nil {
			return nil, in.fail(src, err, "Could not create the virtual environment", "")
		}
	}
	if err := in.writeOverrides(); err != nil {
		return nil, err
	}

	in.status(fmt.Sprintf("Installing %s (%s)...", in.App.Package, src))
	stderr, err := t.install(ctx, PackageSpec(in.App, src, extras), req.Force, act == actionUpgrade)
	if err != nil {
		log.Error("install failed", "stderr", util.Tail(stderr, 40), "error", err)
		return nil, in.fail(src, err, ActionableMessage(stderr, ""), stderr)
	}

	ver, err := t.show(ctx, in.App.Package)
	if err != nil || ver == "" {
		if err == nil {
			err = fmt.Errorf("%s not found in environment after install", in.App.Package)
		}
		return nil, in.fail(src, err, "Install finished but the package is not importable", "")
	}

	if err := in.syncMarker(src); err != nil {
		return nil, err
	}

	now := in.Now()
	rec, err := in.Store.UpdateInstall(func(rec *state.InstallationRecord) error {
		if rec.InstallID == "" {
			fresh := state.NewInstallationRecord(now)
			rec.InstallID = fresh.InstallID
			rec.InstalledAt = now
		}
		rec.Interpreter = rt.Path
		rec.EnvPath = in.Paths.Env
		rec.Version = ver
		rec.Extras = extras
		rec.Installer = t.name()
		rec.SetSource(src)
		rec.Complete = true
		rec.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("install complete", "version", ver, "installer", rec.Installer)
	in.status(fmt.Sprintf("Installed %s %s", in.App.Package, ver))
	return rec, nil
}

// fail marks an existing record incomplete with the requested source and
// returns an InstallFailed error. A first install that fails leaves no
// record behind.
func (in *Installer) fail(src state.Source, cause error, message, stderr string) error {
	if message == "" {
		message = ActionableMessage(stderr, "")
	}
	if err := in.markRequested(src); err != nil {
		in.Logger.Warn("could not mark installation incomplete", "error", err)
	}
	return exitcode.InstallFailed(message, in.Paths.LauncherLog, cause)
}

// markRequested switches an existing record to src, flags it incomplete
// and brings the dev-mode marker in line. Without a record it does nothing.
func (in *Installer) markRequested(src state.Source) error {
	existing, err := in.Store.LoadInstall()
	if err != nil || existing == nil {
		return err
	}
	if _, err := in.Store.UpdateInstall(func(rec *state.InstallationRecord) error {
		rec.SetSource(src)
		rec.Complete = false
		rec.UpdatedAt = in.Now()
		return nil
	}); err != nil {
		return err
	}
	return in.syncMarker(src)
}

// syncMarker writes the dev-mode marker for a dev source and removes it
// otherwise.
func (in *Installer) syncMarker(src state.Source) error {
	if m := state.MarkerFor(src); m != nil {
		return in.Store.SaveDevMarker(m)
	}
	return in.Store.ClearDevMarker()
}

func (in *Installer) locateUV(ctx context.Context, download bool) (string, error) {
	if in.UV == nil {
		return "", errors.New("no uv source configured")
	}
	if !download {
		if l, ok := in.UV.(interface{ Locate() (string, bool) }); ok {
			if p, found := l.Locate(); found {
				return p, nil
			}
			return "", errors.New("uv not found")
		}
	}
	return in.UV.Ensure(ctx)
}

func (in *Installer) writeOverrides() error {
	if len(in.Overrides) == 0 {
		if err := os.Remove(in.Paths.Overrides); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing overrides file: %w", err)
		}
		return nil
	}
	data := strings.Join(in.Overrides, "\n") + "\n"
	return util.AtomicWriteFile(in.Paths.Overrides, []byte(data), 0644)
}

func (in *Installer) envExists() bool {
	_, err := os.Stat(in.Paths.EnvPython())
	return err == nil
}

func (in *Installer) status(msg string) {
	if in.OnStatus != nil {
		in.OnStatus(msg)
	}
}

// PackageSpec returns the installer arguments naming what to install.
func PackageSpec(app config.AppConfig, src state.Source, extras []string) []string {
	name := app.Package
	if len(extras) > 0 {
		name += "[" + strings.Join(extras, ",") + "]"
	}
	switch src.Mode {
	case state.ModeBranch:
		return []string{fmt.Sprintf("%s @ git+%s@%s", name, app.RepoURL, src.Branch)}
	case state.ModeLocal:
		local := src.LocalPath
		if len(extras) > 0 {
			local += "[" + strings.Join(extras, ",") + "]"
		}
		return []string{"-e", local}
	}
	if src.Version != "" {
		name += "==" + src.Version
	}
	return []string{name}
}

// ActionableMessage picks the most useful line out of installer stderr.
// When nothing stands out the message points at logPath.
func ActionableMessage(stderr, logPath string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") || strings.HasPrefix(line, "error:") || strings.HasPrefix(line, "×") {
			return "Install failed: " + line
		}
	}
	if logPath != "" {
		return "Install failed. Check " + logPath + " for details"
	}
	return "Install failed"
}
