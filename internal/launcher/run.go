package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	rodlauncher "github.com/go-rod/rod/lib/launcher"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/installer"
	"github.com/steveyegge/pawlaunch/internal/lock"
	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/supervisor"
)

// ShutdownTimeout bounds stopping the server when the launcher exits.
const ShutdownTimeout = 30 * time.Second

// SourceFlags are the dev-channel flags shared by run, install and reset.
type SourceFlags struct {
	Dev    bool
	Branch string
	Local  string
}

// Set reports whether any flag names a dev source.
func (f SourceFlags) Set() bool {
	return f.Dev || f.Branch != "" || f.Local != ""
}

// Source turns the flags into an install source. devBranch is used for
// --dev alone. No flags means release.
func (f SourceFlags) Source(devBranch string) (state.Source, error) {
	switch {
	case f.Branch != "" && f.Local != "":
		return state.Source{}, exitcode.New(exitcode.ErrUsage, "--branch and --local cannot be combined")
	case f.Local != "":
		return state.Source{Mode: state.ModeLocal, LocalPath: f.Local}, nil
	case f.Branch != "":
		return state.Source{Mode: state.ModeBranch, Branch: f.Branch}, nil
	case f.Dev:
		return state.Source{Mode: state.ModeBranch, Branch: devBranch}, nil
	}
	return state.ReleaseSource(), nil
}

// InstallOptions selects what EnsureInstalled does.
type InstallOptions struct {
	Sources SourceFlags
	Extras  []string
	// Reset deletes the environment first. Without dev flags it is the
	// way back to a release install.
	Reset bool
}

// EnsureInstalled installs when nothing usable is installed, when a reset
// is requested, or when the flags ask for a different source than the
// one recorded. Otherwise it returns the existing record.
func (l *Launcher) EnsureInstalled(ctx context.Context, o InstallOptions) (*state.InstallationRecord, error) {
	src, err := o.Sources.Source(l.Config.App.DevBranch)
	if err != nil {
		return nil, err
	}
	req := installer.Request{Source: src, Extras: o.Extras}

	if o.Reset {
		l.Logger().Info("reset requested", "source", src.String())
		return l.Installer.Reset(ctx, req)
	}

	rec, err := l.Store.LoadInstall()
	if err != nil {
		return nil, err
	}
	switch needsInstall(rec, o.Sources.Set(), src, l.envPresent()) {
	case installNone:
		return rec, nil
	case installResume:
		req.Source = rec.Source()
		if req.Extras == nil {
			req.Extras = rec.Extras
		}
	}
	l.Logger().Info("installing", "source", req.Source.String())
	return l.Installer.Install(ctx, req)
}

type installNeed int

const (
	installNone installNeed = iota
	installFresh
	// installResume repeats the recorded source after a failed or damaged
	// install.
	installResume
)

func needsInstall(rec *state.InstallationRecord, flagged bool, src state.Source, envPresent bool) installNeed {
	switch {
	case rec == nil:
		return installFresh
	case flagged && rec.Source() != src:
		return installFresh
	case !rec.Complete || !envPresent:
		if flagged {
			return installFresh
		}
		return installResume
	}
	return installNone
}

func (l *Launcher) envPresent() bool {
	_, err := os.Stat(l.Paths.EnvPython())
	return err == nil
}

// RunOptions configures Run.
type RunOptions struct {
	Install InstallOptions
	Port    int
	// NoBrowser skips opening the dashboard.
	NoBrowser bool
	// Autostart, when set, enables or disables the login item.
	Autostart *bool
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string

	// OpenBrowser opens the dashboard. Nil means the system browser.
	OpenBrowser func(url string)
	// OnReady is called once the server is up.
	OnReady func(h supervisor.Handle, url string)
	// OnStatus receives install progress lines.
	OnStatus func(msg string)
}

// Run is the launcher's foreground mode: take the instance lock, install
// if needed, start the server, then supervise it and check for updates
// until ctx is done. The server is stopped on the way out.
func (l *Launcher) Run(ctx context.Context, o RunOptions) error {
	log := l.Logger()

	inst, err := lock.AcquireInstance(l.Paths.InstanceLock)
	if err != nil {
		return err
	}
	defer func() { _ = inst.Release() }()

	l.Installer.OnStatus = o.OnStatus
	if _, err := l.EnsureInstalled(ctx, o.Install); err != nil {
		return err
	}

	port := l.Config.ResolvePort(o.Port, l.Paths)
	h, err := l.Supervisor.Start(ctx, port)
	if err != nil {
		return err
	}
	url := l.Supervisor.URL(h.Port)
	log.Info("server ready", "pid", h.PID, "port", h.Port, "url", url)

	if o.Autostart != nil {
		if err := l.SetAutostart(ctx, *o.Autostart); err != nil {
			log.Warn("updating autostart", "error", err)
		}
	}
	if o.OnReady != nil {
		o.OnReady(h, url)
	}
	if !o.NoBrowser {
		open := o.OpenBrowser
		if open == nil {
			open = rodlauncher.Open
		}
		open(url)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(l.Supervisor.Monitor(gctx)) })
	g.Go(func() error { return ignoreCanceled(l.Reconciler.Run(gctx)) })
	if o.MetricsAddr != "" {
		g.Go(func() error { return l.serveMetrics(gctx, o.MetricsAddr) })
	}
	runErr := g.Wait()

	log.Info("launcher shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, l.Supervisor.Stop(stopCtx))
}

// SetAutostart enables or disables the login item.
func (l *Launcher) SetAutostart(ctx context.Context, enable bool) error {
	if l.Autostart == nil {
		return ErrNoAutostart
	}
	if enable {
		return l.Autostart.Enable(ctx)
	}
	return l.Autostart.Disable(ctx)
}

func (l *Launcher) serveMetrics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", l.Prometheus.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	l.Logger().Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
