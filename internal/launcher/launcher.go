// Package launcher wires the launcher's components for one home directory.
// Commands build a Launcher, use the components they need, and Close it.
package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/steveyegge/pawlaunch/internal/autostart"
	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/installer"
	"github.com/steveyegge/pawlaunch/internal/interp"
	"github.com/steveyegge/pawlaunch/internal/logging"
	"github.com/steveyegge/pawlaunch/internal/metrics"
	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/supervisor"
	"github.com/steveyegge/pawlaunch/internal/telemetry"
	"github.com/steveyegge/pawlaunch/internal/toolchain"
	"github.com/steveyegge/pawlaunch/internal/uninstall"
	"github.com/steveyegge/pawlaunch/internal/upgrade"
	"github.com/steveyegge/pawlaunch/internal/util"
	"github.com/steveyegge/pawlaunch/internal/version"
)

// Options configures New.
type Options struct {
	// Home overrides $PAWLAUNCH_HOME and the default home.
	Home     string
	Verbose  bool
	LogLevel slog.Level
	Stderr   io.Writer
	// NoLogFile keeps the launcher log closed, so uninstall can remove it.
	NoLogFile bool

	// Runner runs external tools. Nil means util.ExecRunner.
	Runner util.Runner
	// UserHome is where per-user autostart entries are written. Empty
	// means os.UserHomeDir.
	UserHome string
	// Autostart replaces the platform registrar.
	Autostart autostart.Registrar
}

// Launcher holds every component for one installation.
type Launcher struct {
	Paths  config.Paths
	Config *config.Config
	Log    *logging.Logger
	Store  state.Repository

	UV          *toolchain.UV
	Resolver    *interp.Resolver
	Installer   *installer.Installer
	Supervisor  *supervisor.Supervisor
	Reconciler  *upgrade.Reconciler
	Autostart   autostart.Registrar
	Uninstaller *uninstall.Uninstaller

	Prometheus *metrics.Prometheus
	Telemetry  *telemetry.Provider
	Recorder   metrics.Recorder
}

// New loads the configuration under the resolved home and builds the
// components. Telemetry and autostart failures are logged, not returned.
func New(ctx context.Context, opts Options) (*Launcher, error) {
	home, err := config.ResolveHome(opts.Home)
	if err != nil {
		return nil, err
	}
	paths := config.NewPaths(home)
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}

	logPath := paths.LauncherLog
	if opts.NoLogFile {
		logPath = ""
	}
	log, err := logging.New(logging.Options{
		Path:    logPath,
		Verbose: opts.Verbose,
		Stderr:  opts.Stderr,
		Level:   opts.LogLevel,
	})
	if err != nil {
		return nil, err
	}
	logger := log.Logger

	l := &Launcher{
		Paths:      paths,
		Config:     cfg,
		Log:        log,
		Store:      state.NewFiles(paths),
		Prometheus: metrics.NewPrometheus(""),
	}

	l.Telemetry, err = telemetry.Init(ctx, "pawlaunch", version.Version)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	}
	var otel metrics.Recorder
	if l.Telemetry != nil {
		otel = l.Telemetry.Recorder()
	}
	l.Recorder = metrics.Multi(l.Prometheus, otel)

	runner := opts.Runner
	if runner == nil {
		runner = util.ExecRunner{}
	}

	rec, err := l.Store.LoadInstall()
	if err != nil {
		logger.Warn("reading install record", "error", err)
		rec = nil
	}
	hint := ""
	if rec != nil {
		hint = rec.Interpreter
	}

	l.UV = toolchain.New(paths.UVDir, paths.UVTagCache, cfg.Runtime.UVVersion, logger)
	l.Resolver = interp.NewResolver(cfg.Runtime.MinVersion, home, hint, runner, []interp.Provisioner{
		&interp.UVProvisioner{
			UV:         l.UV,
			Runner:     runner,
			Version:    cfg.Runtime.PinnedVersion,
			InstallDir: paths.PythonDir,
			Logger:     logger,
		},
		&interp.PackageManagerProvisioner{
			Commands: interp.PlatformPackageManagers(cfg.Runtime.PinnedVersion),
			Runner:   runner,
			LookPath: exec.LookPath,
			Logger:   logger,
		},
	}, logger)

	l.Installer = installer.New(paths, cfg, l.Store, l.Resolver, l.UV, runner, logger)
	l.Installer.Recorder = l.Recorder

	l.Supervisor = supervisor.New(
		supervisor.ConfigFrom(paths, cfg, serverEnv(paths, rec)),
		l.Store, logger,
		supervisor.WithRecorder(l.Recorder),
	)

	l.Reconciler = upgrade.New(cfg, l.Store, l.Installer, l.Supervisor, l.Recorder, logger)

	l.Autostart = opts.Autostart
	if l.Autostart == nil {
		reg, err := autostart.New(autostart.Options{
			Entry:   autostartEntry(paths, opts.Home != ""),
			HomeDir: opts.UserHome,
			Runner:  runner,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("autostart unavailable", "error", err)
		} else {
			l.Autostart = reg
		}
	}

	var as uninstall.Autostart
	if l.Autostart != nil {
		as = l.Autostart
	}
	l.Uninstaller = uninstall.New(paths, as, l.Supervisor, l.Recorder, logger)
	return l, nil
}

// Logger returns the launcher's logger.
func (l *Launcher) Logger() *slog.Logger {
	return l.Log.Logger
}

// Close flushes telemetry and closes the log file.
func (l *Launcher) Close(ctx context.Context) error {
	return errors.Join(l.Telemetry.Shutdown(ctx), l.Log.Close())
}

// serverEnv is the supervised server's environment.
func serverEnv(paths config.Paths, rec *state.InstallationRecord) []string {
	env := config.EnvList(config.ServerEnv(config.ServerEnvConfig{Paths: paths}))
	var id, source string
	if rec != nil {
		id, source = rec.InstallID, string(rec.Mode)
	}
	return append(env, telemetry.ServerEnv(id, source)...)
}

// autostartEntry starts "pawlaunch run" at login. An explicit home is
// passed along so the login item finds the same installation.
func autostartEntry(paths config.Paths, explicitHome bool) autostart.Entry {
	e := autostart.Entry{
		Args:    []string{"run"},
		LogPath: filepath.Join(paths.Logs, "autostart.log"),
	}
	if explicitHome || os.Getenv(config.HomeEnv) != "" {
		e.Args = append(e.Args, "--home", paths.Home)
	}
	return e
}

// ErrNoAutostart is returned when the platform has no login item support.
var ErrNoAutostart = errors.New("autostart is not available on this system")
