// Package supervisor runs the application server as a child process and
// tracks it through Stopped, Starting, Healthy and Unhealthy. The PID
// record is the source of truth shared with other launcher processes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/metrics"
	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/util"
)

// State is the server lifecycle state.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// ErrNotInstalled is returned by Start when the server executable is missing.
var ErrNotInstalled = errors.New("server executable not found; install the application first")

// Handle identifies a running server.
type Handle struct {
	PID       int       `json:"pid,omitempty"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	State     State     `json:"state"`
}

// Running reports whether the handle names a live server.
func (h Handle) Running() bool {
	return h.PID > 0 && h.State != StateStopped
}

// EarlyExitError is returned by Start when the server exits before it
// becomes healthy.
type EarlyExitError struct {
	Code    int
	LogTail string
}

func (e *EarlyExitError) Error() string {
	msg := fmt.Sprintf("server exited during startup with code %d", e.Code)
	if e.LogTail != "" {
		msg += "\n" + e.LogTail
	}
	return msg
}

// Config describes how to run and probe the server.
type Config struct {
	Executable string
	Module     string
	// Args builds the server arguments for a port. Nil means
	// "-m <Module> --port <port>".
	Args func(port int) []string
	Env  []string
	Dir  string

	Host           string
	HealthPath     string
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	StartTimeout   time.Duration
	StopGrace      time.Duration
	KillWait       time.Duration
	MonitorEvery   time.Duration
	RestartOnCrash bool

	LogPath string
}

// ConfigFrom derives the supervisor config from the launcher config.
func ConfigFrom(paths config.Paths, cfg *config.Config, env []string) Config {
	return Config{
		Executable:     paths.EnvPython(),
		Module:         cfg.App.Module,
		Env:            env,
		Dir:            paths.Home,
		Host:           cfg.Server.Host,
		HealthPath:     cfg.Server.HealthPath,
		HealthInterval: cfg.Server.HealthInterval.Duration,
		HealthTimeout:  cfg.Server.HealthTimeout.Duration,
		StartTimeout:   cfg.Server.StartTimeout.Duration,
		StopGrace:      cfg.Server.StopGrace.Duration,
		KillWait:       cfg.Server.KillWait.Duration,
		MonitorEvery:   cfg.Server.MonitorEvery.Duration,
		RestartOnCrash: cfg.Server.RestartOnCrash,
		LogPath:        paths.ServerLog,
	}
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/"
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 500 * time.Millisecond
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 3 * time.Second
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 60 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 10 * time.Second
	}
	if c.KillWait <= 0 {
		c.KillWait = 5 * time.Second
	}
	if c.MonitorEvery <= 0 {
		c.MonitorEvery = 5 * time.Second
	}
}

// child is a server this supervisor spawned.
type child struct {
	cmd  *exec.Cmd
	done chan struct{}
	code int // valid after done is closed
}

func (c *child) pid() int { return c.cmd.Process.Pid }

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithProcessTable replaces the OS process table.
func WithProcessTable(p ProcessTable) Option {
	return func(s *Supervisor) { s.procs = p }
}

// WithRecorder reports state changes and probes to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Supervisor) { s.rec = metrics.OrNoop(r) }
}

// WithHTTPClient replaces the health probe client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Supervisor) { s.client = c }
}

// WithOwner sets the launcher instance ID written to the PID record.
func WithOwner(id string) Option {
	return func(s *Supervisor) { s.owner = id }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor owns at most one server process per installation.
type Supervisor struct {
	cfg     Config
	store   state.Repository
	procs   ProcessTable
	client  *http.Client
	logger  *slog.Logger
	rec     metrics.Recorder
	owner   string
	now     func() time.Time
	crashes *crashTracker

	// OnStateChange, if set, is called after every transition.
	OnStateChange func(from, to State)

	// opMu serializes Start, Stop, Restart and crash restarts.
	opMu sync.Mutex

	mu             sync.Mutex
	state          State
	handle         *Handle
	child          *child
	lastPort       int
	pendingRestart bool
}

// New returns a supervisor in the Stopped state.
func New(cfg Config, store state.Repository, logger *slog.Logger, opts ...Option) *Supervisor {
	cfg.applyDefaults()
	s := &Supervisor{
		cfg:    cfg,
		store:  store,
		procs:  OSProcesses(),
		client: &http.Client{},
		logger: logger,
		rec:    metrics.Noop(),
		owner:  uuid.NewString(),
		now:    time.Now,
		state:  StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.crashes = newCrashTracker(s.now)
	return s
}

// State returns the last observed state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// URL returns the base URL for a server on port.
func (s *Supervisor) URL(port int) string {
	return "http://" + net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
}

// DashboardURL returns the URL of the current or last server, or "" if
// none has run.
func (s *Supervisor) DashboardURL() string {
	s.mu.Lock()
	port := s.lastPort
	s.mu.Unlock()
	if port == 0 {
		return ""
	}
	return s.URL(port)
}

// Start returns the running server, adopting one recorded in the PID
// record if it is alive and ours, or spawns a new one on the first free
// port at or above port. The PID record is written before the first
// health probe. If the server does not become healthy within the start
// timeout the handle is returned in the Unhealthy state together with a
// StartupTimeout error, and the process is left running.
func (s *Supervisor) Start(ctx context.Context, port int) (Handle, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start(ctx, port)
}

// Stop terminates the server: a graceful signal, up to StopGrace to
// exit, then a forced kill. The PID record is cleared only once the
// process is confirmed dead. Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop(ctx)
}

// Restart stops the server and starts it again. A port of 0 reuses the
// last port.
func (s *Supervisor) Restart(ctx context.Context, port int) (Handle, error) {
	return s.RestartFor(ctx, "manual", port)
}

// RestartFor is Restart with the reason recorded in metrics.
func (s *Supervisor) RestartFor(ctx context.Context, reason string, port int) (Handle, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.stop(ctx); err != nil {
		return s.snapshot(), err
	}
	if port <= 0 {
		s.mu.Lock()
		port = s.lastPort
		s.mu.Unlock()
	}
	s.rec.ServerRestart(reason)
	return s.start(ctx, port)
}

// Status reports the server as recorded on disk, probing its health. A
// stale PID record is cleared. It never waits on a running Start or
// Stop.
func (s *Supervisor) Status(ctx context.Context) (Handle, error) {
	s.mu.Lock()
	if s.state == StateStarting && s.handle != nil {
		h := *s.handle
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	rec, err := s.store.LoadPID()
	if err != nil {
		return Handle{State: StateStopped}, err
	}
	if rec == nil {
		return Handle{State: StateStopped}, nil
	}
	if !s.owns(rec) {
		s.logger.Info("clearing stale PID record", "pid", rec.PID)
		if err := s.store.ClearPID(); err != nil {
			return Handle{State: StateStopped}, err
		}
		return Handle{State: StateStopped}, nil
	}

	h := Handle{PID: rec.PID, Port: rec.Port, StartedAt: rec.StartedAt, State: StateUnhealthy}
	if s.healthy(ctx, rec.Port) {
		h.State = StateHealthy
	}

	s.mu.Lock()
	tracked := s.handle != nil && s.handle.PID == rec.PID
	s.mu.Unlock()
	if tracked {
		s.setState(h.State)
	}
	return h, nil
}

// Monitor probes the server every MonitorEvery until ctx is done,
// moving between Healthy and Unhealthy, and noticing crashes. When
// RestartOnCrash is set a crashed server is restarted with exponential
// backoff until it crash-loops. Probes are skipped while another
// operation holds the supervisor.
func (s *Supervisor) Monitor(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.MonitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs one monitor cycle.
func (s *Supervisor) CheckOnce(ctx context.Context) {
	if !s.opMu.TryLock() {
		return
	}
	defer s.opMu.Unlock()

	s.mu.Lock()
	h := s.handle
	ch := s.child
	port := s.lastPort
	pending := s.pendingRestart
	s.mu.Unlock()

	if h == nil {
		if pending {
			s.tryCrashRestart(ctx, port)
		}
		return
	}

	alive := s.procs.Alive(h.PID)
	if ch != nil && ch.pid() == h.PID {
		alive = !ch.exited()
	}
	if !alive {
		s.logger.Warn("server exited unexpectedly", "pid", h.PID, "port", h.Port)
		if err := s.store.ClearPID(); err != nil {
			s.logger.Warn("clearing PID record", "error", err)
		}
		s.forget()
		s.setState(StateStopped)

		if s.cfg.RestartOnCrash {
			wait, err := s.crashes.RecordCrash()
			if err != nil {
				s.logger.Error("not restarting server", "error", err)
				return
			}
			s.logger.Info("server will be restarted", "backoff", wait)
			s.mu.Lock()
			s.pendingRestart = true
			s.mu.Unlock()
		}
		return
	}

	if s.healthy(ctx, h.Port) {
		s.setState(StateHealthy)
	} else {
		s.setState(StateUnhealthy)
	}
}

func (s *Supervisor) tryCrashRestart(ctx context.Context, port int) {
	ok, reason := s.crashes.ShouldRestart()
	if !ok {
		s.logger.Debug("crash restart deferred", "reason", reason)
		return
	}
	s.mu.Lock()
	s.pendingRestart = false
	s.mu.Unlock()

	s.rec.ServerRestart("crash")
	if _, err := s.start(ctx, port); err != nil {
		s.logger.Error("crash restart failed", "error", err)
	}
}

func (s *Supervisor) start(ctx context.Context, port int) (Handle, error) {
	if h, ok, err := s.adopt(ctx); err != nil {
		return Handle{State: StateStopped}, err
	} else if ok {
		return h, nil
	}

	if _, err := os.Stat(s.cfg.Executable); err != nil {
		return Handle{State: StateStopped}, fmt.Errorf("%w (%s)", ErrNotInstalled, s.cfg.Executable)
	}

	chosen, err := FindFreePort(s.cfg.Host, port, PortScanSpan)
	if err != nil {
		return Handle{State: StateStopped}, err
	}
	if chosen != port {
		s.logger.Info("requested port busy", "requested", port, "using", chosen)
	}

	logFile, err := openLog(s.cfg.LogPath)
	if err != nil {
		return Handle{State: StateStopped}, err
	}

	cmd := exec.Command(s.cfg.Executable, s.args(chosen)...)
	cmd.Env = s.cfg.Env
	cmd.Dir = s.cfg.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = serverSysProcAttr()

	s.logger.Info("starting server", "cmd", cmd.String(), "port", chosen)
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return Handle{State: StateStopped}, fmt.Errorf("starting server: %w", err)
	}

	h := &Handle{PID: cmd.Process.Pid, Port: chosen, StartedAt: s.now(), State: StateStopped}
	if err := s.store.SavePID(&state.PIDRecord{
		PID:        h.PID,
		Port:       chosen,
		StartedAt:  h.StartedAt,
		Executable: s.cfg.Executable,
		Module:     s.cfg.Module,
		Owner:      s.owner,
	}); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = logFile.Close()
		return Handle{State: StateStopped}, err
	}

	c := &child{cmd: cmd, done: make(chan struct{})}
	s.mu.Lock()
	s.handle = h
	s.child = c
	s.lastPort = chosen
	s.mu.Unlock()
	s.setState(StateStarting)

	go s.reap(c, logFile)

	return s.awaitHealthy(ctx, c, chosen)
}

// reap waits for c so it never lingers as a zombie.
func (s *Supervisor) reap(c *child, logFile *os.File) {
	_ = c.cmd.Wait()
	c.code = c.cmd.ProcessState.ExitCode()
	_ = logFile.Close()
	close(c.done)
	s.logger.Info("server process exited", "pid", c.pid(), "code", c.code)
}

func (s *Supervisor) awaitHealthy(ctx context.Context, c *child, port int) (Handle, error) {
	deadline := time.NewTimer(s.cfg.StartTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		if !c.exited() && s.healthy(ctx, port) {
			s.setState(StateHealthy)
			s.crashes.RecordHealthy()
			s.logger.Info("server healthy", "pid", c.pid(), "url", s.URL(port))
			return s.snapshot(), nil
		}

		select {
		case <-ctx.Done():
			return s.snapshot(), ctx.Err()
		case <-c.done:
			if err := s.store.ClearPID(); err != nil {
				s.logger.Warn("clearing PID record", "error", err)
			}
			s.forget()
			s.setState(StateStopped)
			return Handle{State: StateStopped}, &EarlyExitError{Code: c.code, LogTail: logTail(s.cfg.LogPath)}
		case <-deadline.C:
			s.setState(StateUnhealthy)
			s.logger.Warn("server not healthy before start timeout", "pid", c.pid(), "timeout", s.cfg.StartTimeout)
			return s.snapshot(), exitcode.StartupTimeout(port, s.cfg.StartTimeout)
		case <-ticker.C:
		}
	}
}

// adopt takes over a live server named by the PID record.
func (s *Supervisor) adopt(ctx context.Context) (Handle, bool, error) {
	rec, err := s.store.LoadPID()
	if err != nil {
		return Handle{}, false, err
	}
	if rec == nil {
		return Handle{}, false, nil
	}

	s.mu.Lock()
	ch := s.child
	s.mu.Unlock()
	if ch != nil && ch.pid() == rec.PID && ch.exited() {
		s.forget()
	} else if s.owns(rec) {
		s.mu.Lock()
		if s.handle == nil || s.handle.PID != rec.PID {
			s.handle = &Handle{PID: rec.PID, Port: rec.Port, StartedAt: rec.StartedAt, State: s.state}
		}
		s.lastPort = rec.Port
		s.mu.Unlock()

		if s.healthy(ctx, rec.Port) {
			s.setState(StateHealthy)
		} else {
			s.setState(StateUnhealthy)
		}
		s.logger.Info("server already running", "pid", rec.PID, "port", rec.Port)
		return s.snapshot(), true, nil
	}

	s.logger.Info("clearing stale PID record", "pid", rec.PID)
	if err := s.store.ClearPID(); err != nil {
		return Handle{}, false, err
	}
	return Handle{}, false, nil
}

func (s *Supervisor) stop(ctx context.Context) error {
	rec, err := s.store.LoadPID()
	if err != nil {
		return err
	}

	s.mu.Lock()
	ch := s.child
	s.mu.Unlock()

	pid := 0
	switch {
	case rec != nil:
		pid = rec.PID
	case ch != nil:
		pid = ch.pid()
	}
	if pid == 0 {
		s.forget()
		s.setState(StateStopped)
		return nil
	}

	ours := ch != nil && ch.pid() == pid
	if (ours && ch.exited()) || (!ours && !s.owns(rec)) {
		s.forget()
		s.setState(StateStopped)
		return s.clearPIDIfSet(rec)
	}

	s.logger.Info("stopping server", "pid", pid)
	if err := s.procs.Terminate(pid); err != nil {
		s.logger.Debug("terminate signal failed", "pid", pid, "error", err)
	}
	if !s.waitExit(ctx, pid, ch, ours, s.cfg.StopGrace) {
		s.logger.Warn("server did not stop gracefully, killing", "pid", pid, "grace", s.cfg.StopGrace)
		if err := s.procs.Kill(pid); err != nil {
			s.logger.Debug("kill failed", "pid", pid, "error", err)
		}
		if !s.waitExit(context.Background(), pid, ch, ours, s.cfg.KillWait) {
			return fmt.Errorf("server process %d is still running after kill", pid)
		}
	}

	s.forget()
	s.setState(StateStopped)
	s.logger.Info("server stopped", "pid", pid)
	return s.clearPIDIfSet(rec)
}

func (s *Supervisor) clearPIDIfSet(rec *state.PIDRecord) error {
	if rec == nil {
		return nil
	}
	return s.store.ClearPID()
}

// waitExit waits up to d for pid to die. A cancelled ctx cuts the wait
// short.
func (s *Supervisor) waitExit(ctx context.Context, pid int, ch *child, ours bool, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	if ours {
		select {
		case <-ch.done:
			return true
		case <-timer.C:
			return false
		case <-ctx.Done():
			return ch.exited()
		}
	}

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if !s.procs.Alive(pid) {
			return true
		}
		select {
		case <-timer.C:
			return !s.procs.Alive(pid)
		case <-ctx.Done():
			return !s.procs.Alive(pid)
		case <-tick.C:
		}
	}
}

// owns reports whether rec names a live process that is our server. A
// live process whose command line cannot be read is taken at the
// record's word, so a host without ps never loses track of its server.
func (s *Supervisor) owns(rec *state.PIDRecord) bool {
	if rec == nil || !s.procs.Alive(rec.PID) {
		return false
	}
	cmdline, err := s.procs.CommandLine(rec.PID)
	if err != nil {
		s.logger.Warn("cannot read server command line, trusting PID record", "pid", rec.PID, "error", err)
		return true
	}
	return matchesIdentity(cmdline, identities(rec, s.cfg.Module))
}

func (s *Supervisor) healthy(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	ok := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(port)+s.cfg.HealthPath, nil)
	if err == nil {
		resp, err := s.client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			ok = resp.StatusCode >= 200 && resp.StatusCode < 300
		}
	}
	s.rec.HealthCheck(ok, time.Since(start))
	return ok
}

func (s *Supervisor) args(port int) []string {
	if s.cfg.Args != nil {
		return s.cfg.Args(port)
	}
	return []string{"-m", s.cfg.Module, "--port", strconv.Itoa(port)}
}

func (s *Supervisor) setState(to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	if s.handle != nil {
		s.handle.State = to
	}
	hook := s.OnStateChange
	s.mu.Unlock()

	s.logger.Debug("server state", "from", from, "to", to)
	s.rec.ServerState(string(from), string(to))
	if hook != nil {
		hook(from, to)
	}
}

func (s *Supervisor) snapshot() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return Handle{State: s.state}
	}
	return *s.handle
}

func (s *Supervisor) forget() {
	s.mu.Lock()
	s.handle = nil
	s.child = nil
	s.mu.Unlock()
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening server log: %w", err)
	}
	return f, nil
}

// logTail returns the last lines of the server log.
func logTail(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) > 2000 {
		data = data[len(data)-2000:]
	}
	return util.Tail(string(data), 20)
}
