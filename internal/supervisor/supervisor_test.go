//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/testutil"
)

// TestHelperProcess is not a real test. It stands in for the application
// server when re-executed by the supervisor.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PAWLAUNCH_HELPER") != "1" {
		return
	}
	port := 0
	for i, a := range os.Args {
		if a == "--port" && i+1 < len(os.Args) {
			port, _ = strconv.Atoi(os.Args[i+1])
		}
	}

	switch os.Getenv("PAWLAUNCH_HELPER_MODE") {
	case "crash":
		fmt.Fprintln(os.Stderr, "Traceback (most recent call last):")
		fmt.Fprintln(os.Stderr, "RuntimeError: boom")
		os.Exit(3)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
	}

	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	_ = http.Serve(l, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	}))
	os.Exit(0)
}

// helperProcs is the real process table except that every live process
// claims to be the server, so tests need no ps binary.
type helperProcs struct {
	osProcesses
}

func (p helperProcs) CommandLine(pid int) (string, error) {
	if !p.Alive(pid) {
		return "", errors.New("no such process")
	}
	return "python -m pocketclaw", nil
}

// unreadableProcs is the real process table on a host where command
// lines cannot be read.
type unreadableProcs struct {
	osProcesses
}

func (unreadableProcs) CommandLine(pid int) (string, error) {
	return "", errors.New("exec: \"ps\": executable file not found in $PATH")
}

func newTestSupervisor(t *testing.T, mode string) (*Supervisor, *testutil.HomeFixture) {
	t.Helper()
	home := testutil.NewHome(t)
	store := state.NewFiles(home.Paths)
	cfg := Config{
		Executable: os.Args[0],
		Module:     "pocketclaw",
		Args: func(port int) []string {
			return []string{"-test.run=TestHelperProcess", "--", "-m", "pocketclaw", "--port", strconv.Itoa(port)}
		},
		Env:            append(os.Environ(), "PAWLAUNCH_HELPER=1", "PAWLAUNCH_HELPER_MODE="+mode),
		HealthInterval: 50 * time.Millisecond,
		HealthTimeout:  time.Second,
		StartTimeout:   10 * time.Second,
		StopGrace:      2 * time.Second,
		KillWait:       2 * time.Second,
		MonitorEvery:   50 * time.Millisecond,
		LogPath:        home.Paths.ServerLog,
	}
	s := New(cfg, store, home.Logger, WithProcessTable(helperProcs{}))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, home
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestStart_BecomesHealthyAndPersistsPID(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	var transitions []State
	s.OnStateChange = func(from, to State) { transitions = append(transitions, to) }

	h, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)
	assert.Equal(t, StateHealthy, h.State)
	assert.True(t, h.Running())
	assert.Equal(t, []State{StateStarting, StateHealthy}, transitions)

	rec, err := state.NewFiles(home.Paths).LoadPID()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, h.PID, rec.PID)
	assert.Equal(t, h.Port, rec.Port)
	assert.Equal(t, "pocketclaw", rec.Module)
	assert.NotEmpty(t, rec.Owner)
	assert.Equal(t, s.URL(h.Port), s.DashboardURL())
}

func TestStart_ReturnsExistingServer(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	first, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)

	again, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)
	assert.Equal(t, first.PID, again.PID)

	// A second launcher sharing the home adopts the same server.
	other := New(s.cfg, state.NewFiles(home.Paths), home.Logger, WithProcessTable(helperProcs{}))
	adopted, err := other.Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, first.PID, adopted.PID)
	assert.Equal(t, StateHealthy, adopted.State)
}

func TestStart_SkipsBusyPort(t *testing.T) {
	s, _ := newTestSupervisor(t, "serve")

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	h, err := s.Start(context.Background(), port)
	require.NoError(t, err)
	assert.NotEqual(t, port, h.Port)
	assert.Equal(t, StateHealthy, h.State)
}

func TestStart_ClearsStalePIDRecord(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	store := state.NewFiles(home.Paths)

	dead := exec.Command(os.Args[0], "-test.run=^$")
	require.NoError(t, dead.Run())
	require.NoError(t, store.SavePID(&state.PIDRecord{PID: dead.Process.Pid, Port: 1, Module: "pocketclaw"}))

	st, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st.State)
	rec, err := store.LoadPID()
	require.NoError(t, err)
	assert.Nil(t, rec, "stale record should be cleared")

	require.NoError(t, store.SavePID(&state.PIDRecord{PID: dead.Process.Pid, Port: 1, Module: "pocketclaw"}))
	h, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)
	assert.NotEqual(t, dead.Process.Pid, h.PID)
}

func TestStart_TimeoutLeavesProcessRunning(t *testing.T) {
	s, home := newTestSupervisor(t, "hang")
	s.cfg.StartTimeout = 300 * time.Millisecond

	h, err := s.Start(context.Background(), freePort(t))
	require.Error(t, err)
	assert.True(t, exitcode.Is(err, exitcode.ErrStartupTimeout), "err = %v", err)
	assert.Equal(t, StateUnhealthy, h.State)
	assert.True(t, helperProcs{}.Alive(h.PID), "process must not be killed on timeout")

	rec, err := state.NewFiles(home.Paths).LoadPID()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, h.PID, rec.PID)
}

func TestStart_EarlyExitReportsLogTail(t *testing.T) {
	s, home := newTestSupervisor(t, "crash")

	h, err := s.Start(context.Background(), freePort(t))
	require.Error(t, err)

	var early *EarlyExitError
	require.ErrorAs(t, err, &early)
	assert.Equal(t, 3, early.Code)
	assert.Contains(t, early.LogTail, "RuntimeError: boom")
	assert.Equal(t, StateStopped, h.State)
	assert.Equal(t, StateStopped, s.State())

	rec, err := state.NewFiles(home.Paths).LoadPID()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStart_NotInstalled(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	s.cfg.Executable = home.Paths.EnvPython()

	_, err := s.Start(context.Background(), freePort(t))
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestStop_ClearsPIDAfterExit(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	h, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, helperProcs{}.Alive(h.PID))

	rec, err := state.NewFiles(home.Paths).LoadPID()
	require.NoError(t, err)
	assert.Nil(t, rec)

	// stopping again is a no-op
	require.NoError(t, s.Stop(context.Background()))
}

func TestStop_KillsStubbornServer(t *testing.T) {
	s, _ := newTestSupervisor(t, "stubborn")
	s.cfg.StopGrace = 200 * time.Millisecond

	h, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, helperProcs{}.Alive(h.PID))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestStop_AdoptedServer(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	h, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)

	// A fresh supervisor that never spawned the server can still stop it.
	other := New(s.cfg, state.NewFiles(home.Paths), home.Logger, WithProcessTable(helperProcs{}))
	require.NoError(t, other.Stop(context.Background()))

	assert.Eventually(t, func() bool { return !helperProcs{}.Alive(h.PID) }, 3*time.Second, 50*time.Millisecond)
	rec, err := state.NewFiles(home.Paths).LoadPID()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRestart_NewProcessSamePort(t *testing.T) {
	s, _ := newTestSupervisor(t, "serve")
	first, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)

	second, err := s.Restart(context.Background(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.PID, second.PID)
	assert.Equal(t, first.Port, second.Port)
	assert.Equal(t, StateHealthy, second.State)
}

func TestMonitor_DetectsCrash(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	h, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Monitor(ctx) }()

	require.NoError(t, helperProcs{}.Kill(h.PID))

	assert.Eventually(t, func() bool { return s.State() == StateStopped }, 3*time.Second, 20*time.Millisecond)
	rec, err := state.NewFiles(home.Paths).LoadPID()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMonitor_RestartsCrashedServer(t *testing.T) {
	s, _ := newTestSupervisor(t, "serve")
	s.cfg.RestartOnCrash = true
	clock := &fakeClock{t: time.Now()}
	s.crashes.now = clock.now
	ctx := context.Background()

	h, err := s.Start(ctx, freePort(t))
	require.NoError(t, err)
	require.NoError(t, helperProcs{}.Kill(h.PID))

	assert.Eventually(t, func() bool {
		s.CheckOnce(ctx)
		return s.State() == StateStopped
	}, 3*time.Second, 20*time.Millisecond)

	// still inside the backoff window
	s.CheckOnce(ctx)
	assert.Equal(t, StateStopped, s.State())

	clock.advance(InitialBackoff)
	s.CheckOnce(ctx)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateHealthy, st.State)
	assert.NotEqual(t, h.PID, st.PID)
	assert.Equal(t, h.Port, st.Port)
}

func TestFindFreePort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	assert.False(t, PortFree("127.0.0.1", port))

	got, err := FindFreePort("127.0.0.1", port, 5)
	require.NoError(t, err)
	assert.NotEqual(t, port, got)
}

func TestOSProcesses_Self(t *testing.T) {
	procs := OSProcesses()
	assert.True(t, procs.Alive(os.Getpid()))
	assert.False(t, procs.Alive(0))

	if _, err := exec.LookPath("ps"); err != nil {
		t.Skip("ps not available")
	}
	cmdline, err := procs.CommandLine(os.Getpid())
	require.NoError(t, err)
	assert.Contains(t, cmdline, "supervisor")
}

func TestMatchesIdentity(t *testing.T) {
	rec := &state.PIDRecord{PID: 42, Module: "pocketclaw"}
	assert.True(t, matchesIdentity("/home/u/.pocketclaw/venv/bin/python -m pocketclaw --port 8888", identities(rec, "")))
	assert.False(t, matchesIdentity("/usr/bin/vim notes.txt", identities(rec, "")))
	assert.True(t, matchesIdentity("python -m PocketClaw", identities(&state.PIDRecord{PID: 42}, "pocketclaw")))
}

func TestHealthy_AcceptsAny2xx(t *testing.T) {
	for _, tt := range []struct {
		code int
		want bool
	}{
		{http.StatusOK, true},
		{http.StatusCreated, true},
		{http.StatusNoContent, true},
		{http.StatusMovedPermanently, false},
		{http.StatusServiceUnavailable, false},
	} {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code == http.StatusMovedPermanently {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			s, _ := newTestSupervisor(t, "serve")
			s.client = &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			}}
			port := srv.Listener.Addr().(*net.TCPAddr).Port
			assert.Equal(t, tt.want, s.healthy(context.Background(), port))
		})
	}
}

func TestStatus_KeepsRecordWhenCommandLineUnreadable(t *testing.T) {
	s, home := newTestSupervisor(t, "serve")
	first, err := s.Start(context.Background(), freePort(t))
	require.NoError(t, err)

	store := state.NewFiles(home.Paths)
	other := New(s.cfg, store, home.Logger, WithProcessTable(unreadableProcs{}))
	st, err := other.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.PID, st.PID)
	assert.Equal(t, StateHealthy, st.State)

	rec, err := store.LoadPID()
	require.NoError(t, err)
	require.NotNil(t, rec, "record of a live server must survive")
	assert.Equal(t, first.PID, rec.PID)

	again, err := other.Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, first.PID, again.PID, "no second server may be spawned")
}
