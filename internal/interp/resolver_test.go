package interp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/testutil"
	"github.com/steveyegge/pawlaunch/internal/util"
)

// fakeSystem maps interpreter paths to the version they report and
// command names to paths.
type fakeSystem struct {
	dir      string
	versions map[string]string
	commands map[string]string
}

func newFakeSystem(t *testing.T) *fakeSystem {
	return &fakeSystem{dir: t.TempDir(), versions: map[string]string{}, commands: map[string]string{}}
}

// add creates an interpreter file reachable as command (if non-empty).
func (s *fakeSystem) add(t *testing.T, name, command, ver string) string {
	t.Helper()
	path := filepath.Join(s.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!python"), 0755))
	s.versions[path] = ver
	if command != "" {
		s.commands[command] = path
	}
	return path
}

func (s *fakeSystem) lookPath(name string) (string, error) {
	if p, ok := s.commands[name]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (s *fakeSystem) runner() *testutil.FakeRunner {
	return &testutil.FakeRunner{Handler: func(cmd util.Command) (util.Result, error) {
		if v, ok := s.versions[cmd.Name]; ok && len(cmd.Args) == 2 && cmd.Args[0] == "-c" {
			return util.Result{Stdout: v}, nil
		}
		return testutil.Fail(cmd, 127, "not found")
	}}
}

func newTestResolver(s *fakeSystem, runner util.Runner, candidates []Candidate, provisioners ...Provisioner) *Resolver {
	return &Resolver{
		MinVersion:   "3.11",
		Candidates:   candidates,
		Provisioners: provisioners,
		Runner:       runner,
		LookPath:     s.lookPath,
		Logger:       testutil.DiscardLogger(),
	}
}

var defaultCandidates = []Candidate{
	{Command: "python3"},
	{Command: "python3.12"},
	{Command: "python3.11"},
	{Command: "python"},
}

type stubProvisioner struct {
	origin Origin
	path   string
	err    error
	calls  int
	onCall func()
}

func (p *stubProvisioner) Name() Origin { return p.origin }

func (p *stubProvisioner) Provision(ctx context.Context) (string, error) {
	p.calls++
	if p.onCall != nil {
		p.onCall()
	}
	return p.path, p.err
}

func TestResolve_SkipsInterpretersBelowFloor(t *testing.T) {
	s := newFakeSystem(t)
	s.add(t, "python3", "python3", "3.10.12")
	want := s.add(t, "python3.12", "python3.12", "3.12.8")

	rt, err := newTestResolver(s, s.runner(), defaultCandidates).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, rt.Path)
	assert.Equal(t, "3.12.8", rt.Version)
	assert.Equal(t, OriginSearch, rt.Origin)
}

func TestResolve_HintFirst(t *testing.T) {
	s := newFakeSystem(t)
	s.add(t, "python3", "python3", "3.13.1")
	hint := s.add(t, "recorded-python", "", "3.11.9")

	candidates := append([]Candidate{{Path: hint}}, defaultCandidates...)
	rt, err := newTestResolver(s, s.runner(), candidates).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hint, rt.Path)
}

func TestResolve_IdempotentWithoutReprobing(t *testing.T) {
	s := newFakeSystem(t)
	s.add(t, "python3", "python3", "3.12.1")
	runner := s.runner()
	r := newTestResolver(s, runner, defaultCandidates)

	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	probes := len(runner.Calls())

	second, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, OriginCached, second.Origin)
	assert.Equal(t, probes, len(runner.Calls()), "second resolve must not probe")
}

func TestResolve_ProvisionsOnFreshMachine(t *testing.T) {
	s := newFakeSystem(t)
	runner := s.runner()

	var provisioned string
	uv := &stubProvisioner{origin: OriginUV}
	uv.onCall = func() {
		provisioned = s.add(t, "managed-python3.12", "", "3.12.8")
		uv.path = provisioned
	}
	pm := &stubProvisioner{origin: OriginPackageManager, err: errors.New("should not run")}

	rt, err := newTestResolver(s, runner, defaultCandidates, uv, pm).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, provisioned, rt.Path)
	assert.Equal(t, OriginUV, rt.Origin)
	assert.Equal(t, 0, pm.calls, "package manager is only the second fallback")
}

func TestResolve_FallsBackToPackageManager(t *testing.T) {
	s := newFakeSystem(t)
	uv := &stubProvisioner{origin: OriginUV, err: errors.New("offline")}
	pm := &stubProvisioner{origin: OriginPackageManager}
	pm.onCall = func() { pm.path = s.add(t, "brew-python", "", "3.12.3") }

	rt, err := newTestResolver(s, s.runner(), defaultCandidates, uv, pm).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginPackageManager, rt.Origin)
	assert.Equal(t, 1, uv.calls)
}

func TestResolve_RuntimeUnavailable(t *testing.T) {
	s := newFakeSystem(t)
	s.add(t, "python3", "python3", "3.9.18")
	old := &stubProvisioner{origin: OriginUV}
	old.onCall = func() { old.path = s.add(t, "still-old", "", "3.10.0") }

	_, err := newTestResolver(s, s.runner(), defaultCandidates, old).Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, exitcode.Is(err, exitcode.ErrRuntimeUnavailable), "got %v", err)
	assert.Contains(t, err.Error(), exitcode.PythonDownloadURL)
	assert.Contains(t, err.Error(), "3.11")
}

func TestResolve_DedupesSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	s := newFakeSystem(t)
	target := s.add(t, "python3.10", "python3", "3.10.1")
	link := filepath.Join(s.dir, "python")
	require.NoError(t, os.Symlink(target, link))
	s.commands["python"] = link
	runner := s.runner()

	_, err := newTestResolver(s, runner, defaultCandidates).Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, runner.Count("-c"), "same interpreter probed once")
}

func TestUVProvisioner(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(cmd util.Command) (util.Result, error) {
		if strings.Contains(cmd.String(), "python find") {
			return util.Result{Stdout: "/h/python/cpython-3.12.8/bin/python3.12"}, nil
		}
		return util.Result{}, nil
	}}
	p := &UVProvisioner{
		UV:         uvFunc(func(context.Context) (string, error) { return "/h/uv/uv", nil }),
		Runner:     runner,
		Version:    "3.12",
		InstallDir: "/h/python",
		Logger:     testutil.DiscardLogger(),
	}

	path, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/h/python/cpython-3.12.8/bin/python3.12", path)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/h/uv/uv python install 3.12", calls[0].String())
	assert.Contains(t, calls[0].Env, "UV_PYTHON_INSTALL_DIR=/h/python")
}

func TestPackageManagerProvisioner_NoneAvailable(t *testing.T) {
	p := &PackageManagerProvisioner{
		Commands: PlatformPackageManagers("3.12"),
		Runner:   &testutil.FakeRunner{},
		LookPath: func(string) (string, error) { return "", errors.New("missing") },
		Logger:   testutil.DiscardLogger(),
	}
	_, err := p.Provision(context.Background())
	assert.ErrorIs(t, err, ErrNoPackageManager)
}

type uvFunc func(context.Context) (string, error)

func (f uvFunc) Ensure(ctx context.Context) (string, error) { return f(ctx) }
