package upgrade

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/installer"
	"github.com/steveyegge/pawlaunch/internal/metrics"
	"github.com/steveyegge/pawlaunch/internal/state"
	"github.com/steveyegge/pawlaunch/internal/supervisor"
	"github.com/steveyegge/pawlaunch/internal/testutil"
)

const indexBody = `{
  "info": {"version": "0.4.1"},
  "releases": {
    "0.3.0": [{"yanked": false}],
    "0.4.0": [{"yanked": false}],
    "0.4.1": [{"yanked": false}],
    "0.5.0rc1": [{"yanked": false}],
    "0.6.0": [{"yanked": true}]
  }
}`

type fakeIndex struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newFakeIndex(t *testing.T, status int, body string) *fakeIndex {
	t.Helper()
	f := &fakeIndex{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if r.URL.Path != "/pocketpaw/json" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

type fakeUpgrader struct {
	store   *state.Files
	version string
	err     error
	calls   int
}

func (f *fakeUpgrader) Upgrade(ctx context.Context) (*state.InstallationRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.store.UpdateInstall(func(rec *state.InstallationRecord) error {
		rec.Version = f.version
		return nil
	})
}

type fakeServer struct {
	handle   supervisor.Handle
	restarts []string
}

func (f *fakeServer) Status(ctx context.Context) (supervisor.Handle, error) {
	return f.handle, nil
}

func (f *fakeServer) RestartFor(ctx context.Context, reason string, port int) (supervisor.Handle, error) {
	f.restarts = append(f.restarts, fmt.Sprintf("%s:%d", reason, port))
	f.handle.PID++
	return f.handle, nil
}

type checkRecorder struct {
	metrics.Recorder
	outcomes []string
}

func (c *checkRecorder) UpdateCheck(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

type fixture struct {
	home     *testutil.HomeFixture
	store    *state.Files
	upgrader *fakeUpgrader
	server   *fakeServer
	rec      *checkRecorder
	r        *Reconciler
}

func newFixture(t *testing.T, indexURL string, rec *state.InstallationRecord) *fixture {
	t.Helper()
	home := testutil.NewHome(t)
	home.Config.App.IndexURL = indexURL
	store := state.NewFiles(home.Paths)
	if rec != nil {
		require.NoError(t, store.SaveInstall(rec))
		if m := state.MarkerFor(rec.Source()); m != nil {
			require.NoError(t, store.SaveDevMarker(m))
		}
	}
	f := &fixture{
		home:     home,
		store:    store,
		upgrader: &fakeUpgrader{store: store, version: "0.4.1"},
		server:   &fakeServer{handle: supervisor.Handle{PID: 100, Port: 8890, State: supervisor.StateHealthy}},
		rec:      &checkRecorder{Recorder: metrics.Noop()},
	}
	f.r = New(home.Config, store, f.upgrader, f.server, f.rec, home.Logger)
	return f
}

func releaseRecord(version string) *state.InstallationRecord {
	rec := state.NewInstallationRecord(time.Now())
	rec.Version = version
	rec.Complete = true
	return rec
}

func branchRecord(branch string) *state.InstallationRecord {
	rec := releaseRecord("0.4.0")
	rec.SetSource(state.Source{Mode: state.ModeBranch, Branch: branch})
	return rec
}

func TestCheck_NewerReleaseAvailable(t *testing.T) {
	idx := newFakeIndex(t, http.StatusOK, indexBody)
	f := newFixture(t, idx.srv.URL, releaseRecord("0.4.0"))

	info, err := f.r.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Available)
	assert.Equal(t, "0.4.0", info.Current)
	assert.Equal(t, "0.4.1", info.Latest, "prereleases and yanked releases are not offered")
	assert.False(t, info.Dev)
	assert.Empty(t, info.Error)
	assert.Equal(t, []string{metrics.OutcomeAvailable}, f.rec.outcomes)
}

func TestCheck_EqualOrOlderIsNotAnUpdate(t *testing.T) {
	idx := newFakeIndex(t, http.StatusOK, indexBody)

	for _, installed := range []string{"0.4.1", "0.4.2", "1.0.0"} {
		t.Run(installed, func(t *testing.T) {
			f := newFixture(t, idx.srv.URL, releaseRecord(installed))
			info, err := f.r.Check(context.Background())
			require.NoError(t, err)
			assert.False(t, info.Available)
			assert.Empty(t, info.Error)
		})
	}
}

func TestCheck_DevModeNeverQueriesIndex(t *testing.T) {
	idx := newFakeIndex(t, http.StatusOK, indexBody)
	f := newFixture(t, idx.srv.URL, branchRecord("feature-x"))

	info, err := f.r.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Dev)
	assert.True(t, info.Available)
	assert.Equal(t, "feature-x", info.Source.Branch)
	assert.Zero(t, idx.hits.Load())
	assert.Equal(t, []string{metrics.OutcomeDev}, f.rec.outcomes)
}

func TestCheck_FollowsDevMarkerOverRecord(t *testing.T) {
	idx := newFakeIndex(t, http.StatusOK, indexBody)
	f := newFixture(t, idx.srv.URL, releaseRecord("0.4.0"))
	require.NoError(t, f.store.SaveDevMarker(state.MarkerFor(state.Source{Mode: state.ModeBranch, Branch: "next"})))

	info, err := f.r.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Dev)
	assert.Equal(t, state.ModeBranch, info.Source.Mode)
	assert.Equal(t, "next", info.Source.Branch)
	assert.Zero(t, idx.hits.Load(), "a dev marker must keep the index untouched")

	// a dev record whose marker is gone is checked as a release
	g := newFixture(t, idx.srv.URL, branchRecord("feature-x"))
	require.NoError(t, g.store.ClearDevMarker())
	info, err = g.r.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, info.Dev)
	assert.Equal(t, int32(1), idx.hits.Load())
}

func TestCheck_NetworkFailureIsNoUpdate(t *testing.T) {
	tests := []struct {
		name  string
		index func(t *testing.T) string
	}{
		{"server error", func(t *testing.T) string {
			return newFakeIndex(t, http.StatusInternalServerError, "boom").srv.URL
		}},
		{"garbage body", func(t *testing.T) string {
			return newFakeIndex(t, http.StatusOK, "<html>").srv.URL
		}},
		{"unreachable", func(t *testing.T) string {
			idx := newFakeIndex(t, http.StatusOK, indexBody)
			idx.srv.Close()
			return idx.srv.URL
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.index(t), releaseRecord("0.4.0"))
			info, err := f.r.Check(context.Background())
			require.NoError(t, err)
			assert.False(t, info.Available)
			assert.NotEmpty(t, info.Error)
			assert.Equal(t, []string{metrics.OutcomeError}, f.rec.outcomes)
		})
	}
}

func TestCheck_NotInstalled(t *testing.T) {
	idx := newFakeIndex(t, http.StatusOK, indexBody)

	f := newFixture(t, idx.srv.URL, nil)
	_, err := f.r.Check(context.Background())
	assert.ErrorIs(t, err, installer.ErrNotInstalled)

	incomplete := releaseRecord("0.4.0")
	incomplete.Complete = false
	f = newFixture(t, idx.srv.URL, incomplete)
	_, err = f.r.Check(context.Background())
	assert.ErrorIs(t, err, installer.ErrNotInstalled)
}

func TestCheck_PostReleaseVersions(t *testing.T) {
	idx := newFakeIndex(t, http.StatusOK, `{"info":{"version":"0.4.0.post1"},"releases":{"0.4.0":[{}],"0.4.0.post1":[{}]}}`)
	f := newFixture(t, idx.srv.URL, releaseRecord("0.4.0"))

	info, err := f.r.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Available)
	assert.Equal(t, "0.4.0.post1", info.Latest)
}

func TestApply_UpgradesAndRestartsRunningServer(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", releaseRecord("0.4.0"))

	res, err := f.r.Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.4.0", res.From)
	assert.Equal(t, "0.4.1", res.To)
	assert.True(t, res.Restarted)
	assert.Equal(t, []string{"update:8890"}, f.server.restarts, "restart reuses the running port")
	assert.Equal(t, 101, res.Server.PID)
}

func TestApply_StoppedServerStaysStopped(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", releaseRecord("0.4.0"))
	f.server.handle = supervisor.Handle{State: supervisor.StateStopped}

	res, err := f.r.Apply(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Restarted)
	assert.Empty(t, f.server.restarts)
}

func TestApply_FailureSkipsRestart(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", branchRecord("main"))
	f.upgrader.err = errors.New("remote unreachable")

	_, err := f.r.Apply(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.server.restarts)

	rec, err := f.store.LoadInstall()
	require.NoError(t, err)
	assert.Equal(t, state.ModeBranch, rec.Mode, "a failed re-pull never falls back to release")
}

func TestRun_TriggerAndAutoApply(t *testing.T) {
	idx := newFakeIndex(t, http.StatusOK, indexBody)
	f := newFixture(t, idx.srv.URL, releaseRecord("0.4.0"))
	f.r.cfg = config.UpdatesConfig{Enabled: false, AutoApply: true}

	checks := make(chan UpdateInfo, 4)
	f.r.OnCheck = func(info UpdateInfo) { checks <- info }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.r.Run(ctx) }()

	f.r.Trigger()
	select {
	case info := <-checks:
		assert.True(t, info.Available)
	case <-time.After(5 * time.Second):
		t.Fatal("triggered check never ran")
	}

	assert.Eventually(t, func() bool {
		rec, err := f.store.LoadInstall()
		return err == nil && rec.Version == "0.4.1"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NotNil(t, f.r.Last())
	assert.Equal(t, 1, f.upgrader.calls)
}

func TestRun_DevInstallIsNotAutoApplied(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", branchRecord("main"))
	f.r.cfg = config.UpdatesConfig{Enabled: true, Interval: config.Duration{Duration: time.Hour}, AutoApply: true}

	checks := make(chan UpdateInfo, 1)
	f.r.OnCheck = func(info UpdateInfo) { checks <- info }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.r.Run(ctx) }()

	select {
	case info := <-checks:
		assert.True(t, info.Dev)
	case <-time.After(5 * time.Second):
		t.Fatal("startup check never ran")
	}
	assert.Zero(t, f.upgrader.calls)
}

func TestTrigger_NeverBlocks(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", nil)
	for i := 0; i < 10; i++ {
		f.r.Trigger()
	}
}

func TestUpdateInfo_Summary(t *testing.T) {
	tests := []struct {
		info UpdateInfo
		want string
	}{
		{UpdateInfo{Current: "0.4.0", Latest: "0.4.1", Available: true}, "update available: 0.4.0 -> 0.4.1"},
		{UpdateInfo{Current: "0.4.1"}, "up to date (0.4.1)"},
		{UpdateInfo{Error: "timeout"}, "could not check for updates: timeout"},
		{UpdateInfo{Dev: true, Available: true, Source: state.Source{Mode: state.ModeBranch, Branch: "dev"}}, "dev install (branch dev): re-pull available"},
	}
	for _, tt := range tests {
		if got := tt.info.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}
