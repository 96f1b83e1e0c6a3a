package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/launcher"
	"github.com/steveyegge/pawlaunch/internal/telemetry"
	"github.com/steveyegge/pawlaunch/internal/testutil"
	"github.com/steveyegge/pawlaunch/internal/util"
)

func TestWithDefaultCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"no args", nil, []string{"run"}},
		{"run flags only", []string{"--no-browser"}, []string{"run", "--no-browser"}},
		{"global flag", []string{"--home", "/tmp/x"}, []string{"run", "--home", "/tmp/x"}},
		{"explicit command", []string{"status", "--json"}, []string{"status", "--json"}},
		{"help", []string{"--help"}, []string{"--help"}},
		{"version flag", []string{"--version"}, []string{"--version"}},
		{"unknown command", []string{"frobnicate"}, []string{"frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withDefaultCommand(tt.args))
		})
	}
}

func TestRequireSubcommand(t *testing.T) {
	err := requireSubcommand(autostartCmd, nil)
	require.Error(t, err)
	assert.Equal(t, exitcode.ErrUsage, exitcode.Code(err))
	assert.Contains(t, err.Error(), "pawlaunch autostart --help")

	err = requireSubcommand(autostartCmd, []string{"foobar"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "foobar"`)
}

// useTestLauncher points newLauncher at a temp home with no external tools.
func useTestLauncher(t *testing.T) *testutil.HomeFixture {
	t.Helper()
	t.Setenv(telemetry.EnvMetricsURL, "")
	t.Setenv(telemetry.EnvLogsURL, "")
	h := testutil.NewHome(t)
	userHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(userHome, ".config"))

	orig := newLauncher
	newLauncher = func(ctx context.Context, o launcher.Options) (*launcher.Launcher, error) {
		o.Home = h.Paths.Home
		o.UserHome = userHome
		o.Runner = &testutil.FakeRunner{Handler: func(cmd util.Command) (util.Result, error) {
			return testutil.Fail(cmd, 127, "no external tools in tests")
		}}
		return orig(ctx, o)
	}
	t.Cleanup(func() { newLauncher = orig })
	return h
}

func TestExecute_StatusJSON(t *testing.T) {
	h := useTestLauncher(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		statusJSON = false
	})

	code := execute([]string{"status", "--json"})
	require.Equal(t, exitcode.Success, code)

	var st launcher.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, h.Paths.Home, st.Home)
	assert.False(t, st.Installed)
}

func TestExecute_InvalidLogLevel(t *testing.T) {
	useTestLauncher(t)
	t.Cleanup(func() { logLevelFlag = "info" })

	code := execute([]string{"status", "--log-level", "loud"})
	assert.Equal(t, exitcode.ErrUsage, code)
}

func TestExecute_StartWithoutInstall(t *testing.T) {
	useTestLauncher(t)

	code := execute([]string{"start"})
	assert.Equal(t, exitcode.ErrUsage, code)
}
