package toolchain

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pawlaunch/internal/util"
)

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeGitHub struct {
	server    *httptest.Server
	apiCalls  atomic.Int32
	apiStatus atomic.Int32
	archive   []byte
}

func newFakeGitHub(t *testing.T, archive []byte) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{archive: archive}
	f.apiStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/astral-sh/uv/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if code := int(f.apiStatus.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_, _ = io.WriteString(w, `{"tag_name": "0.7.1", "name": "0.7.1"}`)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(f.archive)
	})

	f.server = httptest.NewTLSServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) uv(t *testing.T, goos string) *UV {
	home := t.TempDir()
	u := New(filepath.Join(home, "uv"), filepath.Join(home, "uv", ".latest-tag"), "0.6.6",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	u.ReleaseAPI = f.server.URL + "/repos/astral-sh/uv/releases/latest"
	u.DownloadBase = f.server.URL + "/download"
	u.AllowedHosts = []string{"127.0.0.1"}
	u.Client = f.server.Client()
	u.Retry = util.RetryConfig{MaxAttempts: 1}
	u.LookPath = func(string) (string, error) { return "", errors.New("not found") }
	u.GOOS = goos
	u.GOARCH = "amd64"
	return u
}

func TestEnsure_DownloadsAndExtracts(t *testing.T) {
	gh := newFakeGitHub(t, tarGz(t, map[string]string{
		"uv-x86_64-unknown-linux-gnu/uv":  "#!uv",
		"uv-x86_64-unknown-linux-gnu/uvx": "#!uvx",
	}))
	u := gh.uv(t, "linux")

	path, err := u.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, u.BinaryPath(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#!uv", string(data))

	_, err = os.Stat(filepath.Join(u.Dir, "uvx"))
	assert.True(t, os.IsNotExist(err), "only uv is extracted")

	// Second call finds the managed binary without touching the network.
	calls := gh.apiCalls.Load()
	again, err := u.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, calls, gh.apiCalls.Load())
}

func TestEnsure_WindowsZip(t *testing.T) {
	gh := newFakeGitHub(t, zipArchive(t, map[string]string{"uv.exe": "MZ", "uvx.exe": "MZ"}))
	u := gh.uv(t, "windows")

	path, err := u.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "uv.exe", filepath.Base(path))
}

func TestLocate_PrefersManagedThenPath(t *testing.T) {
	gh := newFakeGitHub(t, nil)
	u := gh.uv(t, "linux")

	_, ok := u.Locate()
	assert.False(t, ok)

	u.LookPath = func(string) (string, error) { return "/usr/local/bin/uv", nil }
	p, ok := u.Locate()
	assert.True(t, ok)
	assert.Equal(t, "/usr/local/bin/uv", p)

	require.NoError(t, os.MkdirAll(u.Dir, 0755))
	require.NoError(t, os.WriteFile(u.BinaryPath(), []byte("x"), 0755))
	p, ok = u.Locate()
	assert.True(t, ok)
	assert.Equal(t, u.BinaryPath(), p)
}

func TestResolveVersion_CachesForADay(t *testing.T) {
	gh := newFakeGitHub(t, nil)
	u := gh.uv(t, "linux")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	u.Now = func() time.Time { return now }

	assert.Equal(t, "0.7.1", u.ResolveVersion(context.Background()))
	assert.Equal(t, int32(1), gh.apiCalls.Load())

	gh.apiStatus.Store(http.StatusInternalServerError)
	now = now.Add(23 * time.Hour)
	assert.Equal(t, "0.7.1", u.ResolveVersion(context.Background()), "cached tag reused")
	assert.Equal(t, int32(1), gh.apiCalls.Load())

	now = now.Add(2 * time.Hour)
	assert.Equal(t, "0.6.6", u.ResolveVersion(context.Background()), "expired cache and failing API fall back to pin")
}

func TestAssetURL(t *testing.T) {
	u := &UV{DownloadBase: "https://github.com/astral-sh/uv/releases/download/", GOOS: "darwin", GOARCH: "arm64"}
	got, err := u.AssetURL("0.6.6")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/astral-sh/uv/releases/download/0.6.6/uv-aarch64-apple-darwin.tar.gz", got)

	u.GOOS, u.GOARCH = "plan9", "arm"
	_, err = u.AssetURL("0.6.6")
	assert.Error(t, err)
}

func TestValidateDownloadURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://github.com/astral-sh/uv/releases/download/0.6.6/uv.tar.gz", false},
		{"https://objects.githubusercontent.com/x", false},
		{"http://github.com/x", true},
		{"https://evil.github.com/x", true},
		{"https://github.com.evil.com/x", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateDownloadURL(tt.url, AllowedDownloadHosts())
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDownloadURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestExtract_MissingBinary(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "uv.tar.gz")
	require.NoError(t, os.WriteFile(archive, tarGz(t, map[string]string{"README.md": "hi"}), 0644))

	err := Extract(archive, "uv", t.TempDir())
	assert.ErrorContains(t, err, "not found in archive")
}
