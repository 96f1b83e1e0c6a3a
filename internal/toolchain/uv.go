// Package toolchain acquires the uv package manager used to provision
// interpreters and install the application quickly.
package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/steveyegge/pawlaunch/internal/util"
)

const (
	// DefaultReleaseAPI is the endpoint for the latest uv release.
	DefaultReleaseAPI = "https://api.github.com/repos/astral-sh/uv/releases/latest"

	// DefaultDownloadBase prefixes release asset URLs.
	DefaultDownloadBase = "https://github.com/astral-sh/uv/releases/download"

	// UserAgent is sent with GitHub requests.
	UserAgent = "pawlaunch-toolchain/1.0"

	// HTTPTimeout bounds the release API call.
	HTTPTimeout = 10 * time.Second

	// DownloadTimeout bounds the archive download.
	DownloadTimeout = 5 * time.Minute

	// TagCacheTTL is how long a resolved latest tag is reused.
	TagCacheTTL = 24 * time.Hour
)

// targets maps GOOS/GOARCH to the uv release asset suffix.
var targets = map[string]string{
	"windows/amd64": "x86_64-pc-windows-msvc.zip",
	"windows/386":   "i686-pc-windows-msvc.zip",
	"windows/arm64": "aarch64-pc-windows-msvc.zip",
	"darwin/arm64":  "aarch64-apple-darwin.tar.gz",
	"darwin/amd64":  "x86_64-apple-darwin.tar.gz",
	"linux/amd64":   "x86_64-unknown-linux-gnu.tar.gz",
	"linux/arm64":   "aarch64-unknown-linux-gnu.tar.gz",
}

// Target returns the asset suffix for a platform, or "" if uv publishes
// no build for it.
func Target(goos, goarch string) string {
	return targets[goos+"/"+goarch]
}

// UV fetches and locates the uv binary.
type UV struct {
	// Dir is where the managed binary lives.
	Dir string
	// CachePath stores the last resolved release tag.
	CachePath string
	// PinnedVersion is used when the latest tag cannot be resolved.
	PinnedVersion string

	ReleaseAPI   string
	DownloadBase string
	AllowedHosts []string
	Client       *http.Client
	Retry        util.RetryConfig
	Logger       *slog.Logger

	LookPath func(string) (string, error)
	GOOS     string
	GOARCH   string
	Now      func() time.Time
}

// New returns a UV fetcher with production endpoints.
func New(dir, cachePath, pinned string, logger *slog.Logger) *UV {
	return &UV{
		Dir:           dir,
		CachePath:     cachePath,
		PinnedVersion: pinned,
		ReleaseAPI:    DefaultReleaseAPI,
		DownloadBase:  DefaultDownloadBase,
		AllowedHosts:  AllowedDownloadHosts(),
		Retry:         util.DefaultRetryConfig(),
		Logger:        logger,
		LookPath:      exec.LookPath,
		GOOS:          runtime.GOOS,
		GOARCH:        runtime.GOARCH,
		Now:           time.Now,
	}
}

// BinaryPath returns where the managed uv binary is stored.
func (u *UV) BinaryPath() string {
	if u.GOOS == "windows" {
		return filepath.Join(u.Dir, "uv.exe")
	}
	return filepath.Join(u.Dir, "uv")
}

// Locate returns an existing uv: the managed copy first, then PATH.
func (u *UV) Locate() (string, bool) {
	if info, err := os.Stat(u.BinaryPath()); err == nil && !info.IsDir() {
		return u.BinaryPath(), true
	}
	if u.LookPath != nil {
		if p, err := u.LookPath("uv"); err == nil {
			return p, true
		}
	}
	return "", false
}

// Ensure returns a usable uv, downloading it if none is present.
func (u *UV) Ensure(ctx context.Context) (string, error) {
	if p, ok := u.Locate(); ok {
		u.Logger.Debug("using existing uv", "path", p)
		return p, nil
	}

	version := u.ResolveVersion(ctx)
	assetURL, err := u.AssetURL(version)
	if err != nil {
		return "", err
	}

	u.Logger.Info("downloading uv", "version", version, "url", assetURL)
	archive, err := util.Retry(ctx, u.Retry, func() (string, error) {
		return u.download(ctx, assetURL)
	})
	if err != nil {
		return "", fmt.Errorf("downloading uv %s: %w", version, err)
	}
	defer func() { _ = os.Remove(archive) }()

	name := "uv"
	if u.GOOS == "windows" {
		name = "uv.exe"
	}
	if err := Extract(archive, name, u.Dir); err != nil {
		return "", fmt.Errorf("extracting uv: %w", err)
	}

	u.Logger.Info("uv installed", "path", u.BinaryPath())
	return u.BinaryPath(), nil
}

// AssetURL builds the download URL for version on this platform.
func (u *UV) AssetURL(version string) (string, error) {
	target := Target(u.GOOS, u.GOARCH)
	if target == "" {
		return "", fmt.Errorf("no uv build for %s/%s", u.GOOS, u.GOARCH)
	}
	return fmt.Sprintf("%s/%s/uv-%s", strings.TrimRight(u.DownloadBase, "/"), version, target), nil
}

func (u *UV) httpClient(timeout time.Duration) *http.Client {
	if u.Client != nil {
		return u.Client
	}
	return &http.Client{Timeout: timeout}
}
