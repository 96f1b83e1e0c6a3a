package toolchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/steveyegge/pawlaunch/internal/util"
)

// MaxAPIResponseSize caps the release API body.
const MaxAPIResponseSize = 1 * 1024 * 1024

// releaseInfo is the subset of the GitHub release response we read.
type releaseInfo struct {
	TagName string `json:"tag_name"`
}

type tagCache struct {
	Version    string    `json:"version"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ResolveVersion returns the latest uv version, reusing a cached answer for
// up to a day. Any failure falls back to the pinned version.
func (u *UV) ResolveVersion(ctx context.Context) string {
	if v, ok := u.cachedVersion(); ok {
		return v
	}

	tag, err := u.fetchLatestTag(ctx)
	if err != nil {
		u.Logger.Debug("could not resolve latest uv version", "err", err, "fallback", u.PinnedVersion)
		return u.PinnedVersion
	}

	version := strings.TrimPrefix(tag, "v")
	if u.CachePath != "" {
		if err := util.AtomicWriteJSON(u.CachePath, tagCache{Version: version, ResolvedAt: u.Now()}); err != nil {
			u.Logger.Debug("could not cache uv version", "err", err)
		}
	}
	return version
}

func (u *UV) cachedVersion() (string, bool) {
	if u.CachePath == "" {
		return "", false
	}
	data, err := os.ReadFile(u.CachePath)
	if err != nil {
		return "", false
	}
	var c tagCache
	if err := json.Unmarshal(data, &c); err != nil || c.Version == "" {
		return "", false
	}
	if u.Now().Sub(c.ResolvedAt) >= TagCacheTTL {
		return "", false
	}
	return c.Version, true
}

func (u *UV) fetchLatestTag(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.ReleaseAPI, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := u.httpClient(HTTPTimeout).Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub API returned HTTP %d", resp.StatusCode)
	}

	var release releaseInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxAPIResponseSize)).Decode(&release); err != nil {
		return "", fmt.Errorf("parsing release info: %w", err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("release has no tag")
	}
	return release.TagName, nil
}
