package toolchain

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxArchiveSize caps the downloaded archive (200MB).
	MaxArchiveSize = 200 * 1024 * 1024

	// MaxBinarySize caps the extracted binary (100MB).
	MaxBinarySize = 100 * 1024 * 1024
)

// allowedDownloadHosts are the exact hosts downloads may come from or
// redirect through. Subdomains are not matched.
var allowedDownloadHosts = []string{
	"github.com",
	"objects.githubusercontent.com",
	"release-assets.githubusercontent.com",
}

// AllowedDownloadHosts returns a copy of the default allow list.
func AllowedDownloadHosts() []string {
	result := make([]string, len(allowedDownloadHosts))
	copy(result, allowedDownloadHosts)
	return result
}

// ValidateDownloadURL checks that rawURL is HTTPS on an allowed host.
func ValidateDownloadURL(rawURL string, allowed []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("download URL must use HTTPS, got %s", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	for _, a := range allowed {
		if host == a {
			return nil
		}
	}
	return fmt.Errorf("download URL host %q not in allowed list: %v", host, allowed)
}

// newDownloadClient returns a client that re-validates every redirect.
func (u *UV) newDownloadClient() *http.Client {
	base := u.httpClient(DownloadTimeout)
	client := *base
	if client.Timeout == 0 {
		client.Timeout = DownloadTimeout
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := ValidateDownloadURL(req.URL.String(), u.AllowedHosts); err != nil {
			return fmt.Errorf("redirect to disallowed host: %w", err)
		}
		if len(via) >= 10 {
			return fmt.Errorf("stopped after 10 redirects")
		}
		return nil
	}
	return &client
}

// download fetches assetURL into a temp file and returns its path.
func (u *UV) download(ctx context.Context, assetURL string) (string, error) {
	if err := ValidateDownloadURL(assetURL, u.AllowedHosts); err != nil {
		return "", fmt.Errorf("validating download URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := u.newDownloadClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxArchiveSize {
		return "", fmt.Errorf("archive size %d exceeds maximum allowed %d bytes", resp.ContentLength, MaxArchiveSize)
	}

	ext := ".tar.gz"
	if strings.HasSuffix(assetURL, ".zip") {
		ext = ".zip"
	}
	tmpFile, err := os.CreateTemp("", "pawlaunch-uv-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = tmpFile.Close() }()

	written, err := io.Copy(tmpFile, io.LimitReader(resp.Body, MaxArchiveSize+1))
	if err != nil {
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("writing download: %w", err)
	}
	if written > MaxArchiveSize {
		_ = os.Remove(tmpFile.Name())
		return "", fmt.Errorf("download exceeded maximum archive size of %d bytes", MaxArchiveSize)
	}

	return tmpFile.Name(), nil
}

// Extract copies the file named binaryName out of a .tar.gz or .zip
// archive into destDir. The file is written beside its final name and
// renamed into place.
func Extract(archivePath, binaryName, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}
	if strings.HasSuffix(archivePath, ".zip") {
		return extractZip(archivePath, binaryName, destDir)
	}
	return extractTarGz(archivePath, binaryName, destDir)
}

func extractTarGz(archivePath, binaryName, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != binaryName {
			continue
		}
		return writeBinary(tr, filepath.Join(destDir, binaryName))
	}
	return fmt.Errorf("binary %q not found in archive", binaryName)
}

func extractZip(archivePath, binaryName, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || filepath.Base(f.Name) != binaryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening file in zip: %w", err)
		}
		err = writeBinary(rc, filepath.Join(destDir, binaryName))
		_ = rc.Close()
		return err
	}
	return fmt.Errorf("binary %q not found in archive", binaryName)
}

// writeBinary streams r to dst with mode 0755, refusing oversize content.
func writeBinary(r io.Reader, dst string) error {
	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(r, MaxBinarySize+1))
	closeErr := out.Close()
	if err == nil && n > MaxBinarySize {
		err = fmt.Errorf("binary exceeds maximum allowed size of %d bytes", MaxBinarySize)
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("extracting file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("installing binary: %w", err)
	}
	return nil
}
