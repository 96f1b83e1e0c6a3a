package upgrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	latest "github.com/tcnksm/go-latest"

	"github.com/steveyegge/pawlaunch/internal/version"
)

const (
	// HTTPTimeout bounds one index request when the caller sets no deadline.
	HTTPTimeout = 10 * time.Second

	// maxIndexResponse caps the JSON document read from the index.
	maxIndexResponse = 16 << 20
)

// UserAgent is sent with index requests.
func UserAgent() string {
	return "pawlaunch/" + version.Version
}

// PyPI is a go-latest source backed by the package index JSON API
// (<IndexURL>/<Package>/json). Only final releases that still have at
// least one non-yanked file are offered, plus whatever the index itself
// names as current.
type PyPI struct {
	IndexURL string
	Package  string
	Client   *http.Client

	ctx context.Context
	// raw maps a normalized version string back to the index spelling.
	raw map[string]string
}

var _ latest.Source = (*PyPI)(nil)

// WithContext returns a copy of the source whose requests use ctx.
func (p *PyPI) WithContext(ctx context.Context) *PyPI {
	c := *p
	c.ctx = ctx
	c.raw = nil
	return &c
}

// Validate implements latest.Source.
func (p *PyPI) Validate() error {
	if p.Package == "" {
		return fmt.Errorf("package name is required")
	}
	u, err := url.Parse(p.IndexURL)
	if err != nil {
		return fmt.Errorf("invalid index URL %q: %w", p.IndexURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("invalid index URL %q: scheme must be http or https", p.IndexURL)
	}
	return nil
}

type indexDocument struct {
	Info struct {
		Version string `json:"version"`
	} `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
}

type releaseFile struct {
	Yanked bool `json:"yanked"`
}

// Fetch implements latest.Source.
func (p *PyPI) Fetch() (*latest.FetchResponse, error) {
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: HTTPTimeout}
	}

	endpoint := strings.TrimRight(p.IndexURL, "/") + "/" + url.PathEscape(p.Package) + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("package %s not found on the index", p.Package)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("index returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc indexDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIndexResponse)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding index response: %w", err)
	}
	return p.collect(doc), nil
}

func (p *PyPI) collect(doc indexDocument) *latest.FetchResponse {
	fr := &latest.FetchResponse{}
	p.raw = make(map[string]string)
	seen := make(map[string]bool)

	add := func(s string, finalOnly bool) {
		v, err := version.Parse(s)
		if err != nil {
			fr.Malformeds = append(fr.Malformeds, s)
			return
		}
		if finalOnly && v.Prerelease() != "" {
			return
		}
		key := v.String()
		if seen[key] {
			return
		}
		seen[key] = true
		p.raw[key] = s
		p.raw[v.Original()] = s
		fr.Versions = append(fr.Versions, v)
	}

	if doc.Info.Version != "" {
		add(doc.Info.Version, false)
	}
	for s, files := range doc.Releases {
		if !anyAvailable(files) {
			continue
		}
		add(s, true)
	}
	return fr
}

func anyAvailable(files []releaseFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return true
		}
	}
	return false
}

// Spelling returns the index spelling of a version the last Fetch
// returned, or v's normalized form if it was not seen.
func (p *PyPI) Spelling(v string) string {
	if s, ok := p.raw[v]; ok {
		return s
	}
	return v
}

// normalized returns the form of s that go-latest can parse.
func normalized(s string) (string, error) {
	v, err := version.Parse(s)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
