// Package version holds the launcher's build information and the version
// parsing shared by the interpreter floor check and the update reconciler.
package version

import (
	"fmt"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Build information, set with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// ShortCommit returns the first 12 characters of a commit hash.
func ShortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// Info returns a one-line build description.
func Info() string {
	s := "pawlaunch " + Version
	if c := ShortCommit(Commit); c != "" {
		s += " (" + c + ")"
	}
	if BuildTime != "" {
		s += " built " + BuildTime
	}
	return s
}

var (
	postRelease = regexp.MustCompile(`\.?post(\d+)`)
	devRelease  = regexp.MustCompile(`\.?dev(\d+)`)
	localSuffix = regexp.MustCompile(`\+.*$`)
)

// Parse parses a package version string. Besides plain semantic versions
// it accepts the index's release styles: "1.2", "1.2.0rc1", "1.2.0.post1",
// "1.2.0.dev3". Post releases sort after their base release, dev and
// pre-releases before it. Local suffixes ("+cpu") are ignored.
func Parse(s string) (*goversion.Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty version")
	}

	norm := strings.TrimPrefix(strings.ToLower(s), "v")
	norm = localSuffix.ReplaceAllString(norm, "")
	norm = postRelease.ReplaceAllString(norm, ".$1")
	norm = devRelease.ReplaceAllString(norm, "-dev$1")

	v, err := goversion.NewVersion(norm)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// Newer reports whether candidate is strictly newer than installed.
// Unparseable versions are never newer, so a garbled index response
// cannot trigger an upgrade.
func Newer(candidate, installed string) bool {
	c, err := Parse(candidate)
	if err != nil {
		return false
	}
	i, err := Parse(installed)
	if err != nil {
		return false
	}
	return c.GreaterThan(i)
}

var interpreterVersion = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseInterpreter extracts the version from interpreter output such as
// "Python 3.12.8" or "Python 3.13.0rc2". Prerelease tags are dropped.
func ParseInterpreter(output string) (*goversion.Version, error) {
	m := interpreterVersion.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("no version in %q", strings.TrimSpace(output))
	}
	core := m[1] + "." + m[2]
	if m[3] != "" {
		core += "." + m[3]
	}
	return goversion.NewVersion(core)
}

// AtLeast reports whether have meets the floor. Both are compared on their
// numeric segments only.
func AtLeast(have *goversion.Version, floor string) (bool, error) {
	f, err := goversion.NewVersion(floor)
	if err != nil {
		return false, fmt.Errorf("invalid version floor %q: %w", floor, err)
	}
	return have.Core().GreaterThanOrEqual(f.Core()), nil
}
