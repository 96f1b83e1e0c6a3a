// Package interp locates or provisions a Python interpreter that meets the
// launcher's version floor.
package interp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
	"github.com/steveyegge/pawlaunch/internal/util"
	"github.com/steveyegge/pawlaunch/internal/version"
)

// ProbeTimeout bounds a single interpreter version probe.
const ProbeTimeout = 10 * time.Second

// probeScript prints major.minor.micro.
const probeScript = "import sys; print('%d.%d.%d' % sys.version_info[:3])"

// Origin says how a runtime was obtained.
type Origin string

const (
	OriginCached         Origin = "cached"
	OriginSearch         Origin = "search"
	OriginUV             Origin = "uv"
	OriginPackageManager Origin = "package-manager"
)

// Runtime is a usable interpreter.
type Runtime struct {
	Path    string
	Version string
	Origin  Origin
}

// Candidate is one place to look: an absolute path, or a command name
// resolved through PATH.
type Candidate struct {
	Path    string
	Command string
}

func (c Candidate) String() string {
	if c.Path != "" {
		return c.Path
	}
	return c.Command
}

// Provisioner installs an interpreter and returns its path.
type Provisioner interface {
	Name() Origin
	Provision(ctx context.Context) (string, error)
}

// Resolver finds an interpreter. It is safe for concurrent use; the first
// satisfying result is cached for the life of the Resolver.
type Resolver struct {
	MinVersion   string
	Candidates   []Candidate
	Provisioners []Provisioner
	Runner       util.Runner
	LookPath     func(string) (string, error)
	Logger       *slog.Logger

	mu     sync.Mutex
	cached *Runtime
}

// NewResolver builds a resolver with the platform's candidate list. hint,
// if non-empty, is tried first (usually the interpreter recorded by the
// last successful install).
func NewResolver(minVersion, home, hint string, runner util.Runner, provisioners []Provisioner, logger *slog.Logger) *Resolver {
	var candidates []Candidate
	if hint != "" {
		candidates = append(candidates, Candidate{Path: hint})
	}
	candidates = append(candidates, platformCandidates(home)...)
	return &Resolver{
		MinVersion:   minVersion,
		Candidates:   candidates,
		Provisioners: provisioners,
		Runner:       runner,
		LookPath:     exec.LookPath,
		Logger:       logger,
	}
}

// Resolve returns an interpreter at or above MinVersion. It searches the
// candidates, then runs each provisioner in order, and fails with a
// RuntimeUnavailable error if none yields a satisfying interpreter.
func (r *Resolver) Resolve(ctx context.Context) (*Runtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		if _, err := os.Stat(r.cached.Path); err == nil {
			rt := *r.cached
			rt.Origin = OriginCached
			return &rt, nil
		}
		r.cached = nil
	}

	if rt := r.search(ctx); rt != nil {
		r.cached = rt
		return rt, nil
	}

	for _, p := range r.Provisioners {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.Logger.Info("no suitable interpreter found, provisioning", "via", p.Name(), "min", r.MinVersion)

		path, err := p.Provision(ctx)
		if err != nil {
			r.Logger.Warn("interpreter provisioning failed", "via", p.Name(), "err", err)
			continue
		}
		v, ok := r.check(ctx, path)
		if !ok {
			r.Logger.Warn("provisioned interpreter does not satisfy floor", "via", p.Name(), "path", path, "version", v)
			continue
		}
		r.cached = &Runtime{Path: path, Version: v, Origin: p.Name()}
		return r.cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, exitcode.RuntimeUnavailable(r.MinVersion)
}

// search probes the candidates in order and returns the first satisfying
// one.
func (r *Resolver) search(ctx context.Context) *Runtime {
	seen := make(map[string]bool)
	for _, c := range r.Candidates {
		if ctx.Err() != nil {
			return nil
		}
		path := c.Path
		if path == "" {
			p, err := r.LookPath(c.Command)
			if err != nil {
				continue
			}
			path = p
		} else if _, err := os.Stat(path); err != nil {
			continue
		}

		key := path
		if real, err := filepath.EvalSymlinks(path); err == nil {
			key = real
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		if v, ok := r.check(ctx, path); ok {
			r.Logger.Info("using interpreter", "path", path, "version", v)
			return &Runtime{Path: path, Version: v, Origin: OriginSearch}
		} else if v != "" {
			r.Logger.Debug("interpreter below floor", "path", path, "version", v, "min", r.MinVersion)
		}
	}
	return nil
}

// check probes path and reports its version and whether it meets the floor.
func (r *Resolver) check(ctx context.Context, path string) (string, bool) {
	v, err := Probe(ctx, r.Runner, path)
	if err != nil {
		r.Logger.Debug("interpreter probe failed", "path", path, "err", err)
		return "", false
	}
	ok, err := version.AtLeast(v, r.MinVersion)
	if err != nil {
		r.Logger.Warn("bad version floor", "err", err)
		return v.String(), false
	}
	return v.String(), ok
}

// Probe runs the interpreter and returns its version.
func Probe(ctx context.Context, runner util.Runner, path string) (*goversion.Version, error) {
	res, err := runner.Run(ctx, util.Command{
		Name:    path,
		Args:    []string{"-c", probeScript},
		Timeout: ProbeTimeout,
	})
	if err != nil {
		return nil, err
	}
	v, err := version.ParseInterpreter(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}
	return v, nil
}

// ErrNoPackageManager is returned when no supported package manager exists.
var ErrNoPackageManager = errors.New("no supported package manager found")
