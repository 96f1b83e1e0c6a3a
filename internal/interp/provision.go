package interp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/steveyegge/pawlaunch/internal/util"
)

// ProvisionTimeout bounds an interpreter install.
const ProvisionTimeout = 10 * time.Minute

// UVSource yields a uv binary, downloading it if needed.
type UVSource interface {
	Ensure(ctx context.Context) (string, error)
}

// UVProvisioner installs a pinned interpreter with `uv python install`
// into a directory the launcher owns.
type UVProvisioner struct {
	UV         UVSource
	Runner     util.Runner
	Version    string
	InstallDir string
	Logger     *slog.Logger
}

// Name implements Provisioner.
func (p *UVProvisioner) Name() Origin { return OriginUV }

// Provision installs the pinned version and returns its interpreter path.
func (p *UVProvisioner) Provision(ctx context.Context) (string, error) {
	uv, err := p.UV.Ensure(ctx)
	if err != nil {
		return "", fmt.Errorf("getting uv: %w", err)
	}

	env := append(os.Environ(), "UV_PYTHON_INSTALL_DIR="+p.InstallDir)

	p.Logger.Info("installing interpreter with uv", "version", p.Version, "dir", p.InstallDir)
	if _, err := p.Runner.Run(ctx, util.Command{
		Name:    uv,
		Args:    []string{"python", "install", p.Version},
		Env:     env,
		Timeout: ProvisionTimeout,
	}); err != nil {
		return "", fmt.Errorf("uv python install %s: %w", p.Version, err)
	}

	res, err := p.Runner.Run(ctx, util.Command{
		Name:    uv,
		Args:    []string{"python", "find", "--python-preference", "only-managed", p.Version},
		Env:     env,
		Timeout: ProbeTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("uv python find %s: %w", p.Version, err)
	}

	path := strings.TrimSpace(lastLine(res.Stdout))
	if path == "" {
		return "", fmt.Errorf("uv python find returned no path")
	}
	return path, nil
}

// PackageManagerCommand is one way to install an interpreter with a
// platform package manager.
type PackageManagerCommand struct {
	Tool string
	Args []string
	// Result names the interpreter command to look up afterwards.
	Result string
}

// PackageManagerProvisioner installs an interpreter with the first
// available platform package manager.
type PackageManagerProvisioner struct {
	Commands []PackageManagerCommand
	Runner   util.Runner
	LookPath func(string) (string, error)
	Logger   *slog.Logger
}

// Name implements Provisioner.
func (p *PackageManagerProvisioner) Name() Origin { return OriginPackageManager }

// Provision runs the first command whose tool is on PATH.
func (p *PackageManagerProvisioner) Provision(ctx context.Context) (string, error) {
	for _, c := range p.Commands {
		tool, err := p.LookPath(c.Tool)
		if err != nil {
			continue
		}

		p.Logger.Info("installing interpreter with package manager", "tool", c.Tool)
		if _, err := p.Runner.Run(ctx, util.Command{Name: tool, Args: c.Args, Timeout: ProvisionTimeout}); err != nil {
			return "", fmt.Errorf("%s: %w", c.Tool, err)
		}

		path, err := p.LookPath(c.Result)
		if err != nil {
			return "", fmt.Errorf("%s finished but %s is not on PATH", c.Tool, c.Result)
		}
		return path, nil
	}
	return "", ErrNoPackageManager
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
