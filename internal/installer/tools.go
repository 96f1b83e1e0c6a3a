package installer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/steveyegge/pawlaunch/internal/config"
	"github.com/steveyegge/pawlaunch/internal/util"
)

// toolchain runs environment commands with uv when available and with the
// environment's own pip otherwise.
type toolchain struct {
	uv     string
	paths  config.Paths
	runner util.Runner
	logger *slog.Logger
}

func (in *Installer) tools(uv string) *toolchain {
	return &toolchain{uv: uv, paths: in.Paths, runner: in.Runner, logger: in.Logger}
}

func (t *toolchain) name() string {
	if t.uv != "" {
		return "uv"
	}
	return "pip"
}

func (t *toolchain) run(ctx context.Context, name string, args ...string) (util.Result, error) {
	cmd := util.Command{Name: name, Args: args, Timeout: InstallTimeout}
	t.logger.Debug("running", "cmd", cmd.String())
	return t.runner.Run(ctx, cmd)
}

// createEnv builds the virtual environment from interpreter.
func (t *toolchain) createEnv(ctx context.Context, interpreter string) error {
	if t.uv != "" {
		_, err := t.run(ctx, t.uv, "venv", t.paths.Env, "--python", interpreter, "--quiet")
		if err == nil {
			return nil
		}
		t.logger.Warn("uv venv failed, trying python -m venv", "error", err)
	}
	_, err := t.run(ctx, interpreter, "-m", "venv", t.paths.Env)
	return err
}

// install runs the fallback chain: uv with the overrides file, uv without
// it, then pip. The stderr of the last failed attempt is returned.
func (t *toolchain) install(ctx context.Context, spec []string, force, upgrade bool) (string, error) {
	venvPython := t.paths.EnvPython()
	var lastErr error
	var stderr string

	if t.uv != "" {
		base := []string{"pip", "install"}
		switch {
		case force:
			base = append(base, "--reinstall")
		case upgrade:
			base = append(base, "--upgrade")
		}
		base = append(base, spec...)
		base = append(base, "--python", venvPython)

		if _, err := os.Stat(t.paths.Overrides); err == nil {
			args := append(append([]string{}, base...), "--override", t.paths.Overrides)
			res, err := t.run(ctx, t.uv, args...)
			if err == nil {
				return "", nil
			}
			if ctx.Err() != nil {
				return res.Stderr, err
			}
			t.logger.Warn("uv install with overrides failed, retrying without", "error", err)
			lastErr, stderr = err, res.Stderr
		}

		res, err := t.run(ctx, t.uv, base...)
		if err == nil {
			return "", nil
		}
		if ctx.Err() != nil {
			return res.Stderr, err
		}
		t.logger.Warn("uv install failed, falling back to pip", "error", err)
		lastErr, stderr = err, res.Stderr
	}

	if _, err := os.Stat(venvPython); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return stderr, lastErr
	}

	if _, err := t.run(ctx, venvPython, "-m", "pip", "install", "--upgrade", "pip", "--quiet"); err != nil {
		t.logger.Warn("pip self-upgrade failed", "error", err)
	}

	args := []string{"-m", "pip", "install"}
	switch {
	case force:
		args = append(args, "--force-reinstall")
	case upgrade:
		args = append(args, "--upgrade")
	}
	args = append(args, spec...)
	args = append(args, "--quiet")
	res, err := t.run(ctx, venvPython, args...)
	if err != nil {
		return res.Stderr, err
	}
	return "", nil
}

// show returns the installed version of pkg, or "" if it is absent.
func (t *toolchain) show(ctx context.Context, pkg string) (string, error) {
	var (
		res util.Result
		err error
	)
	if t.uv != "" {
		res, err = t.run(ctx, t.uv, "pip", "show", pkg, "--python", t.paths.EnvPython())
	}
	if t.uv == "" || err != nil {
		res, err = t.run(ctx, t.paths.EnvPython(), "-m", "pip", "show", pkg)
	}
	if err != nil {
		var exitErr *util.ExitError
		if errors.As(err, &exitErr) {
			// pip show exits 1 for a missing package.
			return "", nil
		}
		return "", err
	}
	return parseShowVersion(res.Stdout), nil
}

func parseShowVersion(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "Version:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
