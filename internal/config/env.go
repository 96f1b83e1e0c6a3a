package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ServerEnvConfig specifies what goes into the supervised server's
// environment.
type ServerEnvConfig struct {
	Paths Paths

	// Base is the inherited environment (os.Environ() when nil).
	Base []string
}

// ServerEnv returns the server's variables as a map. PATH gets the
// environment's bin directory and the uv directory prepended.
func ServerEnv(cfg ServerEnvConfig) map[string]string {
	base := cfg.Base
	if base == nil {
		base = os.Environ()
	}

	env := make(map[string]string, len(base)+5)
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}

	pathKey := "PATH"
	for k := range env {
		if strings.EqualFold(k, "PATH") {
			pathKey = k
			break
		}
	}
	parts := []string{cfg.Paths.EnvBin(), cfg.Paths.UVDir}
	if existing := env[pathKey]; existing != "" {
		parts = append(parts, existing)
	}
	env[pathKey] = strings.Join(parts, string(filepath.ListSeparator))

	env["VIRTUAL_ENV"] = cfg.Paths.Env
	env["PYTHONUTF8"] = "1"
	env["PYTHONIOENCODING"] = "utf-8"
	if _, err := os.Stat(cfg.Paths.Overrides); err == nil {
		env["UV_OVERRIDE"] = cfg.Paths.Overrides
	}
	delete(env, "PYTHONHOME")

	return env
}

// EnvList converts a map to sorted KEY=value pairs for exec.Cmd.Env.
func EnvList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
