// Package config loads the launcher configuration and computes the on-disk
// layout of an installation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the launcher configuration file inside the home directory.
const FileName = "launcher.toml"

// HomeEnv overrides the default home directory.
const HomeEnv = "PAWLAUNCH_HOME"

// Duration is a time.Duration that decodes from TOML strings like "60s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// AppConfig describes the supervised application.
type AppConfig struct {
	// Package is the distribution name installed from the index.
	Package string `toml:"package"`
	// Module is what the server is started with (python -m <module>).
	Module string `toml:"module"`
	// RepoURL is cloned for branch installs.
	RepoURL string `toml:"repo_url"`
	// DevBranch is installed by --dev without --branch.
	DevBranch string `toml:"dev_branch"`
	// IndexURL is the package index JSON API base.
	IndexURL string `toml:"index_url"`
	// Extras are installed when the user passes none.
	Extras []string `toml:"extras"`
}

// ServerConfig tunes the process supervisor.
type ServerConfig struct {
	Port           int      `toml:"port"`
	Host           string   `toml:"host"`
	HealthPath     string   `toml:"health_path"`
	HealthInterval Duration `toml:"health_interval"`
	HealthTimeout  Duration `toml:"health_timeout"`
	StartTimeout   Duration `toml:"start_timeout"`
	StopGrace      Duration `toml:"stop_grace"`
	KillWait       Duration `toml:"kill_wait"`
	MonitorEvery   Duration `toml:"monitor_interval"`
	RestartOnCrash bool     `toml:"restart_on_crash"`
}

// UpdatesConfig tunes the update reconciler.
type UpdatesConfig struct {
	Enabled      bool     `toml:"enabled"`
	Interval     Duration `toml:"interval"`
	CheckTimeout Duration `toml:"check_timeout"`
	// AutoApply upgrades release installs as soon as a check finds a newer
	// version. Dev installs are only re-pulled on request.
	AutoApply bool `toml:"auto_apply"`
}

// RuntimeConfig pins the interpreter and tool versions.
type RuntimeConfig struct {
	MinVersion    string   `toml:"min_version"`
	PinnedVersion string   `toml:"pinned_version"`
	UVVersion     string   `toml:"uv_version"`
	UVOverrides   []string `toml:"uv_overrides"`
}

// Config is the full launcher configuration.
type Config struct {
	App     AppConfig     `toml:"app"`
	Server  ServerConfig  `toml:"server"`
	Updates UpdatesConfig `toml:"updates"`
	Runtime RuntimeConfig `toml:"runtime"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Package:   "pocketpaw",
			Module:    "pocketclaw",
			RepoURL:   "https://github.com/pocketpaw/pocketpaw.git",
			DevBranch: "main",
			IndexURL:  "https://pypi.org/pypi",
			Extras:    []string{"recommended"},
		},
		Server: ServerConfig{
			Port:           8888,
			Host:           "127.0.0.1",
			HealthPath:     "/",
			HealthInterval: Duration{500 * time.Millisecond},
			HealthTimeout:  Duration{3 * time.Second},
			StartTimeout:   Duration{60 * time.Second},
			StopGrace:      Duration{10 * time.Second},
			KillWait:       Duration{5 * time.Second},
			MonitorEvery:   Duration{5 * time.Second},
			RestartOnCrash: true,
		},
		Updates: UpdatesConfig{
			Enabled:      true,
			Interval:     Duration{6 * time.Hour},
			CheckTimeout: Duration{10 * time.Second},
		},
		Runtime: RuntimeConfig{
			MinVersion:    "3.11",
			PinnedVersion: "3.12",
			UVVersion:     "0.6.6",
			UVOverrides:   []string{"tiktoken>=0.7.0"},
		},
	}
}

// Load reads launcher.toml from home on top of the defaults. A missing file
// yields the defaults.
func Load(home string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(home, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", FileName, err)
	}
	return cfg, nil
}

// Validate rejects values the launcher cannot run with.
func (c *Config) Validate() error {
	if c.App.Package == "" {
		return fmt.Errorf("app.package must not be empty")
	}
	if c.App.Module == "" {
		return fmt.Errorf("app.module must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.HealthInterval.Duration <= 0 {
		return fmt.Errorf("server.health_interval must be positive")
	}
	if c.Server.StartTimeout.Duration < c.Server.HealthInterval.Duration {
		return fmt.Errorf("server.start_timeout must be at least server.health_interval")
	}
	if c.Updates.Enabled && c.Updates.Interval.Duration < time.Minute {
		return fmt.Errorf("updates.interval must be at least 1m")
	}
	return nil
}

// appSettings is the subset of the application's own config.json the
// launcher reads.
type appSettings struct {
	WebPort int `json:"web_port"`
}

// AppPort returns the web_port from the application's config.json, or 0 if
// the file is missing, unreadable, or does not set a valid port.
func AppPort(p Paths) int {
	data, err := os.ReadFile(p.AppConfig)
	if err != nil {
		return 0
	}
	var s appSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return 0
	}
	if s.WebPort < 1 || s.WebPort > 65535 {
		return 0
	}
	return s.WebPort
}

// ResolvePort applies the port precedence: explicit flag, then the
// application's config.json, then launcher.toml.
func (c *Config) ResolvePort(flagPort int, p Paths) int {
	if flagPort > 0 {
		return flagPort
	}
	if port := AppPort(p); port > 0 {
		return port
	}
	return c.Server.Port
}
